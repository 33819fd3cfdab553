// Package config builds map options from TIERKV_* environment variables and
// .env files.
//
// Process environment wins over .env values. Unset variables keep the
// defaults of tierkv.Options.
//
//	TIERKV_PATH                bbolt file; empty => in-memory map
//	TIERKV_BUCKET              bbolt bucket
//	TIERKV_MAX_ENTRIES         resident entry bound
//	TIERKV_MAX_BYTES           resident byte bound
//	TIERKV_SHARDS              shard count
//	TIERKV_SCAN_BATCH          keys per iteration chunk
//	TIERKV_COMPRESSION         none | brotli
//	TIERKV_BROTLI_LEVEL        0..11
//	TIERKV_NOSYNC              skip fsync on commit
//	TIERKV_NOFREELIST_SYNC     skip freelist sync
//	TIERKV_OPEN_TIMEOUT_MS     file lock wait
//	TIERKV_READ_CACHE          none | ristretto | bigcache | redis
//	TIERKV_READ_CACHE_MB       read cache budget
//	TIERKV_READ_CACHE_TTL_MS   read cache entry lifetime
//	TIERKV_REDIS_ADDR          redis address for the redis read cache
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tierkv"
	"github.com/unkn0wn-root/tierkv/backend/boltdb"
	"github.com/unkn0wn-root/tierkv/genstore"
	"github.com/unkn0wn-root/tierkv/provider"
	bcprov "github.com/unkn0wn-root/tierkv/provider/bigcache"
	redisprov "github.com/unkn0wn-root/tierkv/provider/redis"
	rprov "github.com/unkn0wn-root/tierkv/provider/ristretto"
	"github.com/unkn0wn-root/tierkv/readcache"
)

const (
	Prefix = "TIERKV_"

	defaultReadCacheMB  = 64
	defaultReadCacheTTL = 10 * time.Minute
)

// Read cache kinds.
const (
	ReadCacheNone      = "none"
	ReadCacheRistretto = "ristretto"
	ReadCacheBigcache  = "bigcache"
	ReadCacheRedis     = "redis"
)

// Swapped in tests.
var (
	newRedisClient = func(addr string) *goredis.Client {
		return goredis.NewClient(&goredis.Options{Addr: addr})
	}
	newReadCache = readcache.New
)

type Config struct {
	Path           string
	Bucket         string
	MaxEntries     int
	MaxBytes       int64
	Shards         int
	ScanBatch      int
	Compression    boltdb.Compression
	BrotliLevel    int
	NoSync         bool
	NoFreelistSync bool
	OpenTimeout    time.Duration

	ReadCache    string
	ReadCacheMB  int
	ReadCacheTTL time.Duration
	RedisAddr    string
}

// Load reads files (default ".env", ignored when missing) and the process
// environment.
func Load(files ...string) (Config, error) {
	file := map[string]string{}
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	if len(files) > 0 {
		var err error
		if file, err = godotenv.Read(files...); err != nil {
			return Config{}, fmt.Errorf("config: read env files: %w", err)
		}
	}
	return parse(env{file: file})
}

type env struct{ file map[string]string }

func (e env) get(name string) string {
	if v, ok := os.LookupEnv(Prefix + name); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(e.file[Prefix+name])
}

func (e env) int(name string) (int, error) {
	s := e.get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: %s%s: want a non-negative integer, got %q", Prefix, name, s)
	}
	return n, nil
}

func (e env) bool(name string) (bool, error) {
	switch s := strings.ToLower(e.get(name)); s {
	case "", "0", "false", "no":
		return false, nil
	case "1", "true", "yes":
		return true, nil
	default:
		return false, fmt.Errorf("config: %s%s: want a boolean, got %q", Prefix, name, s)
	}
}

func (e env) millis(name string) (time.Duration, error) {
	n, err := e.int(name)
	return time.Duration(n) * time.Millisecond, err
}

func parse(e env) (Config, error) {
	c := Config{
		Path:      e.get("PATH"),
		Bucket:    e.get("BUCKET"),
		ReadCache: strings.ToLower(e.get("READ_CACHE")),
		RedisAddr: e.get("REDIS_ADDR"),
	}
	var errs []error
	num := func(dst *int, name string) {
		n, err := e.int(name)
		errs = append(errs, err)
		*dst = n
	}
	flag := func(dst *bool, name string) {
		b, err := e.bool(name)
		errs = append(errs, err)
		*dst = b
	}
	dur := func(dst *time.Duration, name string) {
		d, err := e.millis(name)
		errs = append(errs, err)
		*dst = d
	}
	var maxBytes int
	num(&c.MaxEntries, "MAX_ENTRIES")
	num(&maxBytes, "MAX_BYTES")
	num(&c.Shards, "SHARDS")
	num(&c.ScanBatch, "SCAN_BATCH")
	num(&c.BrotliLevel, "BROTLI_LEVEL")
	num(&c.ReadCacheMB, "READ_CACHE_MB")
	flag(&c.NoSync, "NOSYNC")
	flag(&c.NoFreelistSync, "NOFREELIST_SYNC")
	dur(&c.OpenTimeout, "OPEN_TIMEOUT_MS")
	dur(&c.ReadCacheTTL, "READ_CACHE_TTL_MS")
	c.MaxBytes = int64(maxBytes)

	if s := e.get("COMPRESSION"); s != "" {
		comp, err := boltdb.ParseCompression(s)
		errs = append(errs, err)
		c.Compression = comp
	}
	if c.BrotliLevel > 11 {
		errs = append(errs, fmt.Errorf("config: %sBROTLI_LEVEL: %d out of range 0..11", Prefix, c.BrotliLevel))
	}
	switch c.ReadCache {
	case "", ReadCacheNone, ReadCacheRistretto, ReadCacheBigcache:
	case ReadCacheRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("config: %sREAD_CACHE=redis needs %sREDIS_ADDR", Prefix, Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("config: %sREAD_CACHE: unknown kind %q", Prefix, c.ReadCache))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Apply copies c into the zero fields of opts. A configured read cache is
// built here and handed to the disk backend, which closes it.
func Apply[K, V any](ctx context.Context, c Config, opts *tierkv.Options[K, V]) error {
	if opts.Path == "" {
		opts.Path = c.Path
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = c.MaxEntries
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = c.MaxBytes
	}
	if opts.Shards == 0 {
		opts.Shards = c.Shards
	}
	if opts.ScanBatch == 0 {
		opts.ScanBatch = c.ScanBatch
	}

	d := &opts.Disk
	if d.Bucket == "" {
		d.Bucket = c.Bucket
	}
	if d.Compression == boltdb.CompressionNone {
		d.Compression = c.Compression
	}
	if d.BrotliLevel == 0 {
		d.BrotliLevel = c.BrotliLevel
	}
	if d.Timeout == 0 {
		d.Timeout = c.OpenTimeout
	}
	d.NoSync = d.NoSync || c.NoSync
	d.NoFreelistSync = d.NoFreelistSync || c.NoFreelistSync

	if d.ReadCache != nil || c.ReadCache == "" || c.ReadCache == ReadCacheNone {
		return nil
	}
	if opts.Path == "" {
		return fmt.Errorf("config: read cache %q needs a path", c.ReadCache)
	}
	rc, err := c.buildReadCache(ctx, opts.Path, d.Bucket)
	if err != nil {
		return err
	}
	d.ReadCache = rc
	return nil
}

func (c Config) buildReadCache(ctx context.Context, path, bucket string) (*readcache.Cache, error) {
	mb := c.ReadCacheMB
	if mb == 0 {
		mb = defaultReadCacheMB
	}
	ttl := c.ReadCacheTTL
	if ttl == 0 {
		ttl = defaultReadCacheTTL
	}
	ns := filepath.Base(path)
	if bucket != "" {
		ns += ":" + bucket
	}

	var (
		p       provider.Provider
		gens    genstore.GenStore
		release func()
		err     error
	)
	switch c.ReadCache {
	case ReadCacheRistretto:
		maxCost := int64(mb) << 20
		var rp *rprov.Provider
		if rp, err = rprov.New(rprov.Config{NumCounters: maxCost >> 6, MaxCost: maxCost}); err == nil {
			p, release = rp, func() { _ = rp.Close(ctx) }
		}
	case ReadCacheBigcache:
		var bp *bcprov.Provider
		if bp, err = bcprov.New(ctx, bcprov.Config{LifeWindow: ttl, HardMaxCacheSizeMB: mb}); err == nil {
			p, release = bp, func() { _ = bp.Close(ctx) }
		}
	case ReadCacheRedis:
		client := newRedisClient(c.RedisAddr)
		rg := genstore.NewRedis(client, ns, 2*ttl)
		gens = rg
		// the provider owns the client once built; until then we do
		release = func() {
			_ = rg.Close(ctx)
			_ = client.Close()
		}
		var rp *redisprov.Redis
		if rp, err = redisprov.New(redisprov.Config{Client: client, CloseClient: true}); err == nil {
			p = rp
		}
	}
	if err != nil {
		if release != nil {
			release()
		}
		return nil, fmt.Errorf("config: read cache %s: %w", c.ReadCache, err)
	}
	rc, err := newReadCache(readcache.Options{
		Namespace: ns,
		Provider:  p,
		GenStore:  gens,
		TTL:       ttl,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("config: %w", err)
	}
	return rc, nil
}
