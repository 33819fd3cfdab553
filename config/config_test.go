package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tierkv"
	"github.com/unkn0wn-root/tierkv/backend/boltdb"
	"github.com/unkn0wn-root/tierkv/readcache"
)

func writeEnv(t *testing.T, lines ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	f := writeEnv(t,
		"TIERKV_PATH=/data/state.db",
		"TIERKV_MAX_ENTRIES=1000",
		"TIERKV_MAX_BYTES=4096",
		"TIERKV_COMPRESSION=brotli",
		"TIERKV_BROTLI_LEVEL=5",
		"TIERKV_NOSYNC=yes",
		"TIERKV_OPEN_TIMEOUT_MS=250",
	)
	t.Setenv("TIERKV_MAX_ENTRIES", "50")
	t.Setenv("TIERKV_SHARDS", "16")

	c, err := Load(f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Path != "/data/state.db" || c.MaxEntries != 50 || c.MaxBytes != 4096 || c.Shards != 16 {
		t.Fatalf("config %+v", c)
	}
	if c.Compression != boltdb.CompressionBrotli || c.BrotliLevel != 5 || !c.NoSync {
		t.Fatalf("disk config %+v", c)
	}
	if c.OpenTimeout != 250*time.Millisecond {
		t.Fatalf("timeout=%v", c.OpenTimeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"int":         "TIERKV_MAX_ENTRIES=lots",
		"negative":    "TIERKV_SHARDS=-1",
		"bool":        "TIERKV_NOSYNC=maybe",
		"compression": "TIERKV_COMPRESSION=zstd",
		"level":       "TIERKV_BROTLI_LEVEL=12",
		"cache":       "TIERKV_READ_CACHE=memcached",
		"redis addr":  "TIERKV_READ_CACHE=redis",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeEnv(t, line)); err == nil {
				t.Fatalf("%q accepted", line)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestApplyKeepsExplicitOptions(t *testing.T) {
	c := Config{Path: "from-env.db", MaxEntries: 10, Shards: 8, NoSync: true, Bucket: "b"}
	opts := tierkv.Options[string, int]{Path: "explicit.db", MaxEntries: 3}
	if err := Apply(context.Background(), c, &opts); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if opts.Path != "explicit.db" || opts.MaxEntries != 3 || opts.Shards != 8 {
		t.Fatalf("opts %+v", opts)
	}
	if !opts.Disk.NoSync || opts.Disk.Bucket != "b" || opts.Disk.ReadCache != nil {
		t.Fatalf("disk %+v", opts.Disk)
	}
}

func TestApplyReadCacheNeedsPath(t *testing.T) {
	var opts tierkv.Options[string, int]
	if err := Apply(context.Background(), Config{ReadCache: ReadCacheRistretto}, &opts); err == nil {
		t.Fatalf("read cache without path accepted")
	}
}

func TestApplyBuildsWorkingReadCache(t *testing.T) {
	for _, kind := range []string{ReadCacheRistretto, ReadCacheBigcache} {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			c := Config{
				Path:        filepath.Join(t.TempDir(), "rc.db"),
				NoSync:      true,
				MaxEntries:  1,
				ReadCache:   kind,
				ReadCacheMB: 1,
			}
			var opts tierkv.Options[string, int]
			if err := Apply(ctx, c, &opts); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if opts.Disk.ReadCache == nil {
				t.Fatalf("no read cache built")
			}

			err := tierkv.Use(ctx, opts, func(m *tierkv.Map[string, int]) error {
				for i := 0; i < 5; i++ {
					if err := m.Set(ctx, "a", i); err != nil {
						return err
					}
					if err := m.Set(ctx, "b", i); err != nil {
						return err
					}
					v, ok, err := m.Get(ctx, "a")
					if err != nil || !ok || v != i {
						t.Errorf("a=%d,%v,%v want %d", v, ok, err, i)
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Use: %v", err)
			}
		})
	}
}

func TestRedisReadCacheReleasedOnFailure(t *testing.T) {
	var client *goredis.Client
	origClient, origCache := newRedisClient, newReadCache
	t.Cleanup(func() { newRedisClient, newReadCache = origClient, origCache })
	newRedisClient = func(addr string) *goredis.Client {
		client = origClient(addr)
		return client
	}
	newReadCache = func(readcache.Options) (*readcache.Cache, error) {
		return nil, errors.New("no cache today")
	}

	c := Config{Path: filepath.Join(t.TempDir(), "r.db"), ReadCache: ReadCacheRedis, RedisAddr: "127.0.0.1:0"}
	var opts tierkv.Options[string, int]
	if err := Apply(context.Background(), c, &opts); err == nil {
		t.Fatalf("Apply succeeded")
	}
	if client == nil {
		t.Fatalf("client never built")
	}
	if err := client.Ping(context.Background()).Err(); !errors.Is(err, goredis.ErrClosed) {
		t.Fatalf("client left open: ping err=%v", err)
	}
}
