// Package boltdb is the durable Backend, built on go.etcd.io/bbolt.
//
// Every WriteBatch runs inside one bbolt read-write transaction, so a batch is
// either fully committed or absent after a crash. Values may be compressed with
// brotli; the choice is recorded in the file on creation and the recorded
// setting wins when the file is reopened. Keys are stored behind a one-byte
// prefix because bbolt rejects empty keys; the prefix is constant, so key order
// is unchanged.
package boltdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	bolt "go.etcd.io/bbolt"

	"github.com/unkn0wn-root/tierkv/backend"
	"github.com/unkn0wn-root/tierkv/readcache"
)

const (
	keyPrefix     byte = 'k'
	defaultBucket      = "tierkv"
	metaBucket         = "tierkv.meta"
)

var metaCompression = []byte("compression")

// Compression selects how values are stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionBrotli
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression accepts "", "none" and "brotli".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "brotli":
		return CompressionBrotli, nil
	}
	return 0, fmt.Errorf("boltdb: unknown compression %q", s)
}

// Options are passed through to bbolt where they have a bbolt counterpart.
type Options struct {
	// Bucket holds the data; several stores may share one file with distinct buckets.
	Bucket string
	// FileMode for a newly created file; 0 => 0600.
	FileMode os.FileMode
	// Timeout waiting for the file lock; 0 => 1s.
	Timeout         time.Duration
	NoSync          bool
	NoFreelistSync  bool
	InitialMmapSize int

	// Compression applies to newly created stores only.
	Compression Compression
	// BrotliLevel 0..11; 0 => brotli.DefaultCompression.
	BrotliLevel int

	// ReadCache, when set, is consulted by Get and invalidated by every write.
	// The store closes it.
	ReadCache *readcache.Cache
}

// Store is a bbolt-backed backend.Backend.
type Store struct {
	db          *bolt.DB
	ownsDB      bool
	path        string
	bucket      []byte
	compression Compression
	level       int
	rc          *readcache.Cache
	closed      atomic.Bool
}

var _ backend.Backend = (*Store)(nil)

// Open opens or creates the bbolt file at path.
func Open(path string, opts Options) (*Store, error) {
	mode := opts.FileMode
	if mode == 0 {
		mode = 0o600
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(path, mode, &bolt.Options{
		Timeout:         timeout,
		NoSync:          opts.NoSync,
		NoFreelistSync:  opts.NoFreelistSync,
		InitialMmapSize: opts.InitialMmapSize,
	})
	if err != nil {
		closeReadCache(opts.ReadCache)
		return nil, unavailable("open "+path, err)
	}
	s, err := newStore(db, opts)
	if err != nil {
		_ = db.Close()
		closeReadCache(opts.ReadCache)
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an already open database. The caller keeps ownership of db;
// Close only releases the read cache.
func New(db *bolt.DB, opts Options) (*Store, error) {
	return newStore(db, opts)
}

func newStore(db *bolt.DB, opts Options) (*Store, error) {
	s := &Store{
		db:     db,
		path:   db.Path(),
		bucket: []byte(defaultBucket),
		level:  opts.BrotliLevel,
		rc:     opts.ReadCache,
	}
	if opts.Bucket != "" {
		s.bucket = []byte(opts.Bucket)
	}
	if s.level == 0 {
		s.level = brotli.DefaultCompression
	}
	if opts.Compression > CompressionBrotli {
		return nil, fmt.Errorf("boltdb: invalid compression %d", opts.Compression)
	}
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}
		mk := s.metaKey()
		if stored := meta.Get(mk); len(stored) == 1 {
			s.compression = Compression(stored[0])
			return nil
		}
		s.compression = opts.Compression
		return meta.Put(mk, []byte{byte(s.compression)})
	})
	if err != nil {
		return nil, unavailable("init buckets", err)
	}
	return s, nil
}

// compression is recorded per data bucket
func (s *Store) metaKey() []byte {
	return append(append([]byte(nil), metaCompression...), append([]byte{':'}, s.bucket...)...)
}

// Compression reports the setting in effect for this bucket.
func (s *Store) Compression() Compression { return s.compression }

func (s *Store) Durable() bool { return true }
func (s *Store) Path() string  { return s.path }

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}
	if s.rc != nil {
		if raw, ok := s.rc.Get(ctx, key); ok {
			return raw, true, nil
		}
	}
	var obs uint64
	if s.rc != nil {
		obs = s.rc.Snapshot(ctx, key)
	}

	var (
		raw   []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.dataBucket(tx)
		if err != nil {
			return err
		}
		// a cursor tells an empty value apart from a missing key
		pk := prefixed(key)
		k, v := b.Cursor().Seek(pk)
		if !bytes.Equal(k, pk) {
			return nil
		}
		found = true
		raw, err = s.unpack(v)
		return err
	})
	if err != nil {
		return nil, false, unavailable("get", err)
	}
	if !found {
		return nil, false, nil
	}
	if s.rc != nil {
		s.rc.Fill(ctx, key, obs, raw)
	}
	return raw, true, nil
}

func (s *Store) Put(ctx context.Context, key, value []byte) error {
	return s.WriteBatch(ctx, []backend.Op{backend.Put(key, value)})
}

func (s *Store) Delete(ctx context.Context, key []byte) error {
	return s.WriteBatch(ctx, []backend.Op{backend.Delete(key)})
}

// WriteBatch commits ops in a single bbolt transaction.
func (s *Store) WriteBatch(ctx context.Context, ops []backend.Op) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	// compress outside the transaction; bbolt allows one writer at a time
	packed := make([][]byte, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case backend.OpPut:
			v, err := s.pack(op.Value)
			if err != nil {
				return fmt.Errorf("boltdb: compress: %w", err)
			}
			packed[i] = v
		case backend.OpDelete:
		default:
			return fmt.Errorf("boltdb: batch op %d: unknown kind %d", i, op.Kind)
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.dataBucket(tx)
		if err != nil {
			return err
		}
		for i, op := range ops {
			k := prefixed(op.Key)
			if op.Kind == backend.OpPut {
				err = b.Put(k, packed[i])
			} else {
				err = b.Delete(k)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("write batch", err)
	}

	if s.rc != nil {
		keys := make([][]byte, len(ops))
		for i, op := range ops {
			keys[i] = op.Key
		}
		if err := s.rc.Invalidate(ctx, keys...); err != nil {
			return unavailable("invalidate read cache", err)
		}
	}
	return nil
}

// Scan runs in one read transaction. The read cache is bypassed: scans would
// only churn it.
func (s *Store) Scan(ctx context.Context, r backend.Range, fn func(k, v []byte) bool) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var stop error
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.dataBucket(tx)
		if err != nil {
			return err
		}
		c := b.Cursor()

		var k, v []byte
		if !r.Reverse {
			if r.Start != nil {
				k, v = c.Seek(prefixed(r.Start))
			} else {
				k, v = c.First()
			}
		} else {
			if r.End != nil {
				if k, v = c.Seek(prefixed(r.End)); k == nil {
					k, v = c.Last()
				} else {
					k, v = c.Prev()
				}
			} else {
				k, v = c.Last()
			}
		}

		for ; k != nil; k, v = step(c, r.Reverse) {
			uk := k[1:]
			if !r.Reverse && r.End != nil && bytes.Compare(uk, r.End) >= 0 {
				return nil
			}
			if r.Reverse && r.Start != nil && bytes.Compare(uk, r.Start) < 0 {
				return nil
			}
			if stop = ctx.Err(); stop != nil {
				return nil
			}
			raw, err := s.unpack(v)
			if err != nil {
				return err
			}
			if !fn(uk, raw) {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("scan", err)
	}
	return stop
}

func step(c *bolt.Cursor, reverse bool) ([]byte, []byte) {
	if reverse {
		return c.Prev()
	}
	return c.Next()
}

func (s *Store) Len(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.dataBucket(tx)
		if err != nil {
			return err
		}
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, unavailable("len", err)
	}
	return n, nil
}

// Sync forces an fdatasync; only useful with NoSync.
func (s *Store) Sync() error {
	if err := s.db.Sync(); err != nil {
		return unavailable("sync", err)
	}
	return nil
}

// Close is idempotent.
func (s *Store) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if s.rc != nil {
		errs = append(errs, s.rc.Close(ctx))
	}
	if s.ownsDB {
		if err := s.db.Close(); err != nil {
			errs = append(errs, unavailable("close", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return unavailable("use", bolt.ErrDatabaseNotOpen)
	}
	return ctx.Err()
}

func (s *Store) dataBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket(s.bucket)
	if b == nil {
		return nil, bolt.ErrBucketNotFound
	}
	return b, nil
}

// pack returns a slice bbolt may keep until commit; callers never reuse it.
func (s *Store) pack(v []byte) ([]byte, error) {
	if s.compression != CompressionBrotli {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, s.level)
	if _, err := w.Write(v); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unpack returns a slice that outlives the transaction.
func (s *Store) unpack(v []byte) ([]byte, error) {
	if s.compression != CompressionBrotli {
		return append([]byte(nil), v...), nil
	}
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(v)))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

// closeReadCache releases a read cache handed to a store that failed to open.
func closeReadCache(rc *readcache.Cache) {
	if rc != nil {
		_ = rc.Close(context.Background())
	}
}

func prefixed(key []byte) []byte {
	k := make([]byte, 0, len(key)+1)
	k = append(k, keyPrefix)
	return append(k, key...)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("boltdb: %s: %w: %w", op, backend.ErrUnavailable, err)
}
