// Package tierkv implements a hybrid key-value map that keeps hot entries in
// process memory and the rest in an embedded ordered store on disk.
//
// Components:
//   - keycodec.Codec[K]: order-preserving key encoding. Byte order of encoded
//     keys equals the natural order of K, so disk scans come back sorted.
//   - codec.Codec[V]: value (de)serialization, CBOR by default.
//   - backend.Backend: the lower tier. backend/memory for pure in-memory use,
//     backend/boltdb for a durable bbolt file.
//   - Map[K, V]: the public map. An in-memory entry table, partitioned into
//     shards, holds resident values and pending deletes (tombstones).
//
// Tiering:
//
// An entry is Resident (value in memory, maybe dirty), OnDisk (only in the
// backend) or Absent. Reads of an OnDisk key load it through and make it
// resident. When the table grows past MaxEntries or MaxBytes the least
// recently used entries are evicted; dirty ones are written back first.
// Flush writes every dirty entry, one atomic batch per shard.
//
// Durability:
//
// Writes are buffered in memory until evicted, flushed or the map is closed.
// After a successful Flush every completed write is durable; a crash before
// that may lose unflushed writes but never tears a flushed batch.
//
// Usage:
//
//	err := tierkv.Use(ctx, tierkv.Options[string, Account]{
//	    Path:       "state.db",
//	    MaxEntries: 100_000,
//	}, func(m *tierkv.Map[string, Account]) error {
//	    _, _, err := m.Insert(ctx, "alice", Account{Balance: 10})
//	    return err
//	})
package tierkv
