// Package codec converts typed values to and from the bytes persisted by a
// tierkv backend.
//
// A Codec must be deterministic and total over its domain, and Decode(Encode(v))
// must reproduce v. Keys are handled separately by package keycodec, which
// additionally preserves ordering.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
