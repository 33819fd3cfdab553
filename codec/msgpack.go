package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is a Codec that serializes values using vmihailenco/msgpack/v5.
// The zero value is ready to use.
//
// Map ordering is not canonical unless SortedMapKeys is set, so the same value
// may produce different bytes across runs. That is fine for storage; use CBOR
// when identical bytes matter (state hashing).
type Msgpack[V any] struct {
	SortedMapKeys bool
}

func (c Msgpack[V]) Encode(v V) ([]byte, error) {
	if !c.SortedMapKeys {
		return msgpack.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
