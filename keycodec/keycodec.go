// Package keycodec encodes map keys into bytes whose lexicographic order
// matches the keys' natural order.
//
// The disk backend and merged iteration compare keys only as bytes, so a
// key codec that does not preserve order silently breaks iteration order.
// For that reason the package only ships encodings that do, and For rejects
// every other key type.
package keycodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnorderedKey is returned by For when K has no order-preserving encoding.
	ErrUnorderedKey = errors.New("keycodec: key type has no order-preserving encoding")
	// ErrMalformedKey is returned when stored bytes do not decode to a key.
	ErrMalformedKey = errors.New("keycodec: malformed key")
)

// Codec converts keys to order-preserving bytes and back.
// For all a < b: bytes.Compare(EncodeKey(a), EncodeKey(b)) < 0.
type Codec[K any] interface {
	EncodeKey(K) ([]byte, error)
	DecodeKey([]byte) (K, error)
}

// For returns the built-in codec for K, or ErrUnorderedKey.
func For[K any]() (Codec[K], error) {
	var zero K
	var c any
	switch any(zero).(type) {
	case string:
		c = String{}
	case []byte:
		c = Bytes{}
	case uint64:
		c = Uint64{}
	case uint32:
		c = Uint32{}
	case uint16:
		c = Uint16{}
	case uint8:
		c = Uint8{}
	case uint:
		c = Uint{}
	case int64:
		c = Int64{}
	case int32:
		c = Int32{}
	case int16:
		c = Int16{}
	case int8:
		c = Int8{}
	case int:
		c = Int{}
	case float64:
		c = Float64{}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnorderedKey, zero)
	}
	return c.(Codec[K]), nil
}

// String keys are stored as their raw bytes; Go compares strings bytewise,
// so the order is preserved as is.
type String struct{}

func (String) EncodeKey(s string) ([]byte, error) { return []byte(s), nil }
func (String) DecodeKey(b []byte) (string, error) { return string(b), nil }

// Bytes keys are copied verbatim.
type Bytes struct{}

func (Bytes) EncodeKey(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }
func (Bytes) DecodeKey(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// Uint64 is fixed-width big-endian.
type Uint64 struct{}

func (Uint64) EncodeKey(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), v), nil
}

func (Uint64) DecodeKey(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, malformed("uint64", b)
	}
	return binary.BigEndian.Uint64(b), nil
}

type Uint32 struct{}

func (Uint32) EncodeKey(v uint32) ([]byte, error) {
	return binary.BigEndian.AppendUint32(make([]byte, 0, 4), v), nil
}

func (Uint32) DecodeKey(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, malformed("uint32", b)
	}
	return binary.BigEndian.Uint32(b), nil
}

type Uint16 struct{}

func (Uint16) EncodeKey(v uint16) ([]byte, error) {
	return binary.BigEndian.AppendUint16(make([]byte, 0, 2), v), nil
}

func (Uint16) DecodeKey(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, malformed("uint16", b)
	}
	return binary.BigEndian.Uint16(b), nil
}

type Uint8 struct{}

func (Uint8) EncodeKey(v uint8) ([]byte, error) { return []byte{v}, nil }
func (Uint8) DecodeKey(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, malformed("uint8", b)
	}
	return b[0], nil
}

// Uint is always stored as 8 bytes so files move between 32 and 64-bit hosts.
type Uint struct{}

func (Uint) EncodeKey(v uint) ([]byte, error) { return Uint64{}.EncodeKey(uint64(v)) }
func (Uint) DecodeKey(b []byte) (uint, error) {
	v, err := Uint64{}.DecodeKey(b)
	if err != nil {
		return 0, err
	}
	if uint64(uint(v)) != v {
		return 0, malformed("uint", b)
	}
	return uint(v), nil
}

// Int64 flips the sign bit so negatives sort before positives.
type Int64 struct{}

func (Int64) EncodeKey(v int64) ([]byte, error) {
	return Uint64{}.EncodeKey(uint64(v) ^ (1 << 63))
}

func (Int64) DecodeKey(b []byte) (int64, error) {
	u, err := Uint64{}.DecodeKey(b)
	if err != nil {
		return 0, malformed("int64", b)
	}
	return int64(u ^ (1 << 63)), nil
}

type Int32 struct{}

func (Int32) EncodeKey(v int32) ([]byte, error) {
	return Uint32{}.EncodeKey(uint32(v) ^ (1 << 31))
}

func (Int32) DecodeKey(b []byte) (int32, error) {
	u, err := Uint32{}.DecodeKey(b)
	if err != nil {
		return 0, malformed("int32", b)
	}
	return int32(u ^ (1 << 31)), nil
}

type Int16 struct{}

func (Int16) EncodeKey(v int16) ([]byte, error) {
	return Uint16{}.EncodeKey(uint16(v) ^ (1 << 15))
}

func (Int16) DecodeKey(b []byte) (int16, error) {
	u, err := Uint16{}.DecodeKey(b)
	if err != nil {
		return 0, malformed("int16", b)
	}
	return int16(u ^ (1 << 15)), nil
}

type Int8 struct{}

func (Int8) EncodeKey(v int8) ([]byte, error) { return []byte{uint8(v) ^ 0x80}, nil }
func (Int8) DecodeKey(b []byte) (int8, error) {
	if len(b) != 1 {
		return 0, malformed("int8", b)
	}
	return int8(b[0] ^ 0x80), nil
}

// Int is stored as 8 bytes, like Uint.
type Int struct{}

func (Int) EncodeKey(v int) ([]byte, error) { return Int64{}.EncodeKey(int64(v)) }
func (Int) DecodeKey(b []byte) (int, error) {
	v, err := Int64{}.DecodeKey(b)
	if err != nil {
		return 0, err
	}
	if int64(int(v)) != v {
		return 0, malformed("int", b)
	}
	return int(v), nil
}

// Float64 maps IEEE-754 bits onto a total order: positives get the sign bit
// set, negatives are inverted. NaN has no place in that order and is rejected.
// -0 and +0 are distinct keys (-0 sorts first).
type Float64 struct{}

func (Float64) EncodeKey(f float64) ([]byte, error) {
	if math.IsNaN(f) {
		return nil, errors.New("keycodec: NaN is not an ordered key")
	}
	u := math.Float64bits(f)
	if u&(1<<63) != 0 {
		u = ^u
	} else {
		u |= 1 << 63
	}
	return Uint64{}.EncodeKey(u)
}

func (Float64) DecodeKey(b []byte) (float64, error) {
	u, err := Uint64{}.DecodeKey(b)
	if err != nil {
		return 0, malformed("float64", b)
	}
	if u&(1<<63) != 0 {
		u &^= 1 << 63
	} else {
		u = ^u
	}
	return math.Float64frombits(u), nil
}

func malformed(kind string, b []byte) error {
	return fmt.Errorf("%w: %s from %d bytes", ErrMalformedKey, kind, len(b))
}
