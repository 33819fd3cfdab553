package keycodec

import (
	"bytes"
	"errors"
	"math"
	"sort"
	"testing"
)

func checkOrdered[K any](t *testing.T, c Codec[K], sorted []K, eq func(a, b K) bool) {
	t.Helper()
	prev := []byte(nil)
	for i, k := range sorted {
		b, err := c.EncodeKey(k)
		if err != nil {
			t.Fatalf("EncodeKey(%v): %v", k, err)
		}
		if i > 0 && bytes.Compare(prev, b) >= 0 {
			t.Fatalf("order broken between %v and %v: %x >= %x", sorted[i-1], k, prev, b)
		}
		got, err := c.DecodeKey(b)
		if err != nil {
			t.Fatalf("DecodeKey(%x): %v", b, err)
		}
		if !eq(got, k) {
			t.Fatalf("round-trip: got %v want %v", got, k)
		}
		prev = b
	}
}

func same[K comparable](a, b K) bool { return a == b }

func TestSignedOrder(t *testing.T) {
	checkOrdered[int64](t, Int64{}, []int64{math.MinInt64, -1 << 40, -2, -1, 0, 1, 2, 1 << 40, math.MaxInt64}, same[int64])
	checkOrdered[int32](t, Int32{}, []int32{math.MinInt32, -5, 0, 5, math.MaxInt32}, same[int32])
	checkOrdered[int16](t, Int16{}, []int16{math.MinInt16, -1, 0, 1, math.MaxInt16}, same[int16])
	checkOrdered[int8](t, Int8{}, []int8{math.MinInt8, -1, 0, 1, math.MaxInt8}, same[int8])
	checkOrdered[int](t, Int{}, []int{-1000, -1, 0, 1, 1000}, same[int])
}

func TestUnsignedOrder(t *testing.T) {
	checkOrdered[uint64](t, Uint64{}, []uint64{0, 1, 255, 256, 1 << 32, math.MaxUint64}, same[uint64])
	checkOrdered[uint32](t, Uint32{}, []uint32{0, 1, 255, 256, math.MaxUint32}, same[uint32])
	checkOrdered[uint16](t, Uint16{}, []uint16{0, 1, 255, 256, math.MaxUint16}, same[uint16])
	checkOrdered[uint8](t, Uint8{}, []uint8{0, 1, 127, 128, 255}, same[uint8])
	checkOrdered[uint](t, Uint{}, []uint{0, 7, 1 << 20}, same[uint])
}

func TestFloatOrder(t *testing.T) {
	checkOrdered[float64](t, Float64{}, []float64{
		math.Inf(-1), -math.MaxFloat64, -1.5, -math.SmallestNonzeroFloat64, math.Copysign(0, -1),
		0, math.SmallestNonzeroFloat64, 1.5, math.MaxFloat64, math.Inf(1),
	}, func(a, b float64) bool { return math.Float64bits(a) == math.Float64bits(b) })

	if _, err := (Float64{}).EncodeKey(math.NaN()); err == nil {
		t.Fatalf("NaN must be rejected")
	}
}

func TestStringOrder(t *testing.T) {
	keys := []string{"", "a", "ab", "abc", "b", "ba", "z", "\xff"}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	checkOrdered[string](t, String{}, sorted, same[string])
	checkOrdered[[]byte](t, Bytes{}, [][]byte{{}, {0}, {0, 0}, {1}, {0xff}}, func(a, b []byte) bool { return bytes.Equal(a, b) })
}

func TestDecodeRejectsWrongWidth(t *testing.T) {
	if _, err := (Uint64{}).DecodeKey([]byte{1, 2, 3}); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("want ErrMalformedKey, got %v", err)
	}
	if _, err := (Int32{}).DecodeKey(nil); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("want ErrMalformedKey, got %v", err)
	}
}

func TestFor(t *testing.T) {
	if c, err := For[uint64](); err != nil || c == nil {
		t.Fatalf("For[uint64]: c=%v err=%v", c, err)
	}
	if c, err := For[string](); err != nil || c == nil {
		t.Fatalf("For[string]: c=%v err=%v", c, err)
	}
	if c, err := For[[]byte](); err != nil || c == nil {
		t.Fatalf("For[[]byte]: c=%v err=%v", c, err)
	}
	type point struct{ X, Y int }
	if _, err := For[point](); !errors.Is(err, ErrUnorderedKey) {
		t.Fatalf("want ErrUnorderedKey for struct key, got %v", err)
	}
	if _, err := For[float32](); !errors.Is(err, ErrUnorderedKey) {
		t.Fatalf("want ErrUnorderedKey for float32 key, got %v", err)
	}
}
