// Package backendtest holds a conformance suite every backend.Backend must pass.
package backendtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/unkn0wn-root/tierkv/backend"
)

// Run exercises b's contract. open must return a fresh, empty backend.
func Run(t *testing.T, open func(t *testing.T) backend.Backend) {
	t.Run("GetPutDelete", func(t *testing.T) { testGetPutDelete(t, open(t)) })
	t.Run("ScanOrder", func(t *testing.T) { testScanOrder(t, open(t)) })
	t.Run("ScanRange", func(t *testing.T) { testScanRange(t, open(t)) })
	t.Run("ScanStops", func(t *testing.T) { testScanStops(t, open(t)) })
	t.Run("WriteBatch", func(t *testing.T) { testWriteBatch(t, open(t)) })
	t.Run("ClosedIsUnavailable", func(t *testing.T) { testClosed(t, open(t)) })
}

func testGetPutDelete(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	defer b.Close(ctx)

	if _, ok, err := b.Get(ctx, []byte("k")); err != nil || ok {
		t.Fatalf("Get on empty: ok=%v err=%v", ok, err)
	}
	val := []byte("v1")
	if err := b.Put(ctx, []byte("k"), val); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val[0] = 'X' // backend must not alias caller memory
	got, ok, err := b.Get(ctx, []byte("k"))
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get: got=%q ok=%v err=%v", got, ok, err)
	}
	if err := b.Put(ctx, []byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if got, _, _ := b.Get(ctx, []byte("k")); string(got) != "v2" {
		t.Fatalf("overwrite lost, got %q", got)
	}
	if n, err := b.Len(ctx); err != nil || n != 1 {
		t.Fatalf("Len: n=%d err=%v", n, err)
	}
	if err := b.Delete(ctx, []byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Delete(ctx, []byte("missing")); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, ok, _ := b.Get(ctx, []byte("k")); ok {
		t.Fatalf("key still present after Delete")
	}
	if n, _ := b.Len(ctx); n != 0 {
		t.Fatalf("Len after delete = %d", n)
	}
}

func fill(t *testing.T, b backend.Backend, n int) [][]byte {
	t.Helper()
	keys := make([][]byte, 0, n)
	ops := make([]backend.Op, 0, n)
	// insert in reverse so order comes from the backend, not insertion
	for i := n - 1; i >= 0; i-- {
		k := []byte(fmt.Sprintf("key-%03d", i))
		ops = append(ops, backend.Put(k, []byte(fmt.Sprintf("val-%d", i))))
	}
	for i := 0; i < n; i++ {
		keys = append(keys, []byte(fmt.Sprintf("key-%03d", i)))
	}
	if err := b.WriteBatch(context.Background(), ops); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	return keys
}

func collect(t *testing.T, b backend.Backend, r backend.Range) []string {
	t.Helper()
	var out []string
	err := b.Scan(context.Background(), r, func(k, _ []byte) bool {
		out = append(out, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return out
}

func testScanOrder(t *testing.T, b backend.Backend) {
	defer b.Close(context.Background())
	keys := fill(t, b, 50)

	fwd := collect(t, b, backend.Range{})
	if len(fwd) != len(keys) {
		t.Fatalf("forward scan len=%d want %d", len(fwd), len(keys))
	}
	for i, k := range keys {
		if fwd[i] != string(k) {
			t.Fatalf("forward[%d]=%q want %q", i, fwd[i], k)
		}
	}
	rev := collect(t, b, backend.Range{Reverse: true})
	for i := range keys {
		if rev[i] != string(keys[len(keys)-1-i]) {
			t.Fatalf("reverse[%d]=%q want %q", i, rev[i], keys[len(keys)-1-i])
		}
	}
}

func testScanRange(t *testing.T, b backend.Backend) {
	defer b.Close(context.Background())
	fill(t, b, 20)

	cases := []struct {
		name string
		r    backend.Range
		want []string
	}{
		{"half-open", backend.Range{Start: []byte("key-005"), End: []byte("key-008")}, []string{"key-005", "key-006", "key-007"}},
		{"start-between", backend.Range{Start: []byte("key-0055"), End: []byte("key-008")}, []string{"key-006", "key-007"}},
		{"reverse", backend.Range{Start: []byte("key-005"), End: []byte("key-008"), Reverse: true}, []string{"key-007", "key-006", "key-005"}},
		{"reverse-open-start", backend.Range{End: []byte("key-002"), Reverse: true}, []string{"key-001", "key-000"}},
		{"open-end", backend.Range{Start: []byte("key-018")}, []string{"key-018", "key-019"}},
		{"empty", backend.Range{Start: []byte("key-010"), End: []byte("key-010")}, nil},
		{"past-end", backend.Range{Start: []byte("zzz")}, nil},
	}
	for _, tc := range cases {
		got := collect(t, b, tc.r)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
			}
		}
	}
}

func testScanStops(t *testing.T, b backend.Backend) {
	defer b.Close(context.Background())
	fill(t, b, 10)
	n := 0
	err := b.Scan(context.Background(), backend.Range{}, func(_, _ []byte) bool {
		n++
		return n < 3
	})
	if err != nil || n != 3 {
		t.Fatalf("Scan should stop after 3, n=%d err=%v", n, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Scan(ctx, backend.Range{}, func(_, _ []byte) bool { return true }); !errors.Is(err, context.Canceled) {
		t.Fatalf("Scan with canceled ctx: want context.Canceled, got %v", err)
	}
}

func testWriteBatch(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	defer b.Close(ctx)
	fill(t, b, 3)

	err := b.WriteBatch(ctx, []backend.Op{
		backend.Delete([]byte("key-000")),
		backend.Put([]byte("key-001"), []byte("new")),
		backend.Put([]byte("key-100"), []byte("added")),
	})
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if _, ok, _ := b.Get(ctx, []byte("key-000")); ok {
		t.Fatalf("batch delete not applied")
	}
	if v, _, _ := b.Get(ctx, []byte("key-001")); !bytes.Equal(v, []byte("new")) {
		t.Fatalf("batch put not applied, got %q", v)
	}
	if n, _ := b.Len(ctx); n != 3 {
		t.Fatalf("Len after batch = %d want 3", n)
	}

	// an invalid op must abort the whole batch
	err = b.WriteBatch(ctx, []backend.Op{
		backend.Put([]byte("key-200"), []byte("x")),
		{Kind: 0, Key: []byte("key-201")},
	})
	if err == nil {
		t.Fatalf("expected error for invalid op")
	}
	if _, ok, _ := b.Get(ctx, []byte("key-200")); ok {
		t.Fatalf("failed batch was partially applied")
	}
}

func testClosed(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := b.Get(ctx, []byte("k")); !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("Get after Close: want ErrUnavailable, got %v", err)
	}
	if err := b.Put(ctx, []byte("k"), []byte("v")); !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("Put after Close: want ErrUnavailable, got %v", err)
	}
}
