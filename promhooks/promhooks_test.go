package promhooks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/tierkv"
)

func TestCounters(t *testing.T) {
	h := New(prometheus.NewRegistry(), "test")

	h.Evicted(0, true)
	h.Evicted(1, true)
	h.Evicted(1, false)
	h.LoadedThrough(3)
	h.Flushed(0, 7)
	h.Flushed(1, 3)
	h.WriteBackFailed(0, 2, errors.New("x"))

	if got := testutil.ToFloat64(h.Evictions.WithLabelValues("true")); got != 2 {
		t.Fatalf("dirty evictions=%v", got)
	}
	if got := testutil.ToFloat64(h.Evictions.WithLabelValues("false")); got != 1 {
		t.Fatalf("clean evictions=%v", got)
	}
	if got := testutil.ToFloat64(h.FlushedEntries); got != 10 {
		t.Fatalf("flushed=%v", got)
	}
	if got := testutil.ToFloat64(h.LoadThroughs); got != 1 {
		t.Fatalf("loads=%v", got)
	}
	if got := testutil.ToFloat64(h.WriteBackFailure); got != 1 {
		t.Fatalf("failures=%v", got)
	}
}

func TestMapWiring(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	h := New(reg, "")

	m, err := tierkv.New(ctx, tierkv.Options[string, int]{MaxEntries: 2, Hooks: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close(ctx)
	RegisterStats(reg, "", m)

	for _, k := range []string{"a", "b", "c", "d"} {
		_ = m.Set(ctx, k, 1)
	}
	if got := testutil.ToFloat64(h.Evictions.WithLabelValues("true")); got != 2 {
		t.Fatalf("evictions=%v", got)
	}

	want := `
# HELP tierkv_keys Live keys, resident or on disk.
# TYPE tierkv_keys gauge
tierkv_keys 4
# HELP tierkv_resident_entries Entries held in memory.
# TYPE tierkv_resident_entries gauge
tierkv_resident_entries 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "tierkv_keys", "tierkv_resident_entries"); err != nil {
		t.Fatalf("gauges: %v", err)
	}
}
