package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSamplingAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(l, Options{EvictEvery: 3})

	for i := 0; i < 9; i++ {
		h.Evicted(1, true)
	}
	if n := strings.Count(buf.String(), "tierkv.evicted"); n != 3 {
		t.Fatalf("sampled evictions=%d want 3", n)
	}

	buf.Reset()
	h.WriteBackFailed(2, 5, errors.New("disk full"))
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "entries=5") || !strings.Contains(out, `err="disk full"`) {
		t.Fatalf("output %q", out)
	}

	buf.Reset()
	h.ShardPoisoned(0, "boom")
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "panic=boom") {
		t.Fatalf("output %q", buf.String())
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.Evicted(0, false)
	h.LoadedThrough(0)
	h.Flushed(0, 1)
	h.WriteBackFailed(0, 1, errors.New("x"))
	h.ShardPoisoned(0, 1)
}
