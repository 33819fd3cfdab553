package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/tierkv"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("d", nil)
	l.Info("i", tierkv.Fields{"shards": 8})
	l.Warn("w", tierkv.Fields{"err": errors.New("disk full")})
	l.Error("e", tierkv.Fields{"b": 1, "a": 2})

	entries := logs.AllUntimed()
	if len(entries) != 4 {
		t.Fatalf("got %d entries", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d level=%v", i, e.Level)
		}
		if e.LoggerName != "tierkv" {
			t.Fatalf("logger name=%q", e.LoggerName)
		}
	}
	if got := entries[1].ContextMap()["shards"]; got != int64(8) {
		t.Fatalf("shards=%v (%T)", got, got)
	}
	if got := entries[2].ContextMap()["err"]; got != "disk full" {
		t.Fatalf("err=%v", got)
	}
	if ctx := entries[3].Context; ctx[0].Key != "a" || ctx[1].Key != "b" {
		t.Fatalf("fields not sorted: %v", ctx)
	}
}
