package memory

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/tierkv/backend"
	"github.com/unkn0wn-root/tierkv/backend/backendtest"
)

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(*testing.T) backend.Backend { return New() })
}

func TestNotDurable(t *testing.T) {
	s := New()
	defer s.Close(context.Background())
	if s.Durable() || s.Path() != "" {
		t.Fatalf("memory store must report non-durable with no path")
	}
}
