package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestManagedServerReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := DefaultServerConfig(ln.Addr().String(), http.NewServeMux(), zap.NewNop())
	m := NewManagedServer("api", cfg)
	m.Start()

	if err := m.WaitForStartup(2 * time.Second); err == nil {
		t.Fatal("expected startup to fail on an occupied port")
	}

	// Shutdown after a failed start must be a no-op.
	m.Shutdown(context.Background())
}
