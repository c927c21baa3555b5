package server

import (
	"context"
	"testing"
	"time"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000", "127.0.0.1:0": "127.0.0.1:0"}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewHTTPServer_NoWriteTimeout(t *testing.T) {
	srv := newHTTPServer(":0", nil)
	if srv.WriteTimeout != 0 {
		t.Fatalf("WriteTimeout = %v, want 0 for streaming", srv.WriteTimeout)
	}
	if srv.ReadHeaderTimeout != readHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout = %v", srv.ReadHeaderTimeout)
	}
}

func TestShutdown_BeforeRunIsNoop(t *testing.T) {
	var s Server
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRun_ReturnsNilAfterShutdown(t *testing.T) {
	var s Server
	errc := make(chan error, 1)
	go func() { errc <- s.Run("127.0.0.1:0", nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		s.mu.Lock()
		started := s.httpServer != nil
		s.mu.Unlock()
		if started {
			break
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Shutdown")
	}
}
