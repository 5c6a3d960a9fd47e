// ABOUTME: Tests for the Server orchestrator lifecycle
// ABOUTME: Covers component wiring, startup, health endpoint and graceful shutdown

package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/config"
)

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := ln.Addr().String()
	ln.Close()

	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr: httpAddr,
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
			Seed: true,
		},
		Messages: config.MessagesConfig{
			Path: filepath.Join(dir, "messages.json"),
		},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			TokenTTL:  time.Hour,
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerNew(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	if srv.directory == nil {
		t.Error("directory should not be nil")
	}
	if srv.conversations == nil {
		t.Error("conversations should not be nil")
	}
	if srv.hub == nil {
		t.Error("hub should not be nil")
	}
	if srv.hub.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions() = %d, want 0", srv.hub.ActiveSessions())
	}
}

func TestServerRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run(ctx)
	}()

	// Wait for the health endpoint to come up.
	url := "http://" + cfg.Server.HTTPAddr + "/api/health"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() returned error on graceful shutdown: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestServerRunListenFailure(t *testing.T) {
	cfg := testConfig(t)

	// Occupy the port so Run cannot bind it.
	ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer ln.Close()

	srv, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded, want listen error")
	}
}
