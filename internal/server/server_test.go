package server

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/issueboard/issueboard/internal/config"
	"github.com/issueboard/issueboard/internal/storage"
)

const testAPIKey = "test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  5 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Auth: config.AuthConfig{APIKey: testAPIKey},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.Options{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MigrationDir: "../../migrations",
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv, err := New(testConfig(), store, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	return srv
}

func TestGracefulShutdown(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// The listener must be serving before we cancel.
	url := "http://" + srv.Addr() + "/api/health"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	defer func() { cancel(); <-done }()

	req, _ := http.NewRequest(http.MethodOptions, "http://"+srv.Addr()+"/api/issues", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	// Browsers byte-lowercase this list per the Fetch spec, and rs/cors
	// matches it case-sensitively against the lowercased allow list.
	req.Header.Set("Access-Control-Request-Headers", "x-api-key")

	var resp *http.Response
	var err error
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err = http.DefaultClient.Do(req)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("request failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("unexpected allow-origin %q", got)
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected preflight status %d", resp.StatusCode)
	}
}
