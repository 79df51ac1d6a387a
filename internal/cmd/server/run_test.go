package serverrun

import (
	"context"
	"testing"
	"time"

	"github.com/pulsegrid/pulsegrid/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.WSAddr = "127.0.0.1:0"
	cfg.DirectAddr = "127.0.0.1:0"
	cfg.Fsync = "never"
	cfg.PollBlockMs = 50
	cfg.ShutdownTimeoutMs = 1000
	cfg.Log.Level = "error"
	return cfg
}

func TestRunDurableStartsAndStops(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunDurable(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("durable pipeline did not shut down")
	}
}

func TestRunDirectStartsAndStops(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunDirect(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("direct pipeline did not shut down")
	}
}

func TestRunDurableRejectsBadFsync(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fsync = "sometimes"
	if err := RunDurable(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an invalid fsync mode")
	}
}
