package presence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/bus"
	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/natsserver"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
)

func startBus(t *testing.T) config.BusConfig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	busCfg := config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir(), ConnectTimeout: 2000}
	srv, err := natsserver.Start(busCfg, logger)
	if err != nil {
		t.Fatalf("start embedded: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	busCfg.Servers = []string{srv.ClientURL()}
	return busCfg
}

func connect(t *testing.T, busCfg config.BusConfig, name string) *bus.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(context.Background(), name, busCfg, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func opts(id, ttsMode string) Options {
	return Options{
		InstanceID: id,
		Service:    "tts-gateway",
		Backends: []protocol.Backend{
			{Kind: "rewrite", Mode: "mock"},
			{Kind: "tts", Mode: ttsMode},
		},
		Interval: 30 * time.Millisecond,
		Timeout:  150 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRegistryTracksPeers(t *testing.T) {
	busCfg := startBus(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(context.Background(), connect(t, busCfg, "a"), opts("gw-a", "google"), logger)
	if err != nil {
		t.Fatalf("new registry a: %v", err)
	}
	defer a.Close()
	if !a.Healthy() {
		t.Fatal("registry should be healthy right after announcing")
	}

	b, err := New(context.Background(), connect(t, busCfg, "b"), opts("gw-b", "elevenlabs"), logger)
	if err != nil {
		t.Fatalf("new registry b: %v", err)
	}

	waitFor(t, "a to see b", func() bool { return len(a.Query(WithBackend("tts", "elevenlabs"))) == 1 })
	waitFor(t, "b to learn a's backends", func() bool { return len(b.Query(WithBackend("tts", "google"))) == 1 })

	b.Close()
	waitFor(t, "b to go silent", func() bool {
		peers := a.Query(func(inst Instance) bool { return inst.ID == "gw-b" })
		return len(peers) == 1 && !peers[0].Healthy
	})
	if !a.Healthy() {
		t.Fatal("a should keep seeing its own heartbeats")
	}
	if got := len(a.Query(HealthyOnly)); got != 1 {
		t.Fatalf("expected one healthy instance, got %d", got)
	}
}

func TestRegistryRejectsBadOptions(t *testing.T) {
	busCfg := startBus(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := connect(t, busCfg, "x")

	if _, err := New(context.Background(), client, Options{Interval: time.Second, Timeout: 2 * time.Second}, logger); err == nil {
		t.Fatal("expected error without instance id")
	}
	bad := opts("gw", "mock")
	bad.Timeout = bad.Interval
	if _, err := New(context.Background(), client, bad, logger); err == nil {
		t.Fatal("expected error when timeout does not exceed interval")
	}
}
