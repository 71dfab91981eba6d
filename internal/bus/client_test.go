package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/natsserver"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
)

func TestConnectNoServers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Connect(context.Background(), "test", config.BusConfig{}, logger); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestPublishJSONAndStream(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	busCfg := config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir(), ConnectTimeout: 2000}
	srv, err := natsserver.Start(busCfg, logger)
	if err != nil {
		t.Fatalf("start embedded: %v", err)
	}
	defer srv.Shutdown()
	busCfg.Servers = []string{srv.ClientURL()}

	client, err := Connect(context.Background(), "test", busCfg, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if !client.Healthy() {
		t.Fatal("expected healthy client")
	}

	if err := client.EnsureStream(protocol.StreamSynthesis, protocol.SubjectSynthesisAll); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	if err := client.EnsureStream(protocol.StreamSynthesis, protocol.SubjectSynthesisAll); err != nil {
		t.Fatalf("ensure stream twice: %v", err)
	}

	sub, err := client.Conn().SubscribeSync(protocol.SubjectSynthesisCompleted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	event := protocol.SynthesisEvent{RequestID: "r1", Outcome: "ok", Tone: "calm", AudioBytes: 42}
	if err := client.PublishJSON(context.Background(), protocol.SubjectSynthesisCompleted, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var got protocol.SynthesisEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RequestID != "r1" || got.AudioBytes != 42 {
		t.Fatalf("unexpected event %+v", got)
	}
}
