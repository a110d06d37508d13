package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/natsserver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connectEmbedded(t *testing.T) *Client {
	t.Helper()
	cfg := config.BusConfig{
		Enabled:        true,
		Embedded:       true,
		Port:           server.RANDOM_PORT,
		StoreDir:       t.TempDir(),
		ConnectTimeout: 2000,
	}
	srv, err := natsserver.Start(cfg, testLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	client, err := Connect(context.Background(), cfg, "bus-test", testLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{Enabled: true}, "bus-test", testLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestEnsureStreamCapturesSubjects(t *testing.T) {
	client := connectEmbedded(t)
	if !client.Healthy() {
		t.Fatal("expected healthy client")
	}

	if err := client.EnsureStream("NARRATOR_TEST", []string{"narrator.test.status"}, 10); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	// A second call updates the existing stream.
	if err := client.EnsureStream("NARRATOR_TEST", []string{"narrator.test.status"}, 20); err != nil {
		t.Fatalf("update stream: %v", err)
	}

	if err := client.Conn().Publish("narrator.test.status", []byte(`{"state":"accepted"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := client.Conn().FlushTimeout(2 * time.Second); err != nil {
		t.Fatalf("flush: %v", err)
	}

	js, err := client.Conn().JetStream()
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		info, err := js.StreamInfo("NARRATOR_TEST")
		if err != nil {
			t.Fatalf("stream info: %v", err)
		}
		if info.Config.MaxMsgs != 20 {
			t.Fatalf("expected updated max msgs 20, got %d", info.Config.MaxMsgs)
		}
		if info.State.Msgs == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 stored message, got %d", info.State.Msgs)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
