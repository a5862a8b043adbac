package cmd

import (
	"context"
	"testing"
	"time"

	"wisochat/pkg/config"
	"wisochat/pkg/logger"
	"wisochat/pkg/transport/loopback"
)

func TestApplyChatFlagsOverridesRelayURL(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	applyChatFlags(cfg, chatOptions{relayURL: " ws://relay.example:9000/ws "})
	if cfg.Relay.URL != "ws://relay.example:9000/ws" {
		t.Fatalf("relay url = %q", cfg.Relay.URL)
	}

	applyChatFlags(cfg, chatOptions{})
	if cfg.Relay.URL != "ws://relay.example:9000/ws" {
		t.Fatalf("empty flag should keep relay url, got %q", cfg.Relay.URL)
	}
}

func TestNewChatLoggerDiscardsWithoutFile(t *testing.T) {
	t.Parallel()

	log, closeLog, err := newChatLogger(config.LoggingConfig{})
	if err != nil {
		t.Fatalf("newChatLogger error: %v", err)
	}
	if log.Enabled(context.Background(), 8) {
		t.Fatal("expected discard logger")
	}
	if err := closeLog(); err != nil {
		t.Fatalf("close error: %v", err)
	}
}

func TestBuildAdapterOfflineEcho(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	adapter, info, closeAdapter, err := buildAdapter(context.Background(), cfg, chatOptions{echo: true}, logger.Discard())
	if err != nil {
		t.Fatalf("buildAdapter error: %v", err)
	}
	defer closeAdapter()

	loop, ok := adapter.(*loopback.Adapter)
	if !ok {
		t.Fatalf("adapter = %T, want *loopback.Adapter", adapter)
	}
	if info.Relay != "" || info.Connected != nil {
		t.Fatalf("offline info should have no relay, got %+v", info)
	}
	if info.Title != cfg.UI.Title {
		t.Fatalf("title = %q, want %q", info.Title, cfg.UI.Title)
	}

	received := make(chan string, 1)
	sub := loop.Subscribe(func(text string) { received <- text })
	defer sub.Release()

	loop.Send("hola")
	select {
	case got := <-received:
		if got != echoPrefix+"hola" {
			t.Fatalf("echo = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestBuildAdapterTelegramRequiresToken(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if _, _, _, err := buildAdapter(context.Background(), cfg, chatOptions{telegram: true}, logger.Discard()); err == nil {
		t.Fatal("expected error without telegram token")
	}
}

func TestBuildAdapterDialFailure(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Relay.URL = "ws://127.0.0.1:1/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, _, _, err := buildAdapter(ctx, cfg, chatOptions{}, logger.Discard()); err == nil {
		t.Fatal("expected dial error for closed port")
	}
}
