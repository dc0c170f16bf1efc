package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/merchant-escrow/backend/internal/config"
	"github.com/merchant-escrow/backend/internal/db"
	"github.com/merchant-escrow/backend/internal/events"
	"go.uber.org/zap"
)

// Notifier — small companion service that subscribes to escrow events
// on Redis and forwards them to an external webhook. Delivery is
// best-effort: the event feed is advisory and a missed webhook never
// blocks a transition.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.WebhookURL == "" {
		log.Fatal("WEBHOOK_URL is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	bus := events.NewRedisBus(rdb, log)
	client := &http.Client{Timeout: 10 * time.Second}

	log.Info("notifier started", zap.String("webhook", cfg.WebhookURL))

	_ = bus.Subscribe(ctx, events.StreamEscrow, func(event events.Event) {
		forwardEvent(client, cfg.WebhookURL, event, log)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notifier")
	cancel()
}

func forwardEvent(client *http.Client, url string, event events.Event, log *zap.Logger) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn("failed to forward event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn("webhook returned non-2xx",
			zap.String("type", event.Type), zap.Int("status", resp.StatusCode))
		return
	}

	log.Info("event forwarded", zap.String("type", event.Type))
}
