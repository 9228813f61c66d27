package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/convoclient/internal/config"
	"github.com/convoclient/internal/logger"
	"github.com/convoclient/internal/protocol"
	"github.com/convoclient/internal/storage"
	"github.com/convoclient/internal/storage/memory"
	"github.com/convoclient/internal/storage/redis"
	"github.com/convoclient/internal/store"
)

func main() {
	logger.SetPrefix("clientd")
	logger.Info("starting client daemon")
	cfg := config.Load()

	if cfg.SenderID == "" {
		logger.Errorf("SENDER_ID is required")
		os.Exit(1)
	}
	if len(cfg.ConversationIDs) == 0 {
		logger.Errorf("CONVERSATION_IDS is required (comma-separated)")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var checkpoints storage.CheckpointStore
	if cfg.Redis.URL != "" {
		cli, err := redis.New(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Errorf("redis: %v", err)
			os.Exit(1)
		}
		checkpoints = cli
		logger.Info("checkpoints in redis")
	} else {
		checkpoints = memory.New()
		logger.Info("checkpoints in memory (set REDIS_URL to persist)")
	}
	defer checkpoints.Close()

	client := protocol.NewHTTPClient(cfg.RelayURL)
	mgr := store.NewManager(client, checkpoints, store.Options{
		SenderID:    cfg.SenderID,
		PageSize:    cfg.Sync.PageSize,
		MaxCached:   cfg.Sync.MaxCachedMessages,
		GraceWindow: cfg.GraceWindow(),
	})

	if err := mgr.Start(ctx); err != nil {
		logger.Errorf("stream subscribe: %v", err)
		os.Exit(1)
	}
	logger.Infof("subscribed to live stream at %s", cfg.RelayURL)

	// Начальная синхронизация: catch-up с контрольной точки плюс первая
	// страница истории каждой настроенной беседы.
	for _, convID := range cfg.ConversationIDs {
		conv := mgr.Conversation(convID)
		if err := conv.CatchUp(ctx); err != nil {
			logger.Errorf("catch-up conv=%s: %v", convID, err)
		}
		if err := conv.LoadOlder(ctx); err != nil {
			logger.Errorf("load older conv=%s: %v", convID, err)
		}
		logger.Infof("conv=%s synced, %d messages cached", convID, len(conv.Messages()))
	}

	ticker := time.NewTicker(cfg.CatchUpInterval())
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			// Живой поток обычно покрывает всё, но периодический catch-up
			// закрывает дыры после сетевых обрывов.
			for _, convID := range cfg.ConversationIDs {
				if err := mgr.Conversation(convID).CatchUp(ctx); err != nil {
					logger.Errorf("periodic catch-up conv=%s: %v", convID, err)
				}
			}
		case <-quit:
			logger.Info("shutdown signal received")
			mgr.Stop()
			logger.Info("client daemon stopped")
			return
		}
	}
}
