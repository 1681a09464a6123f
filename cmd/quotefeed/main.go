package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Aidin1998/quotefeed/api"
	"github.com/Aidin1998/quotefeed/internal/config"
	"github.com/Aidin1998/quotefeed/internal/feedclient"
	"github.com/Aidin1998/quotefeed/internal/pubsub"
	"github.com/Aidin1998/quotefeed/internal/quotecache"
	"github.com/Aidin1998/quotefeed/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Create logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Load configuration
	cfg, err := config.Load(os.Getenv("QUOTEFEED_CONFIG"))
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if len(cfg.Cache.Symbols) == 0 {
		zapLogger.Fatal("No symbols configured; set cache.symbols or QUOTEFEED_CACHE_SYMBOLS")
	}

	// Create distribution backend
	backend, err := pubsub.New(cfg.PubSub.Backend, cfg.PubSub.RedisAddr,
		cfg.PubSub.KafkaBrokers, cfg.PubSub.KafkaTopic, cfg.PubSub.NATSURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create pubsub backend", zap.Error(err))
	}

	// Create feed client and quote cache
	client := feedclient.New(feedclient.Config{
		URL:                   cfg.Feed.URL,
		APIKey:                cfg.Feed.APIKey,
		HeartbeatInterval:     cfg.Feed.HeartbeatInterval,
		AutoReconnect:         cfg.Feed.AutoReconnect,
		MaxReconnectAttempts:  cfg.Feed.MaxReconnectAttempts,
		InitialReconnectDelay: cfg.Feed.InitialReconnectDelay,
	}, zapLogger)

	adapter := quotecache.New(client, quotecache.AdapterConfig{
		Dataset:        cfg.Feed.Dataset,
		StaleThreshold: cfg.Cache.StaleThreshold,
		PublishUpdates: cfg.Cache.PublishUpdates,
		BackendName:    cfg.PubSub.Backend,
	}, backend, zapLogger)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	if err := adapter.Connect(connectCtx, cfg.Cache.Symbols, cfg.Feed.Dataset); err != nil {
		cancelConnect()
		zapLogger.Fatal("Failed to connect quote cache", zap.Error(err))
	}
	cancelConnect()

	// Apply additional subscriptions from the optional manifest
	if cfg.SubscriptionsFile != "" {
		entries, err := config.LoadManifest(cfg.SubscriptionsFile)
		if err != nil {
			zapLogger.Fatal("Failed to load subscriptions manifest", zap.Error(err))
		}
		for _, entry := range entries {
			req := feedclient.SubscriptionRequest{
				Dataset:  entry.Dataset,
				Schema:   feedclient.Schema(entry.Schema),
				Symbols:  entry.Symbols,
				SType:    feedclient.SType(entry.SType),
				Snapshot: entry.Snapshot,
			}
			if err := client.Subscribe(req); err != nil {
				zapLogger.Error("Manifest subscription failed",
					zap.String("schema", entry.Schema),
					zap.Strings("symbols", entry.Symbols),
					zap.Error(err))
			}
		}
		zapLogger.Info("Applied subscriptions manifest",
			zap.String("file", cfg.SubscriptionsFile),
			zap.Int("entries", len(entries)))
	}

	// Create API server
	apiServer := api.NewServer(zapLogger, client, adapter, cfg.Server.AllowedOrigins)

	// Start server in a goroutine
	go func() {
		if err := apiServer.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := adapter.Disconnect(); err != nil {
		zapLogger.Error("Quote cache disconnect failed", zap.Error(err))
	}
	if err := backend.Close(); err != nil {
		zapLogger.Error("Pubsub backend close failed", zap.Error(err))
	}

	zapLogger.Info("Shutdown complete")
}
