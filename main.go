package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"newsrag/internal/config"
	"newsrag/internal/generation"
	"newsrag/internal/history"
	internalhttp "newsrag/internal/http"
	"newsrag/internal/hub"
	"newsrag/internal/logging"
	"newsrag/internal/orchestrator"
	"newsrag/internal/retrieval"
	"newsrag/internal/session"
	"newsrag/internal/ws"
)

func main() {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting newsrag relay", "port", cfg.Port, "provider", cfg.Provider)

	ctx := context.Background()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	retriever, err := newRetriever(cfg)
	if err != nil {
		logger.Error("failed to init retriever", "error", err)
		os.Exit(1)
	}

	generator, err := generation.NewGenerator(ctx, cfg)
	if err != nil {
		logger.Error("failed to init generator", "error", err)
		os.Exit(1)
	}

	connectionHub := hub.New(logger)
	sessions := session.NewManager(store)

	orch := orchestrator.New(orchestrator.Config{
		Store:     store,
		Retriever: retriever,
		Generator: generator,
		Logger:    logger,
		TopK:      cfg.TopK,
		Timeout:   cfg.GatewayTimeout,
	})

	wsServer := ws.NewServer(cfg, connectionHub, sessions, orch, logger)
	httpServer := internalhttp.NewServer(connectionHub, store, wsServer.HandleWebSocket, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("relay listening", "port", cfg.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	logger.Info("relay stopped")
}

// newStore opens the history store: Redis when configured, SQLite otherwise.
func newStore(ctx context.Context, cfg *config.Config) (history.Store, error) {
	if cfg.RedisURL != "" {
		return history.NewRedisStore(ctx, cfg.RedisURL, cfg.HistoryTTL)
	}
	return history.NewSQLiteStore(cfg.SQLitePath, cfg.HistoryTTL)
}

// newRetriever builds the retrieval pipeline: the Jina and Qdrant gateways
// when a Qdrant URL is configured, the embedded chromem index otherwise.
func newRetriever(cfg *config.Config) (retrieval.Retriever, error) {
	embedder := retrieval.NewJinaClient(cfg.JinaURL, cfg.JinaAPIKey, cfg.JinaModel, cfg.GatewayTimeout)
	if cfg.QdrantURL != "" {
		searcher := retrieval.NewQdrantClient(cfg.QdrantURL, cfg.QdrantCollection, cfg.GatewayTimeout)
		return retrieval.NewRemote(embedder, searcher), nil
	}
	return retrieval.NewEmbedded(cfg.VectorDir, cfg.QdrantCollection, embedder)
}
