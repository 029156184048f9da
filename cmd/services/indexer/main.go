package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/telemetry"
	"github.com/taskflow-hq/taskflow/internal/search/server"
)

func main() {
	// Initialize configuration
	cfg, err := config.Load("indexer")
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.Logger)
	log.Info("Starting Search Indexer", "version", cfg.Version, "group", cfg.Kafka.ConsumerGroup)

	// Initialize telemetry
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}
	defer tel.Close()

	// Create indexer
	ix, err := server.NewIndexer(
		server.WithConfig(cfg),
		server.WithLogger(log),
		server.WithTelemetry(tel),
	)
	if err != nil {
		log.Fatal("failed to create indexer", "error", err)
	}

	// Start consuming
	errCh := make(chan error, 1)
	go func() {
		if err := ix.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("indexer error", "error", err)
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ix.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("Search Indexer stopped gracefully")
}
