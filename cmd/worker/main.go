// Package main はタスクキューのワーカーのエントリーポイントです。
// エクスポート・地図キャッシュ再構築・保存期限の掃除を処理します。
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourusername/eco-portal/internal/app"
	"github.com/yourusername/eco-portal/internal/config"
	"github.com/yourusername/eco-portal/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	if err := a.StartWorkers(); err != nil {
		logger.Error("failed to start workers", "error", err)
		_ = a.Close()
		os.Exit(1)
	}
	logger.Info("worker started", "concurrency", cfg.WorkerConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down worker")
	if err := a.Close(); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
