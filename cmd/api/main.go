// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/eco-portal/internal/app"
	"github.com/yourusername/eco-portal/internal/auth"
	"github.com/yourusername/eco-portal/internal/config"
	"github.com/yourusername/eco-portal/internal/httpapi"
	"github.com/yourusername/eco-portal/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.WorkersInProcess {
		if err := a.StartWorkers(); err != nil {
			return err
		}
		logger.Info("workers started in-process")
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		auth.CSRFHeader,
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{auth.CSRFHeader, "Content-Disposition", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	httpapi.New(httpapi.Options{
		Ledger:          a.Ledger,
		Queue:           a.Jobs,
		Maps:            a.Maps,
		Objects:         a.Storage,
		Observations:    a.Observations,
		Charts:          a.Observations,
		Sweeper:         a.Sweeper,
		Auth:            auth.NewManager(cfg, logger),
		Gatherer:        a.Registry,
		Metrics:         a.Metrics,
		Logger:          logger,
		RetentionDays:   cfg.RetentionDays,
		SubmitPerMinute: cfg.SubmitRatePerMinute,
	}).Register(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", srv.Addr, "mode", cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
