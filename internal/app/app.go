// Package app は設定から各コンポーネントを組み立てます。
// API サーバー・ワーカー・管理 CLI が同じ配線を共有します。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/yourusername/eco-portal/internal/config"
	"github.com/yourusername/eco-portal/internal/database"
	"github.com/yourusername/eco-portal/internal/export"
	"github.com/yourusername/eco-portal/internal/jobs"
	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/mapcache"
	"github.com/yourusername/eco-portal/internal/metrics"
	"github.com/yourusername/eco-portal/internal/notify"
	"github.com/yourusername/eco-portal/internal/observation"
	"github.com/yourusername/eco-portal/internal/retention"
	"github.com/yourusername/eco-portal/internal/storage"
)

const mailTimeout = 30 * time.Second

// App は組み立て済みのコンポーネント一式です。
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	DB           *gorm.DB
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Ledger       *ledger.Store
	Observations *observation.Store
	Storage      storage.Storage
	Cache        mapcache.Cache
	Builder      *mapcache.Builder
	Maps         *mapcache.Reader
	Notifier     *notify.Notifier
	Runner       *export.Runner
	Sweeper      *retention.Sweeper
	Jobs         *jobs.Manager

	closers []func() error
}

// New は設定に従って全コンポーネントを作成します。失敗した場合は作成済みのものを閉じます。
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	if err := a.build(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() (err error) {
	cfg, logger := a.Config, a.Logger

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.DB, err = database.Open(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { return database.Close(a.DB) })

	a.Storage, err = newStorage(cfg)
	if err != nil {
		return err
	}

	a.Cache, err = newCache(cfg)
	if err != nil {
		return err
	}
	if rc, ok := a.Cache.(*mapcache.RedisCache); ok {
		a.closers = append(a.closers, rc.Close)
	}

	a.Jobs, err = jobs.NewManager(cfg, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { return a.Jobs.Shutdown(context.Background()) })

	mailer, err := newMailer(cfg)
	if err != nil {
		return err
	}
	if mailer == nil {
		logger.Warn("SMTP_URL is not set; completion emails will be recorded as failed")
	}

	a.Ledger = ledger.NewStore(a.DB)
	a.Observations = observation.NewStore(a.DB, a.Jobs, logger)
	a.Builder = mapcache.NewBuilder(a.Observations, a.Cache, cfg.WorkerConcurrency, logger, a.Metrics)
	a.Maps = mapcache.NewReader(a.Cache)
	a.Notifier = notify.NewNotifier(mailer, a.Ledger, cfg.PublicBaseURL, logger, a.Metrics)
	a.Runner = export.NewRunner(a.Ledger, a.Observations, a.Storage, a.Notifier, cfg.WorkDir, logger, a.Metrics)
	a.Sweeper = retention.NewSweeper(a.Ledger, a.Storage, logger, a.Metrics)
	return nil
}

// Worker はタスク処理を登録するための Worker を返します。
func (a *App) Worker() *jobs.Worker {
	return jobs.NewWorker(a.Runner, a.Builder, a.Sweeper, a.Config.RetentionDays, a.Logger)
}

// StartWorkers は asynq サーバーと定期実行を起動します。
func (a *App) StartWorkers() error {
	if a.Config.CacheBackend == "memory" && !a.Config.WorkersInProcess {
		a.Logger.Warn("CACHE_BACKEND=memory is only visible to this process; run workers in the API process")
	}
	return a.Jobs.StartWorkers(a.Worker())
}

// Close は作成した順と逆順に資源を解放します。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newMailer は SMTP_URL 未設定なら nil の Mailer を返します。
func newMailer(cfg *config.Config) (notify.Mailer, error) {
	m, err := notify.NewSMTPMailer(cfg.SMTPURL, cfg.MailFrom, mailTimeout)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return storage.NewS3(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	case "local":
		return storage.NewLocal(cfg.StorageRoot)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

func newCache(cfg *config.Config) (mapcache.Cache, error) {
	switch cfg.CacheBackend {
	case "redis":
		return mapcache.NewRedisCache(cfg.CacheRedisURL)
	case "memory":
		return mapcache.NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.CacheBackend)
	}
}
