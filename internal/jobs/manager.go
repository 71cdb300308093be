package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yourusername/eco-portal/internal/config"
	"github.com/yourusername/eco-portal/internal/observation"
)

// taskClient は asynq.Client のうち Manager が使う部分です。
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager はタスクの投入と、ワーカー・定期実行スケジューラの起動停止を担います。
type Manager struct {
	cfg       *config.Config
	redisOpt  asynq.RedisConnOpt
	client    taskClient
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewManager は Manager を初期化します。この時点ではタスクの投入だけができます。
func NewManager(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &Manager{
		cfg:      cfg,
		redisOpt: opt,
		client:   asynq.NewClient(opt),
		logger:   logger.With("component", "jobs"),
	}, nil
}

// StartWorkers は Asynq サーバーと定期実行スケジューラをバックグラウンドで起動します。
func (m *Manager) StartWorkers(worker *Worker) error {
	if worker == nil {
		return errors.New("worker is nil")
	}
	concurrency := m.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	m.server = asynq.NewServer(m.redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueExports:     3,
			QueueMaintenance: 1,
		},
		Logger: newAsynqLogger(m.logger),
	})
	m.mux = asynq.NewServeMux()
	worker.Register(m.mux)

	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", "error", err)
		}
	}()

	return m.startScheduler()
}

func (m *Manager) startScheduler() error {
	task, err := NewSweepTask(m.cfg.RetentionDays)
	if err != nil {
		return err
	}
	m.scheduler = asynq.NewScheduler(m.redisOpt, &asynq.SchedulerOpts{
		Location: time.Local,
		Logger:   newAsynqLogger(m.logger),
	})
	if _, err := m.scheduler.Register(m.cfg.RetentionCron, task); err != nil {
		return fmt.Errorf("failed to register retention schedule %q: %w", m.cfg.RetentionCron, err)
	}
	if err := m.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	m.logger.Info("retention sweep scheduled", "cron", m.cfg.RetentionCron, "days", m.cfg.RetentionDays)
	return nil
}

// Shutdown はスケジューラ・サーバー・クライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.scheduler != nil {
		m.scheduler.Shutdown()
	}
	if m.server != nil {
		m.server.Shutdown()
	}
	return m.client.Close()
}

// EnqueueExport は申請 id のエクスポートをキューに投入します。
func (m *Manager) EnqueueExport(ctx context.Context, requestID uint) (string, error) {
	task, err := NewExportTask(requestID)
	if err != nil {
		return "", err
	}
	info, err := m.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue export %d: %w", requestID, err)
	}
	m.logger.Info("export enqueued", "request_id", requestID, "task_id", info.ID)
	return info.ID, nil
}

// EnqueueCacheRebuild は地図キャッシュ2種の再構築を投入します。重複の排除はしません。
func (m *Manager) EnqueueCacheRebuild(ctx context.Context) error {
	var errs []error
	for _, task := range NewRebuildTasks() {
		if _, err := m.client.EnqueueContext(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("failed to enqueue %s: %w", task.Type(), err))
		}
	}
	return errors.Join(errs...)
}

// EnqueueSweep は掃除タスクを即時投入します。
func (m *Manager) EnqueueSweep(ctx context.Context, days int) (string, error) {
	task, err := NewSweepTask(days)
	if err != nil {
		return "", err
	}
	info, err := m.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue sweep: %w", err)
	}
	return info.ID, nil
}

// ObservationChanged は observation.ChangeListener の実装です。
// 投入の失敗はログに残すだけで、書き込み側には返しません。
func (m *Manager) ObservationChanged(ctx context.Context, event observation.ChangeEvent) {
	if err := m.EnqueueCacheRebuild(ctx); err != nil {
		m.logger.Error("failed to schedule cache rebuild", "table", event.Table, "op", event.Op, "error", err)
		return
	}
	m.logger.Debug("cache rebuild scheduled", "table", event.Table, "op", event.Op)
}
