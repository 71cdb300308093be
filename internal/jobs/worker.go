package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/yourusername/eco-portal/internal/retention"
)

// ExportRunner は申請1件のエクスポートを実行します。
type ExportRunner interface {
	Run(ctx context.Context, id uint) error
}

// CacheRebuilder は地図キャッシュを作り直します。
type CacheRebuilder interface {
	RebuildFilter(ctx context.Context) error
	RebuildLocations(ctx context.Context) error
}

// Sweeper は保持期限を過ぎた成果物を掃除します。
type Sweeper interface {
	Sweep(ctx context.Context, days int) (retention.Report, error)
}

// Worker はタスク種別ごとの処理を提供します。
type Worker struct {
	export        ExportRunner
	cache         CacheRebuilder
	sweeper       Sweeper
	retentionDays int
	logger        *slog.Logger
}

// NewWorker は Worker を作成します。
func NewWorker(export ExportRunner, cache CacheRebuilder, sweeper Sweeper, retentionDays int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		export:        export,
		cache:         cache,
		sweeper:       sweeper,
		retentionDays: retentionDays,
		logger:        logger.With("component", "worker"),
	}
}

// Register は mux に全タスクの処理を登録します。
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeExport, w.handleExport)
	mux.HandleFunc(TypeRebuildFilter, w.handleRebuildFilter)
	mux.HandleFunc(TypeRebuildLocations, w.handleRebuildLocations)
	mux.HandleFunc(TypeSweep, w.handleSweep)
}

func (w *Worker) handleExport(ctx context.Context, task *asynq.Task) error {
	var payload ExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid export payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RequestID == 0 {
		return fmt.Errorf("missing requestId in payload: %w", asynq.SkipRetry)
	}
	// 失敗は Runner が台帳に記録済み。asynq にも返してアーカイブに残す
	return w.export.Run(ctx, payload.RequestID)
}

func (w *Worker) handleRebuildFilter(ctx context.Context, _ *asynq.Task) error {
	if err := w.cache.RebuildFilter(ctx); err != nil {
		w.logger.Error("filter index rebuild failed", "error", err)
		return err
	}
	return nil
}

func (w *Worker) handleRebuildLocations(ctx context.Context, _ *asynq.Task) error {
	if err := w.cache.RebuildLocations(ctx); err != nil {
		w.logger.Error("location index rebuild failed", "error", err)
		return err
	}
	return nil
}

func (w *Worker) handleSweep(ctx context.Context, task *asynq.Task) error {
	days := w.retentionDays
	if len(task.Payload()) > 0 {
		var payload SweepPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid sweep payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.RetentionDays > 0 {
			days = payload.RetentionDays
		}
	}
	_, err := w.sweeper.Sweep(ctx, days)
	return err
}
