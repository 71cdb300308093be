// Package retention は保持期限を過ぎた成果物の掃除を行います。
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/metrics"
	"github.com/yourusername/eco-portal/internal/storage"
)

// DefaultDays は保持日数の既定値です。
const DefaultDays = 7

// Ledger は掃除処理が使う台帳操作です。
type Ledger interface {
	ListExpirable(ctx context.Context, cutoff time.Time) ([]ledger.DownloadRequest, error)
	MarkExpired(ctx context.Context, id uint) (bool, error)
}

// Report は1回の掃除結果です。
type Report struct {
	Cutoff       time.Time `json:"cutoff"`
	Candidates   int       `json:"candidates"`
	FilesDeleted int       `json:"files_deleted"`
	Missing      int       `json:"missing"`
	RowsUpdated  int       `json:"rows_updated"`
	Errors       int       `json:"errors"`
}

// Sweeper は done の申請のうち保持期限を過ぎたものを expired にします。
// done 以外の行には触れないため、ジョブ実行や他の Sweep と並行しても安全です。
type Sweeper struct {
	ledger  Ledger
	storage storage.Storage
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSweeper は Sweeper を作成します。
func NewSweeper(l Ledger, st storage.Storage, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		ledger:  l,
		storage: st,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With("component", "retention"),
		metrics: m,
	}
}

// Sweep は finished_at が now - days 日より厳密に古い成果物を削除します。
// days が 0 以下なら DefaultDays を使います。個別の失敗は数えるだけで処理を続けます。
func (s *Sweeper) Sweep(ctx context.Context, days int) (Report, error) {
	if days <= 0 {
		days = DefaultDays
	}
	report := Report{Cutoff: s.now().Add(-time.Duration(days) * 24 * time.Hour)}

	candidates, err := s.ledger.ListExpirable(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("failed to list expirable requests: %w", err)
	}
	report.Candidates = len(candidates)

	for _, req := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.sweepOne(ctx, req, &report)
	}

	s.metrics.Swept(report.FilesDeleted, report.Missing, report.RowsUpdated, report.Errors)
	s.logger.Info("retention sweep finished",
		"days", days,
		"cutoff", report.Cutoff,
		"candidates", report.Candidates,
		"files_deleted", report.FilesDeleted,
		"missing", report.Missing,
		"rows_updated", report.RowsUpdated,
		"errors", report.Errors,
	)
	return report, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, req ledger.DownloadRequest, report *Report) {
	// S3 の DeleteObject は存在しないキーでも成功するため、先に存在を確かめる
	exists, err := s.storage.Exists(ctx, req.ZipPath)
	if err != nil {
		report.Errors++
		s.logger.Warn("failed to check archive", "request_id", req.ID, "key", req.ZipPath, "error", err)
		return
	}
	if exists {
		err = s.storage.Delete(ctx, req.ZipPath)
	} else {
		err = storage.ErrNotExist
	}
	switch {
	case err == nil:
		report.FilesDeleted++
	case errors.Is(err, storage.ErrNotExist):
		report.Missing++
	default:
		// 削除できなかった成果物は行を残し、次回の掃除で再試行する
		report.Errors++
		s.logger.Warn("failed to delete archive", "request_id", req.ID, "key", req.ZipPath, "error", err)
		return
	}

	updated, err := s.ledger.MarkExpired(ctx, req.ID)
	if err != nil {
		report.Errors++
		s.logger.Warn("failed to expire request", "request_id", req.ID, "error", err)
		return
	}
	if updated {
		report.RowsUpdated++
	}
}
