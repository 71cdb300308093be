// Package export は台帳の申請1件を CSV 群の zip に変換するジョブを実装します。
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/metrics"
	"github.com/yourusername/eco-portal/internal/observation"
	"github.com/yourusername/eco-portal/internal/storage"
)

var (
	// ErrNoValidCategories は申請項目が1つも観測項目に解決できなかった場合のエラーです。
	ErrNoValidCategories = errors.New("no valid categories")
	// ErrNoData は有効な項目はあるが、該当する行が1件も無かった場合のエラーです。
	ErrNoData = errors.New("no data found for requested categories")
)

// Ledger はジョブが使う台帳操作です。
type Ledger interface {
	Get(ctx context.Context, id uint) (*ledger.DownloadRequest, error)
	Claim(ctx context.Context, id uint) (bool, error)
	MarkDone(ctx context.Context, id uint, zipPath string) error
	MarkFailed(ctx context.Context, id uint, message string) error
}

// Source は観測データの読み出し元です。
type Source interface {
	FindRows(ctx context.Context, c observation.Category, locationID string, year int) (*observation.Table, error)
}

// Notifier は完了通知を送ります。結果はジョブの成否に影響しません。
type Notifier interface {
	NotifyCompleted(ctx context.Context, req *ledger.DownloadRequest) bool
}

// Runner はエクスポートジョブを実行します。
type Runner struct {
	ledger   Ledger
	source   Source
	storage  storage.Storage
	notifier Notifier
	workDir  string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewRunner は Runner を作成します。notifier は nil でも構いません。
func NewRunner(l Ledger, src Source, st storage.Storage, n Notifier, workDir string, logger *slog.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		ledger:   l,
		source:   src,
		storage:  st,
		notifier: n,
		workDir:  workDir,
		logger:   logger.With("component", "export"),
		metrics:  m,
	}
}

// ArchiveName は成果物のファイル名を返します。
// 樣站 ID は利用者の入力なので、英数字・'_'・'-' 以外は '_' に置き換えます。
func ArchiveName(req *ledger.DownloadRequest) string {
	return fmt.Sprintf("download_%s_%d_%d.zip", safeName(req.LocationID), req.Year, req.ID)
}

func safeName(s string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
	if name == "" {
		return "_"
	}
	return name
}

// ArchiveKey は成果物のストレージキーを返します。
func ArchiveKey(req *ledger.DownloadRequest) string {
	return fmt.Sprintf("downloads/%d/%s", req.ID, ArchiveName(req))
}

// Run は申請 id を処理します。
//
// pending / failed 以外の申請には何もせず nil を返します。処理中のエラーは台帳に
// failed として記録したうえで呼び出し元にも返します。自動の再試行はしません。
func (r *Runner) Run(ctx context.Context, id uint) error {
	start := time.Now()
	logger := r.logger.With("request_id", id)

	claimed, err := r.ledger.Claim(ctx, id)
	if err != nil {
		return fmt.Errorf("claim download request %d: %w", id, err)
	}
	if !claimed {
		logger.Info("download request is not runnable, skipping")
		r.metrics.ExportFinished("skipped", time.Since(start))
		return nil
	}
	logger.Info("export started")

	req, err := r.produce(ctx, id)
	if err != nil {
		// ctx が切れていても失敗は記録する
		if markErr := r.ledger.MarkFailed(context.WithoutCancel(ctx), id, err.Error()); markErr != nil {
			logger.Error("failed to record export failure", "error", markErr)
		}
		r.metrics.ExportFinished("failed", time.Since(start))
		logger.Warn("export failed", "error", err, "elapsed", time.Since(start))
		return err
	}

	r.metrics.ExportFinished("done", time.Since(start))
	logger.Info("export completed", "zip_path", req.ZipPath, "elapsed", time.Since(start))

	if r.notifier != nil {
		r.notifier.NotifyCompleted(ctx, req)
	}
	return nil
}

// produce は CSV 生成から台帳の done 更新までを行い、更新後の申請を返します。
func (r *Runner) produce(ctx context.Context, id uint) (*ledger.DownloadRequest, error) {
	req, err := r.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	categories := observation.Resolve(req.Items)
	if len(categories) == 0 {
		return nil, ErrNoValidCategories
	}

	dir := filepath.Join(r.workDir, strconv.FormatUint(uint64(id), 10))
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("作業ディレクトリの初期化に失敗しました: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("failed to remove workspace", "dir", dir, "error", err)
		}
	}()

	var files []string
	for _, c := range categories {
		table, err := r.source.FindRows(ctx, c, req.LocationID, req.Year)
		if err != nil {
			return nil, err
		}
		if table.Len() == 0 {
			// 一部の項目にデータが無いのは正常
			continue
		}
		path := filepath.Join(dir, c.Code+".csv")
		if err := writeCSV(ctx, path, table); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		return nil, ErrNoData
	}

	archivePath := filepath.Join(dir, ArchiveName(req))
	if err := createZip(archivePath, files); err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return nil, fmt.Errorf("CSVファイルの削除に失敗しました: %w", err)
		}
	}
	if err := checkArchive(archivePath); err != nil {
		return nil, err
	}

	key := ArchiveKey(req)
	size, err := r.upload(ctx, key, archivePath)
	if err != nil {
		return nil, err
	}
	r.metrics.ArchiveProduced(size)

	if err := r.ledger.MarkDone(ctx, id, key); err != nil {
		if delErr := r.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil && !errors.Is(delErr, storage.ErrNotExist) {
			r.logger.Warn("failed to remove orphaned archive", "key", key, "error", delErr)
		}
		return nil, err
	}

	req.Status = ledger.StatusDone
	req.ZipPath = key
	req.ErrorMessage = ""
	return req, nil
}

func (r *Runner) upload(ctx context.Context, key, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("zipファイルのオープンに失敗しました: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("zipファイルの情報取得に失敗しました: %w", err)
	}
	if err := r.storage.Put(ctx, key, f, info.Size()); err != nil {
		return 0, err
	}
	return info.Size(), nil
}
