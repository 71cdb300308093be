package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotFound は申請が存在しない場合に返されます。
	ErrNotFound = errors.New("download request not found")
	// ErrInvalidTransition は現在の状態から要求された遷移ができない場合に返されます。
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store は台帳を RDB に保存します。
// 状態を変更する操作は全て、遷移元の状態を WHERE 句に含む単一の UPDATE で行います。
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore は Store を作成します。
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Filter は List の絞り込み条件です。
type Filter struct {
	Status Status
	Limit  int
}

// Create は pending 状態の申請を作成します。
func (s *Store) Create(ctx context.Context, req *DownloadRequest) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}
	req.ID = 0
	req.Status = StatusPending
	req.CreatedAt = s.now()
	req.FinishedAt = nil
	req.ZipPath = ""
	req.ErrorMessage = ""
	req.EmailSent = false
	req.EmailError = ""
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	return nil
}

// Get は申請を取得します。
func (s *Store) Get(ctx context.Context, id uint) (*DownloadRequest, error) {
	var req DownloadRequest
	err := s.db.WithContext(ctx).First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load download request %d: %w", id, err)
	}
	return &req, nil
}

// List は新しい順に申請を返します。
func (s *Store) List(ctx context.Context, filter Filter) ([]DownloadRequest, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []DownloadRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list download requests: %w", err)
	}
	return out, nil
}

// Claim は申請を processing に遷移させます。
// pending / failed 以外の状態なら何もせず false を返します（同時実行の排他を兼ねる）。
func (s *Store) Claim(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&DownloadRequest{}).
		Where("id = ? AND status IN ?", id, sourcesOf(StatusProcessing)).
		Updates(map[string]any{
			"status":        StatusProcessing,
			"error_message": "",
			"finished_at":   nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim download request %d: %w", id, result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkDone は processing の申請を done にし、成果物のパスを記録します。
func (s *Store) MarkDone(ctx context.Context, id uint, zipPath string) error {
	if zipPath == "" {
		return fmt.Errorf("zip path is required")
	}
	return s.transition(ctx, id, StatusDone, map[string]any{
		"zip_path":      zipPath,
		"finished_at":   s.now(),
		"error_message": "",
	})
}

// MarkFailed は processing の申請を failed にし、エラー内容を記録します。
func (s *Store) MarkFailed(ctx context.Context, id uint, message string) error {
	if message == "" {
		message = "unknown error"
	}
	return s.transition(ctx, id, StatusFailed, map[string]any{
		"zip_path":      "",
		"finished_at":   s.now(),
		"error_message": message,
	})
}

// RecordNotification は完了通知メールの結果を記録します。done の申請だけが対象です。
func (s *Store) RecordNotification(ctx context.Context, id uint, sent bool, emailError string) error {
	if sent {
		emailError = ""
	}
	result := s.db.WithContext(ctx).Model(&DownloadRequest{}).
		Where("id = ? AND status = ?", id, StatusDone).
		Updates(map[string]any{
			"email_sent":  sent,
			"email_error": emailError,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record notification of %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return s.missOrInvalid(ctx, id)
	}
	return nil
}

// ListExpirable は cutoff より前に完了し、成果物が残っている done の申請を返します。
func (s *Store) ListExpirable(ctx context.Context, cutoff time.Time) ([]DownloadRequest, error) {
	var out []DownloadRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND finished_at IS NOT NULL AND finished_at < ? AND zip_path <> ?", StatusDone, cutoff.UTC(), "").
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable download requests: %w", err)
	}
	return out, nil
}

// MarkExpired は done の申請を expired にし、成果物のパスを消します。
// 既に他の掃除処理が更新していた場合は false を返します。
func (s *Store) MarkExpired(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&DownloadRequest{}).
		Where("id = ? AND status IN ?", id, sourcesOf(StatusExpired)).
		Updates(map[string]any{
			"status":   StatusExpired,
			"zip_path": "",
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to expire download request %d: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) transition(ctx context.Context, id uint, to Status, fields map[string]any) error {
	fields["status"] = to
	result := s.db.WithContext(ctx).Model(&DownloadRequest{}).
		Where("id = ? AND status IN ?", id, sourcesOf(to)).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to mark download request %d %s: %w", id, to, result.Error)
	}
	if result.RowsAffected == 0 {
		return s.missOrInvalid(ctx, id)
	}
	return nil
}

func (s *Store) missOrInvalid(ctx context.Context, id uint) error {
	req, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: download request %d is %s", ErrInvalidTransition, id, req.Status)
}
