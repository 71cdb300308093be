package retention

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/logging"
	"github.com/yourusername/eco-portal/internal/storage"
)

type fixture struct {
	db      *gorm.DB
	ledger  *ledger.Store
	storage *storage.Local
	sweeper *Sweeper
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledger.DownloadRequest{}))

	st, err := storage.NewLocal(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	f := &fixture{
		db:      db,
		ledger:  ledger.NewStore(db),
		storage: st,
		now:     time.Date(2024, 5, 8, 3, 0, 0, 0, time.UTC),
	}
	f.sweeper = NewSweeper(f.ledger, st, logging.Discard(), nil)
	f.sweeper.now = func() time.Time { return f.now }
	return f
}

// doneRequest は finishedAt に完了した done の申請を作ります。withFile なら成果物も置きます。
func (f *fixture) doneRequest(t *testing.T, finishedAt time.Time, withFile bool) *ledger.DownloadRequest {
	t.Helper()
	ctx := context.Background()
	req := &ledger.DownloadRequest{Email: "a@example.org", LocationID: "GD01", Year: 2023, Items: []string{"weather"}}
	require.NoError(t, f.ledger.Create(ctx, req))
	ok, err := f.ledger.Claim(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, ok)

	key := fmt.Sprintf("downloads/%d/archive.zip", req.ID)
	if withFile {
		require.NoError(t, f.storage.Put(ctx, key, strings.NewReader("PK"), 2))
	}
	require.NoError(t, f.ledger.MarkDone(ctx, req.ID, key))
	require.NoError(t, f.db.Model(&ledger.DownloadRequest{}).Where("id = ?", req.ID).Update("finished_at", finishedAt).Error)

	got, err := f.ledger.Get(ctx, req.ID)
	require.NoError(t, err)
	return got
}

func TestSweepBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	threshold := f.now.Add(-7 * 24 * time.Hour)

	atThreshold := f.doneRequest(t, threshold, true)
	pastThreshold := f.doneRequest(t, threshold.Add(-time.Second), true)

	report, err := f.sweeper.Sweep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.FilesDeleted)
	assert.Equal(t, 1, report.RowsUpdated)
	assert.Zero(t, report.Errors)

	kept, err := f.ledger.Get(ctx, atThreshold.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDone, kept.Status)
	assert.NotEmpty(t, kept.ZipPath)
	exists, err := f.storage.Exists(ctx, kept.ZipPath)
	require.NoError(t, err)
	assert.True(t, exists)

	swept, err := f.ledger.Get(ctx, pastThreshold.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusExpired, swept.Status)
	assert.Empty(t, swept.ZipPath)
	exists, err = f.storage.Exists(ctx, pastThreshold.ZipPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSweepToleratesMissingFilesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.now.Add(-30 * 24 * time.Hour)

	f.doneRequest(t, old, false)
	f.doneRequest(t, old, true)

	report, err := f.sweeper.Sweep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Report{Cutoff: report.Cutoff, Candidates: 2, FilesDeleted: 1, Missing: 1, RowsUpdated: 2}, report)

	again, err := f.sweeper.Sweep(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, again.Candidates)
	assert.Zero(t, again.RowsUpdated)
}

func TestSweepDefaultsDays(t *testing.T) {
	f := newFixture(t)
	report, err := f.sweeper.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(-DefaultDays*24*time.Hour), report.Cutoff)
}

type brokenStorage struct{ storage.Storage }

func (brokenStorage) Delete(context.Context, string) error { return errors.New("permission denied") }

func TestSweepCountsDeleteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.doneRequest(t, f.now.Add(-10*24*time.Hour), true)

	f.sweeper.storage = brokenStorage{f.storage}
	report, err := f.sweeper.Sweep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Zero(t, report.RowsUpdated)

	got, err := f.ledger.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDone, got.Status)
}

// silentDeleteStorage は存在しないキーの削除も成功させる（S3 と同じ振る舞い）。
type silentDeleteStorage struct {
	storage.Storage
	deleted []string
}

func (s *silentDeleteStorage) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	err := s.Storage.Delete(ctx, key)
	if errors.Is(err, storage.ErrNotExist) {
		return nil
	}
	return err
}

func TestSweepCountsMissingWhenDeleteIsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	present := f.doneRequest(t, f.now.Add(-10*24*time.Hour), true)
	missing := f.doneRequest(t, f.now.Add(-10*24*time.Hour), false)

	st := &silentDeleteStorage{Storage: f.storage}
	f.sweeper.storage = st
	report, err := f.sweeper.Sweep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesDeleted)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 2, report.RowsUpdated)
	assert.Equal(t, []string{present.ZipPath}, st.deleted)

	got, err := f.ledger.Get(ctx, missing.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusExpired, got.Status)
}
