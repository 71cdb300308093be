// Package jobs は asynq によるバックグラウンド処理（エクスポート・地図キャッシュ再構築・保持期限の掃除）を扱います。
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// タスク種別
const (
	TypeExport           = "download:export"
	TypeRebuildFilter    = "mapcache:rebuild-filter"
	TypeRebuildLocations = "mapcache:rebuild-locations"
	TypeSweep            = "download:sweep"
)

// キュー名
const (
	QueueExports     = "exports"
	QueueMaintenance = "maintenance"
)

// ExportPayload はエクスポートタスクのペイロードです。
type ExportPayload struct {
	RequestID uint `json:"requestId"`
}

// SweepPayload は掃除タスクのペイロードです。
type SweepPayload struct {
	RetentionDays int `json:"retentionDays"`
}

// NewExportTask はエクスポートタスクを作ります。失敗は台帳に記録済みのため自動再試行はしません。
func NewExportTask(requestID uint) (*asynq.Task, error) {
	if requestID == 0 {
		return nil, fmt.Errorf("requestId is required")
	}
	body, err := json.Marshal(ExportPayload{RequestID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeExport, body, asynq.Queue(QueueExports), asynq.MaxRetry(0)), nil
}

// NewRebuildTasks は地図キャッシュ2種の再構築タスクを作ります。
func NewRebuildTasks() []*asynq.Task {
	return []*asynq.Task{
		asynq.NewTask(TypeRebuildFilter, nil, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3)),
		asynq.NewTask(TypeRebuildLocations, nil, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3)),
	}
}

// NewSweepTask は保持期限の掃除タスクを作ります。
func NewSweepTask(days int) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{RetentionDays: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSweep, body, asynq.Queue(QueueMaintenance), asynq.MaxRetry(1)), nil
}
