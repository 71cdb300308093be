// Package ledger はダウンロード申請（台帳）の永続化と状態遷移を扱います。
package ledger

import "time"

// Status は申請の処理状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// transitions は許可される遷移の一覧です。ここに無い遷移は全て不正です。
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusFailed:     {StatusProcessing},
	StatusProcessing: {StatusDone, StatusFailed},
	StatusDone:       {StatusExpired},
}

// Statuses は全状態を返します。
func Statuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusDone, StatusFailed, StatusExpired}
}

// Valid は s が既知の状態かを返します。
func (s Status) Valid() bool {
	for _, v := range Statuses() {
		if v == s {
			return true
		}
	}
	return false
}

// CanTransition は from から to への遷移が許可されているかを返します。
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sourcesOf は to へ遷移できる状態の一覧を返します。
func sourcesOf(to Status) []Status {
	var out []Status
	for _, from := range Statuses() {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// DownloadRequest は1件のダウンロード申請です。
type DownloadRequest struct {
	ID           uint       `gorm:"primaryKey;column:id" json:"id"`
	Email        string     `gorm:"column:email;size:254;not null" json:"email"`
	FirstName    string     `gorm:"column:first_name;size:100" json:"first_name"`
	Role         string     `gorm:"column:role;size:100" json:"role"`
	Reason       string     `gorm:"column:reason;type:text" json:"reason"`
	LocationID   string     `gorm:"column:location_id;size:50" json:"location_id"`
	LocationName string     `gorm:"column:location_name;size:200" json:"location_name"`
	Year         int        `gorm:"column:year" json:"year"`
	Items        []string   `gorm:"column:items;serializer:json;type:text" json:"items"`
	Status       Status     `gorm:"column:status;size:20;index;default:pending" json:"status"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	FinishedAt   *time.Time `gorm:"column:finished_at;index" json:"finished_at"`
	ZipPath      string     `gorm:"column:zip_path;size:500" json:"zip_path"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"error_message"`
	EmailSent    bool       `gorm:"column:email_sent;default:false" json:"email_sent"`
	EmailError   string     `gorm:"column:email_error;type:text" json:"email_error"`
}

func (DownloadRequest) TableName() string { return "api_download_request" }
