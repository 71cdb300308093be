package ledger

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
)

// Submission はダウンロード申請の入力です。
type Submission struct {
	Email        string      `json:"email"`
	FirstName    string      `json:"first_name"`
	Role         string      `json:"role"`
	Reason       string      `json:"reason"`
	LocationID   string      `json:"location_id"`
	LocationName string      `json:"location_name"`
	Year         json.Number `json:"year"`
	Items        []string    `json:"items"`

	year int
}

// ValidationError は入力検証エラーです。Message は利用者向けの文言です。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate は必須項目と形式を検証します。台帳の行を作る前に必ず呼びます。
func (s *Submission) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"email", s.Email},
		{"first_name", s.FirstName},
		{"role", s.Role},
		{"reason", s.Reason},
		{"location_id", s.LocationID},
		{"year", s.Year.String()},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: "缺少必填欄位：" + r.field}
		}
	}

	if strings.ContainsAny(s.LocationID, `/\`) || strings.Contains(s.LocationID, "..") {
		return &ValidationError{Field: "location_id", Message: "樣站代碼格式錯誤"}
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(s.Email))
	if err != nil || addr.Address != strings.TrimSpace(s.Email) {
		return &ValidationError{Field: "email", Message: "電子郵件格式錯誤"}
	}

	year, err := strconv.Atoi(strings.TrimSpace(s.Year.String()))
	if err != nil {
		return &ValidationError{Field: "year", Message: "年份格式錯誤"}
	}
	s.year = year

	if len(s.Items) == 0 {
		return &ValidationError{Field: "items", Message: "觀測項目 items 必須為非空陣列"}
	}
	return nil
}

// Request は検証済みの入力から台帳の行を作ります。
func (s *Submission) Request() *DownloadRequest {
	items := make([]string, len(s.Items))
	copy(items, s.Items)
	return &DownloadRequest{
		Email:        strings.TrimSpace(s.Email),
		FirstName:    strings.TrimSpace(s.FirstName),
		Role:         strings.TrimSpace(s.Role),
		Reason:       s.Reason,
		LocationID:   strings.TrimSpace(s.LocationID),
		LocationName: strings.TrimSpace(s.LocationName),
		Year:         s.year,
		Items:        items,
	}
}
