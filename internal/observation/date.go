package observation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DateLayout は観測日付の入出力形式です。
const DateLayout = "2006-01-02"

// Date は時刻を持たない暦日です（常に UTC の 0 時で保持）。
// 列型と DB との変換は datatypes.Date に任せ、JSON と文字列表現だけを YYYY-MM-DD にします。
type Date struct {
	datatypes.Date
}

// NewDate は年月日から Date を作成します。
func NewDate(year int, month time.Month, day int) Date {
	return Date{datatypes.Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))}
}

// ParseDate は YYYY-MM-DD 形式の文字列を Date に変換します。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return NewDate(t.Date()), nil
}

// Time は time.Time として返します。
func (d Date) Time() time.Time { return time.Time(d.Date) }

func (d Date) IsZero() bool { return d.Time().IsZero() }

func (d Date) Year() int { return d.Time().Year() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(DateLayout)
}

// Value は未設定の日付を NULL として書き込みます（not null 列で弾くため）。
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Date.Value()
}

// Scan は datatypes.Date の変換に加え、SQLite が文字列で返す日付も受け付けます。
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	}
	if err := d.Date.Scan(src); err != nil {
		return err
	}
	if !d.IsZero() {
		*d = NewDate(d.Time().Date())
	}
	return nil
}

func (d *Date) scanString(s string) error {
	if len(s) >= len(DateLayout) {
		parsed, err := ParseDate(s[:len(DateLayout)])
		if err == nil {
			*d = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid date value %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	*d = parsed
	return nil
}
