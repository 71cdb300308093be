package observation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateScan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want string
	}{
		{"time with zone", time.Date(2023, 5, 1, 23, 30, 0, 0, time.FixedZone("CST", 8*3600)), "2023-05-01"},
		{"sqlite text", "2023-05-01 00:00:00+00:00", "2023-05-01"},
		{"bytes", []byte("2024-02-29"), "2024-02-29"},
		{"null", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			require.NoError(t, d.Scan(tt.src))
			assert.Equal(t, tt.want, d.String())
		})
	}

	var d Date
	assert.Error(t, d.Scan("not a date"))
}

func TestDateValue(t *testing.T) {
	v, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v, "unset dates are written as NULL")

	v, err = NewDate(2023, 1, 2).Value()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), v)
	assert.Equal(t, "date", Date{}.GormDataType())
}

func TestDateJSON(t *testing.T) {
	var row struct {
		EventDate Date `json:"eventDate"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"eventDate":"2023-04-15"}`), &row))
	assert.Equal(t, 2023, row.EventDate.Year())

	out, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventDate":"2023-04-15"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"eventDate":"15/04/2023"}`), &row))
}
