package export

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/eco-portal/internal/observation"
)

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"bool", false, "false"},
		{"int", 42, "42"},
		{"uint", uint(7), "7"},
		{"float keeps fraction", 0.1, "0.1"},
		{"float no exponent", 1e21, "1000000000000000000000"},
		{"float32", float32(2.5), "2.5"},
		{"string", "a,b", "a,b"},
		{"date", observation.NewDate(2024, 2, 29), "2024-02-29"},
		{"time", time.Date(2024, 1, 2, 3, 4, 5, 600, time.FixedZone("CST", 8*3600)), "2024-01-01T19:04:05.0000006Z"},
		{"zero time", time.Time{}, ""},
		{"list", []string{"a", "b"}, `["a","b"]`},
		{"map", map[string]int{"n": 1}, `{"n":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatCell(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckArchiveRejectsNonZip(t *testing.T) {
	path := t.TempDir() + "/not.zip"
	require.NoError(t, writeFile(path, "plain text"))
	assert.Error(t, checkArchive(path))
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
