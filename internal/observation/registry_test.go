package observation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsBijective(t *testing.T) {
	codes := map[string]bool{}
	labels := map[string]bool{}
	tables := map[string]bool{}
	for _, c := range All() {
		require.False(t, codes[c.Code], "duplicate code %s", c.Code)
		require.False(t, labels[c.Label], "duplicate label %s", c.Label)
		require.False(t, tables[c.Table], "duplicate table %s", c.Table)
		codes[c.Code] = true
		labels[c.Label] = true
		tables[c.Table] = true

		byLabel, ok := ByLabel(c.Label)
		require.True(t, ok)
		assert.Equal(t, c.Code, byLabel.Code)

		byCode, ok := Lookup(c.Code)
		require.True(t, ok)
		assert.Equal(t, c.Label, byCode.Label)
	}
	assert.Len(t, codes, 6)
}

func TestResolveOrderAndDedup(t *testing.T) {
	got := Resolve([]string{
		"weather",
		" 植物物候 ",
		"unknown",
		"氣象觀測",
		"plantphenology",
		"",
		"鳥音辨識",
	})

	var codes []string
	for _, c := range got {
		codes = append(codes, c.Code)
	}
	assert.Equal(t, []string{CodeWeather, CodePlantPhenology, CodeBirdnetSound}, codes)
}

func TestResolveNothingValid(t *testing.T) {
	assert.Empty(t, Resolve([]string{"rainfall", "未知"}))
	assert.Empty(t, Resolve(nil))
}

func TestTrackedTables(t *testing.T) {
	tables := TrackedTables()
	assert.Len(t, tables, 7)
	assert.Equal(t, "api_location", tables[0])
	assert.True(t, IsTracked("api_weather"))
	assert.False(t, IsTracked("api_download_request"))
}
