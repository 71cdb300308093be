package mapcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/eco-portal/internal/logging"
	"github.com/yourusername/eco-portal/internal/observation"
)

func newTestStore(t *testing.T) *observation.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(observation.Models()...))
	return observation.NewStore(db, nil, logging.Discard())
}

func seed(t *testing.T, store *observation.Store) {
	t.Helper()
	ctx := context.Background()
	locs := []observation.Location{
		{ObservationItem: "氣象觀測", LocationName: "B站", LocationID: "B01", DecimalLongitude: 121.5, DecimalLatitude: 25.0},
		{ObservationItem: "植物物候", LocationName: "A站", LocationID: "A01", DecimalLongitude: 120.25, DecimalLatitude: 23.75},
		{ObservationItem: "氣象觀測", LocationName: "C站", LocationID: "C01"},
	}
	require.NoError(t, store.Create(ctx, &locs))

	weather := []observation.Weather{
		{LocationID: "A01", EventDate: observation.NewDate(2022, 5, 1)},
		{LocationID: "A01", EventDate: observation.NewDate(2023, 5, 1)},
		{LocationID: "B01", EventDate: observation.NewDate(2023, 7, 1)},
	}
	require.NoError(t, store.Create(ctx, &weather))

	plants := []observation.PlantPhenology{
		{LocationID: "A01", EventDate: observation.NewDate(2023, 3, 1), VerbatimLocality: "A", Locality: "A"},
	}
	require.NoError(t, store.Create(ctx, &plants))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "location_map_filter", FilterKey())
	assert.Equal(t, "location_map_list:all:all", LocationListKey("", ""))
	assert.Equal(t, "location_map_list:2023:weather", LocationListKey("2023", "weather"))
}

func TestRebuildFilter(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	cache := NewMemoryCache()
	b := NewBuilder(store, cache, 2, logging.Discard(), nil)

	require.NoError(t, b.RebuildFilter(context.Background()))

	index, err := NewReader(cache).Filter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FilterIndex{
		"2022": {"氣象觀測"},
		"2023": {"植物物候", "氣象觀測"},
	}, index)
}

func TestRebuildLocationsAndFilters(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	cache := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, NewBuilder(store, cache, 2, logging.Discard(), nil).RebuildLocations(ctx))
	r := NewReader(cache)

	all, err := r.Locations(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A01", all[0].LocationID)
	assert.Equal(t, [2]float64{23.75, 120.25}, all[0].Position)
	assert.Equal(t, map[string][]string{
		"2022": {"氣象觀測"},
		"2023": {"植物物候", "氣象觀測"},
	}, all[0].Years)
	assert.Equal(t, "C01", all[2].LocationID)
	assert.Empty(t, all[2].Years)

	byYear, err := r.Locations(ctx, "2023", "")
	require.NoError(t, err)
	require.Len(t, byYear, 2)
	assert.Equal(t, map[string][]string{"2023": {"植物物候", "氣象觀測"}}, byYear[0].Years)
	assert.Equal(t, "B01", byYear[1].LocationID)

	byItem, err := r.Locations(ctx, "", "plantphenology")
	require.NoError(t, err)
	require.Len(t, byItem, 1)
	assert.Equal(t, map[string][]string{"2023": {"植物物候"}}, byItem[0].Years)

	byLabel, err := r.Locations(ctx, "2022", "氣象觀測")
	require.NoError(t, err)
	require.Len(t, byLabel, 1)
	assert.Equal(t, "A01", byLabel[0].LocationID)

	unknown, err := r.Locations(ctx, "", "rainfall")
	require.NoError(t, err)
	assert.Empty(t, unknown)

	_, err = r.Locations(ctx, "twenty", "")
	assert.ErrorIs(t, err, ErrInvalidYear)
}

func TestRebuildReplacesWholesale(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	cache := NewMemoryCache()
	ctx := context.Background()
	b := NewBuilder(store, cache, 2, logging.Discard(), nil)

	require.NoError(t, b.RebuildFilter(ctx))
	require.NoError(t, b.RebuildLocations(ctx))

	// 既存の気象データと A01 以外の樣站を消し、2024 年の気象データを足してから再構築する
	require.NoError(t, store.Create(ctx, &[]observation.Weather{{LocationID: "A01", EventDate: observation.NewDate(2024, 1, 1)}}))
	for _, id := range []uint{1, 2, 3} {
		_, err := store.Delete(ctx, &observation.Weather{}, id)
		require.NoError(t, err)
	}
	for _, id := range []uint{1, 3} {
		_, err := store.Delete(ctx, &observation.Location{}, id)
		require.NoError(t, err)
	}

	require.NoError(t, b.RebuildFilter(ctx))
	require.NoError(t, b.RebuildLocations(ctx))

	r := NewReader(cache)
	index, err := r.Filter(ctx)
	require.NoError(t, err)
	assert.Equal(t, FilterIndex{
		"2023": {"植物物候"},
		"2024": {"氣象觀測"},
	}, index)

	locs, err := r.Locations(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "A01", locs[0].LocationID)
	assert.Equal(t, map[string][]string{
		"2023": {"植物物候"},
		"2024": {"氣象觀測"},
	}, locs[0].Years)
}

func TestReaderNotReady(t *testing.T) {
	r := NewReader(NewMemoryCache())
	_, err := r.Filter(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = r.Locations(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestMemoryCacheCopies(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value))
	value[0] = 'x'

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(got))
}
