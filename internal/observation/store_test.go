package observation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingListener struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (l *recordingListener) ObservationChanged(_ context.Context, event ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func newTestStore(t *testing.T, listener ChangeListener) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	return NewStore(db, listener, nil)
}

func ptr[T any](v T) *T { return &v }

func TestStoreEmitsChangeEvents(t *testing.T) {
	listener := &recordingListener{}
	store := newTestStore(t, listener)
	ctx := context.Background()

	loc := &Location{ObservationItem: "植物物候", LocationName: "關渡", LocationID: "GD01", DecimalLongitude: 121.467, DecimalLatitude: 25.116}
	require.NoError(t, store.Create(ctx, loc))

	loc.LocationName = "關渡自然公園"
	n, err := store.Save(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Save(ctx, &Location{ID: 9999, LocationID: "XX01"})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.Delete(ctx, &Location{}, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Delete(ctx, &Location{}, 9999)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []ChangeEvent{
		{Table: "api_location", Op: OpCreate},
		{Table: "api_location", Op: OpUpdate},
		{Table: "api_location", Op: OpDelete},
	}, listener.events)
}

func TestStoreBulkCreateEmitsOnce(t *testing.T) {
	listener := &recordingListener{}
	store := newTestStore(t, listener)

	rows := []Weather{
		{LocationID: "GD01", EventDate: NewDate(2023, 1, 2), AirTemperature: ptr(12.5)},
		{LocationID: "GD01", EventDate: NewDate(2023, 1, 3)},
	}
	require.NoError(t, store.Create(context.Background(), &rows))

	assert.Equal(t, []ChangeEvent{{Table: "api_weather", Op: OpCreate}}, listener.events)
}

func TestDistinctYearsAndFindRows(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	rows := []Weather{
		{LocationID: "GD01", EventDate: NewDate(2022, 12, 31)},
		{LocationID: "GD01", EventDate: NewDate(2023, 1, 1), AirTemperature: ptr(14.25)},
		{LocationID: "GD01", EventDate: NewDate(2023, 12, 31)},
		{LocationID: "GD02", EventDate: NewDate(2024, 6, 1)},
	}
	require.NoError(t, store.Create(ctx, &rows))

	weather, _ := Lookup(CodeWeather)

	years, err := store.DistinctYears(ctx, weather, "")
	require.NoError(t, err)
	assert.Equal(t, []int{2022, 2023, 2024}, years)

	years, err = store.DistinctYears(ctx, weather, "GD02")
	require.NoError(t, err)
	assert.Equal(t, []int{2024}, years)

	table, err := store.FindRows(ctx, weather, "GD01", 2023)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	header := table.Header()
	assert.Equal(t, "id", header[0])
	assert.Contains(t, header, "eventDate")
	assert.Contains(t, header, "AirTemperature")

	first := table.Row(ctx, 0)
	values := map[string]any{}
	for i, name := range header {
		values[name] = first[i]
	}
	assert.Equal(t, NewDate(2023, 1, 1).String(), values["eventDate"].(Date).String())
	assert.Equal(t, 14.25, values["AirTemperature"])
	assert.Nil(t, values["WindSpeed"])
	assert.IsType(t, time.Time{}, values["created_at"])

	empty, err := store.FindRows(ctx, weather, "GD03", 2023)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestLocationsDedupByLocationID(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	locs := []Location{
		{ObservationItem: "氣象觀測", LocationName: "B站", LocationID: "B01"},
		{ObservationItem: "植物物候", LocationName: "A站", LocationID: "A01"},
		{ObservationItem: "鳥音辨識", LocationName: "B站", LocationID: "B01"},
	}
	require.NoError(t, store.Create(ctx, &locs))

	got, err := store.Locations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A01", got[0].LocationID)
	assert.Equal(t, "B01", got[1].LocationID)
	assert.Equal(t, "氣象觀測", got[1].ObservationItem)
}

func TestSaveKeepsCreatedAt(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	row := &Weather{LocationID: "GD01", EventDate: NewDate(2023, 1, 2), AirTemperature: ptr(12.5)}
	require.NoError(t, store.Create(ctx, row))
	created := row.CreatedAt

	n, err := store.Save(ctx, &Weather{ID: row.ID, LocationID: "GD01", EventDate: NewDate(2023, 1, 3)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got Weather
	require.NoError(t, store.db.First(&got, row.ID).Error)
	assert.Equal(t, "2023-01-03", got.EventDate.String())
	assert.Nil(t, got.AirTemperature)
	assert.WithinDuration(t, created, got.CreatedAt, time.Second)
}

func TestUpsertBy(t *testing.T) {
	listener := &recordingListener{}
	store := newTestStore(t, listener)
	ctx := context.Background()

	first := []BirdnetSound{
		{DataID: "d1", EventID: "e1", LocationID: "GD01", MeasurementDeterminedDate: NewDate(2023, 5, 1), ScientificName: ptr("Passer montanus")},
		{DataID: "d2", EventID: "e1", LocationID: "GD01", MeasurementDeterminedDate: NewDate(2023, 5, 1), ScientificName: ptr("Pycnonotus sinensis")},
	}
	res, err := store.UpsertBy(ctx, &first, []string{"eventID", "dataID"}, false)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 2}, res)

	second := []BirdnetSound{
		{DataID: "d2", EventID: "e1", LocationID: "GD01", MeasurementDeterminedDate: NewDate(2023, 5, 1), ScientificName: ptr("Zosterops simplex")},
		{DataID: "d3", EventID: "e1", LocationID: "GD01", MeasurementDeterminedDate: NewDate(2023, 5, 2)},
	}
	res, err = store.UpsertBy(ctx, &second, []string{"eventID", "dataID"}, true)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 1, Updated: 1}, res)

	var count int64
	require.NoError(t, store.db.Model(&BirdnetSound{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "dry run must not write")

	res, err = store.UpsertBy(ctx, &second, []string{"eventID", "dataID"}, false)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 1, Updated: 1}, res)
	assert.Equal(t, first[1].ID, second[0].ID)

	var updated BirdnetSound
	require.NoError(t, store.db.First(&updated, first[1].ID).Error)
	assert.Equal(t, "Zosterops simplex", *updated.ScientificName)
	require.NoError(t, store.db.Model(&BirdnetSound{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	assert.Equal(t, []ChangeEvent{
		{Table: "api_birdnetsound", Op: OpUpdate},
		{Table: "api_birdnetsound", Op: OpUpdate},
	}, listener.events)

	_, err = store.UpsertBy(ctx, &second, []string{"nope"}, false)
	assert.Error(t, err)
}
