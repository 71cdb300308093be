package observation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChartSpeciesCount(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	rows := []PlantPhenology{
		{LocationID: "GD01", EventDate: NewDate(2023, 3, 2), ScientificName: ptr("Acer serrulatum")},
		{LocationID: "GD01", EventDate: NewDate(2023, 3, 2), ScientificName: ptr("Acer serrulatum")},
		{LocationID: "GD01", EventDate: NewDate(2023, 3, 2), ScientificName: ptr("Ficus superba")},
		{LocationID: "GD01", EventDate: NewDate(2023, 3, 1), ScientificName: nil},
		{LocationID: "GD01", EventDate: NewDate(2024, 1, 5), ScientificName: ptr("Ficus superba")},
		{LocationID: "GD02", EventDate: NewDate(2023, 3, 2), ScientificName: ptr("Morus alba")},
	}
	require.NoError(t, store.Create(ctx, &rows))

	plant, _ := Lookup(CodePlantPhenology)
	points, err := store.Chart(ctx, plant, "GD01", 2023)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "2023-03-01", points[0].Date.String())
	assert.Equal(t, 0.0, *points[0].Values["species_count"])
	assert.Equal(t, "2023-03-02", points[1].Date.String())
	assert.Equal(t, 2.0, *points[1].Values["species_count"])

	all, err := store.Chart(ctx, plant, "GD01", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-01-05", all[2].Date.String())

	none, err := store.Chart(ctx, plant, "GD99", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChartSoundIndexAverages(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	rows := []TerreSoundIndex{
		{LocationID: "GD01", MeasurementDeterminedDate: NewDate(2023, 6, 1), ACI: ptr(10.0), ADI: ptr(1.0), BI: ptr(4.0)},
		{LocationID: "GD01", MeasurementDeterminedDate: NewDate(2023, 6, 1), ACI: ptr(20.0), ADI: ptr(2.0), BI: nil},
	}
	require.NoError(t, store.Create(ctx, &rows))

	sound, _ := Lookup(CodeTerreSoundIndex)
	points, err := store.Chart(ctx, sound, "GD01", 2023)
	require.NoError(t, err)
	require.Len(t, points, 1)

	p := points[0]
	assert.InDelta(t, 15.0, *p.Values["aci"], 1e-9)
	assert.InDelta(t, 1.5, *p.Values["adi"], 1e-9)
	assert.InDelta(t, 4.0, *p.Values["bi"], 1e-9)
	assert.Nil(t, p.Values["ndsi"])

	body, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2023-06-01","aci":15,"adi":1.5,"bi":4,"ndsi":null}`, string(body))
}

func TestChartWeatherSumsPrecipitation(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	rows := []Weather{
		{LocationID: "GD01", EventDate: NewDate(2023, 7, 1), AirTemperature: ptr(28.0), Precipitation: ptr(1.5)},
		{LocationID: "GD01", EventDate: NewDate(2023, 7, 1), AirTemperature: ptr(30.0), Precipitation: ptr(2.0)},
	}
	require.NoError(t, store.Create(ctx, &rows))

	weather, _ := Lookup(CodeWeather)
	points, err := store.Chart(ctx, weather, "GD01", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 29.0, *points[0].Values["air_temperature"], 1e-9)
	assert.InDelta(t, 3.5, *points[0].Values["precipitation"], 1e-9)
}

func TestEveryCategoryHasChart(t *testing.T) {
	for _, c := range All() {
		assert.NotEmpty(t, c.Metrics(), c.Code)
	}
}
