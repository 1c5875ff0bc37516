package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vjranagit/homeenergy/pkg/types"
)

var readingChart = types.ChartSpec{
	SensorID:        "sensorId",
	Source:          "reading",
	Day:             "1970-01-01",
	MeasurementType: "activeEnergy",
}

func TestEmptySnapshotResolvesAbsent(t *testing.T) {
	charts := []types.ChartSpec{readingChart}

	for _, c := range []types.Collections{{}, types.NewCollections(nil)} {
		assert.Equal(t, types.Document{}, DailyAggregate(c, charts))
		assert.Equal(t, types.Document{}, ConsumptionAggregate(c, charts))
		assert.False(t, HasForecast(c, charts))
		assert.False(t, HasStandby(c, charts))
	}
}

func TestNoChartsResolvesAbsent(t *testing.T) {
	c := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {"sensorId-1970-01-01-reading-activeEnergy": {"_id": "X"}},
	})

	assert.Equal(t, types.Document{}, DailyAggregate(c, nil))
	assert.False(t, HasForecast(c, nil))
}

func TestDailyAggregatePresent(t *testing.T) {
	c := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {
			"sensorId-day-source-measurementType": {"_id": "X"},
		},
	})
	charts := []types.ChartSpec{{
		SensorID:        "sensorId",
		Source:          "source",
		Day:             "day",
		MeasurementType: "measurementType",
	}}

	assert.Equal(t, types.Document{"_id": "X"}, DailyAggregate(c, charts))
}

func TestConsumptionAggregatePresent(t *testing.T) {
	c := types.NewCollections(map[string]map[string]types.Document{
		YearlyCollection: {
			"sensorId-1970-reading-activeEnergy": {"_id": "Y", "measurementValues": "1,2,3"},
		},
	})

	doc := ConsumptionAggregate(c, []types.ChartSpec{readingChart})
	assert.Equal(t, "Y", doc.ID())
}

func TestOnlyFirstChartIsUsed(t *testing.T) {
	c := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {
			"other-1970-01-01-reading-activeEnergy": {"_id": "other"},
		},
	})
	other := readingChart
	other.SensorID = "other"

	assert.True(t, DailyAggregate(c, []types.ChartSpec{readingChart, other}).IsEmpty())
	assert.Equal(t, "other", DailyAggregate(c, []types.ChartSpec{other, readingChart}).ID())
}

func TestHasForecast(t *testing.T) {
	c := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {
			"sensorId-1970-01-01-forecast-activeEnergy": {"_id": "sensorId-1970-01-01-forecast-activeEnergy"},
		},
	})

	forecastChart := readingChart
	forecastChart.Source = "forecast"

	assert.True(t, HasForecast(c, []types.ChartSpec{forecastChart}))
	assert.True(t, HasForecast(c, []types.ChartSpec{readingChart}))
	assert.False(t, HasStandby(c, []types.ChartSpec{readingChart}))
}

func TestHasStandby(t *testing.T) {
	c := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {
			"sensorId-standby-1970-01-01-reading-activeEnergy": {"_id": "sensorId-standby-1970-01-01-reading-activeEnergy"},
		},
	})

	assert.True(t, HasStandby(c, []types.ChartSpec{readingChart}))
	assert.False(t, HasForecast(c, []types.ChartSpec{readingChart}))
}

func TestResolveCoversEveryLookup(t *testing.T) {
	c := types.NewCollections(map[string]map[string]types.Document{
		DailyCollection: {
			"sensorId-1970-01-01-reading-activeEnergy":         {"_id": "daily"},
			"sensorId-1970-01-01-forecast-activeEnergy":        {"_id": "forecast"},
			"sensorId-standby-1970-01-01-reading-activeEnergy": {"_id": "standby"},
		},
		YearlyCollection: {
			"sensorId-1970-reading-activeEnergy":         {"_id": "yearly"},
			"sensorId-standby-1970-reading-activeEnergy": {"_id": "yearly-standby"},
		},
	})

	agg := Resolve(c, readingChart)
	assert.Len(t, agg.Documents, len(Lookups))
	assert.Equal(t, "daily", agg.Daily().ID())
	assert.Equal(t, "yearly", agg.Consumption().ID())
	assert.Equal(t, "yearly-standby", agg.Get(YearlyStandby).ID())
	assert.True(t, agg.HasForecast())
	assert.True(t, agg.HasStandby())
}
