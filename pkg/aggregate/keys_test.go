package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/homeenergy/pkg/types"
)

func TestNewKey(t *testing.T) {
	tests := []struct {
		name    string
		bucket  Bucket
		period  string
		source  string
		variant Variant
		want    Key
	}{
		{"daily", Day, "1970-01-01", "reading", Normal, "sensorId-1970-01-01-reading-activeEnergy"},
		{"yearly", Year, "1970", "reading", Normal, "sensorId-1970-reading-activeEnergy"},
		{"standby", Day, "1970-01-01", "reading", Standby, "sensorId-standby-1970-01-01-reading-activeEnergy"},
		{"forecast", Day, "1970-01-01", "forecast", Normal, "sensorId-1970-01-01-forecast-activeEnergy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := NewKey("sensorId", tt.bucket, tt.period, tt.source, "activeEnergy", tt.variant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestNewKeyRejectsEmptyComponents(t *testing.T) {
	_, err := NewKey("", Day, "1970-01-01", "reading", "activeEnergy", Normal)
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewKey("sensorId", Year, "", "reading", "activeEnergy", Normal)
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.Contains(t, err.Error(), "year")

	_, err = NewKey("sensorId", Day, "1970-01-01", "reading", "", Normal)
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewKey("sensorId", Day, "1970-01-01", "reading", "activeEnergy", Variant(7))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestLookupKeys(t *testing.T) {
	chart := types.ChartSpec{
		SensorID:        "sensorId",
		Source:          "reading",
		Day:             "2016-03-14",
		MeasurementType: "activeEnergy",
	}

	want := map[string]Key{
		"daily-reading":      "sensorId-2016-03-14-reading-activeEnergy",
		"daily-forecast":     "sensorId-2016-03-14-forecast-activeEnergy",
		"daily-standby":      "sensorId-standby-2016-03-14-reading-activeEnergy",
		"yearly-consumption": "sensorId-2016-reading-activeEnergy",
		"yearly-standby":     "sensorId-standby-2016-reading-activeEnergy",
	}

	require.Len(t, Lookups, len(want))
	for _, l := range Lookups {
		key, err := l.Key(chart)
		require.NoError(t, err, l.Name)
		assert.Equal(t, want[l.Name], key, l.Name)
	}
}

func TestYearlyLookupNeedsDate(t *testing.T) {
	chart := types.ChartSpec{SensorID: "s", Source: "reading", Day: "day", MeasurementType: "m"}

	_, err := YearlyConsumption.Key(chart)
	require.ErrorIs(t, err, ErrInvalidKey)

	key, err := DailyReading.Key(chart)
	require.NoError(t, err)
	assert.Equal(t, Key("s-day-reading-m"), key)
}

func TestValidateChart(t *testing.T) {
	valid := types.ChartSpec{SensorID: "s", Source: "reading", Day: "2016-03-14", MeasurementType: "m"}
	require.NoError(t, ValidateChart(valid))

	noYear := valid
	noYear.Day = "day"
	err := ValidateChart(noYear)
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.Contains(t, err.Error(), "year")

	noSensor := valid
	noSensor.SensorID = ""
	require.ErrorIs(t, ValidateChart(noSensor), ErrInvalidKey)
}
