package aggregate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vjranagit/homeenergy/pkg/types"
)

// Collection names of the aggregate publications
const (
	DailyCollection  = "readings-daily-aggregates"
	YearlyCollection = "consumptions-yearly-aggregates"
)

const standbyToken = "standby"

// ErrInvalidKey is returned when a key component is missing
var ErrInvalidKey = errors.New("invalid aggregate key")

// Bucket is the temporal granularity of an aggregate document
type Bucket int

const (
	Day Bucket = iota
	Year
)

func (b Bucket) String() string {
	switch b {
	case Day:
		return "day"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("bucket(%d)", int(b))
	}
}

// Variant distinguishes regular aggregates from standby aggregates
type Variant int

const (
	Normal Variant = iota
	Standby
)

func (v Variant) String() string {
	switch v {
	case Normal:
		return "normal"
	case Standby:
		return standbyToken
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Key is a composite document key in an aggregate collection
type Key string

// NewKey is the only place composite keys are assembled. Every component
// must be non-empty.
func NewKey(sensorID string, bucket Bucket, period, source, measurementType string, variant Variant) (Key, error) {
	fields := []struct{ name, value string }{
		{"sensorId", sensorID},
		{bucket.String(), period},
		{"source", source},
		{"measurementType", measurementType},
	}
	for _, f := range fields {
		if f.value == "" {
			return "", fmt.Errorf("%w: empty %s", ErrInvalidKey, f.name)
		}
	}
	if variant != Normal && variant != Standby {
		return "", fmt.Errorf("%w: unknown %s", ErrInvalidKey, variant)
	}

	parts := make([]string, 0, 5)
	parts = append(parts, sensorID)
	if variant == Standby {
		parts = append(parts, standbyToken)
	}
	parts = append(parts, period, source, measurementType)
	return Key(strings.Join(parts, "-")), nil
}

// Lookup describes one aggregate document a chart may need. The same
// enumeration drives both resolution and subscription fan-out.
type Lookup struct {
	Name       string
	Collection string
	Bucket     Bucket
	Variant    Variant
	// Forecast substitutes the chart's source with "forecast".
	Forecast bool
}

var (
	DailyReading      = Lookup{Name: "daily-reading", Collection: DailyCollection, Bucket: Day, Variant: Normal}
	DailyForecast     = Lookup{Name: "daily-forecast", Collection: DailyCollection, Bucket: Day, Variant: Normal, Forecast: true}
	DailyStandby      = Lookup{Name: "daily-standby", Collection: DailyCollection, Bucket: Day, Variant: Standby}
	YearlyConsumption = Lookup{Name: "yearly-consumption", Collection: YearlyCollection, Bucket: Year, Variant: Normal}
	YearlyStandby     = Lookup{Name: "yearly-standby", Collection: YearlyCollection, Bucket: Year, Variant: Standby}
)

// Lookups lists every aggregate a chart can require
var Lookups = []Lookup{
	DailyReading,
	DailyForecast,
	DailyStandby,
	YearlyConsumption,
	YearlyStandby,
}

// Source returns the source the lookup queries for chart
func (l Lookup) Source(chart types.ChartSpec) string {
	if l.Forecast {
		return types.SourceForecast
	}
	return chart.Source
}

// Period returns the temporal token of the lookup for chart
func (l Lookup) Period(chart types.ChartSpec) (string, error) {
	if l.Bucket == Day {
		return chart.Day, nil
	}
	day, err := time.Parse(time.DateOnly, chart.Day)
	if err != nil {
		return "", fmt.Errorf("%w: day %q has no year", ErrInvalidKey, chart.Day)
	}
	return day.Format("2006"), nil
}

// Key builds the document key the lookup reads for chart
func (l Lookup) Key(chart types.ChartSpec) (Key, error) {
	period, err := l.Period(chart)
	if err != nil {
		return "", err
	}
	return NewKey(chart.SensorID, l.Bucket, period, l.Source(chart), chart.MeasurementType, l.Variant)
}

// ValidateChart reports whether every lookup key can be built for chart,
// which requires a YYYY-MM-DD day.
func ValidateChart(chart types.ChartSpec) error {
	for _, l := range Lookups {
		if _, err := l.Key(chart); err != nil {
			return fmt.Errorf("chart %s/%s/%s: %w", chart.SensorID, chart.Source, chart.MeasurementType, err)
		}
	}
	return nil
}
