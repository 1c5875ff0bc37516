// Package aggregate resolves the daily and yearly aggregate documents a chart
// renders from the local collection snapshot.
//
// All lookups are total: a missing collection, a missing key or a chart whose
// key cannot be built all resolve to the empty document, which callers treat
// as "no data yet".
package aggregate

import (
	"github.com/vjranagit/homeenergy/pkg/types"
)

// ChartAggregates holds every aggregate resolved for one chart
type ChartAggregates struct {
	Documents map[string]types.Document
}

// Get returns the document resolved for lookup, or the empty document
func (a ChartAggregates) Get(lookup Lookup) types.Document {
	if doc, ok := a.Documents[lookup.Name]; ok {
		return doc
	}
	return types.Document{}
}

// Daily returns the daily aggregate for the chart's own source
func (a ChartAggregates) Daily() types.Document { return a.Get(DailyReading) }

// Consumption returns the yearly consumption aggregate
func (a ChartAggregates) Consumption() types.Document { return a.Get(YearlyConsumption) }

// HasForecast reports whether a daily forecast aggregate is present
func (a ChartAggregates) HasForecast() bool { return !a.Get(DailyForecast).IsEmpty() }

// HasStandby reports whether a daily standby aggregate is present
func (a ChartAggregates) HasStandby() bool { return !a.Get(DailyStandby).IsEmpty() }

// Resolve looks up every entry of Lookups for chart
func Resolve(c types.Collections, chart types.ChartSpec) ChartAggregates {
	out := ChartAggregates{Documents: make(map[string]types.Document, len(Lookups))}
	for _, l := range Lookups {
		if doc, ok := find(c, chart, l); ok {
			out.Documents[l.Name] = doc
		}
	}
	return out
}

// DailyAggregate returns the daily aggregate of the first chart
func DailyAggregate(c types.Collections, charts []types.ChartSpec) types.Document {
	return lookupFirst(c, charts, DailyReading)
}

// ConsumptionAggregate returns the yearly consumption aggregate of the first chart
func ConsumptionAggregate(c types.Collections, charts []types.ChartSpec) types.Document {
	return lookupFirst(c, charts, YearlyConsumption)
}

// HasForecast reports whether the first chart has forecast data for its day
func HasForecast(c types.Collections, charts []types.ChartSpec) bool {
	return !lookupFirst(c, charts, DailyForecast).IsEmpty()
}

// HasStandby reports whether the first chart has standby data for its day
func HasStandby(c types.Collections, charts []types.ChartSpec) bool {
	return !lookupFirst(c, charts, DailyStandby).IsEmpty()
}

func lookupFirst(c types.Collections, charts []types.ChartSpec, l Lookup) types.Document {
	if len(charts) == 0 {
		return types.Document{}
	}
	doc, ok := find(c, charts[0], l)
	if !ok {
		return types.Document{}
	}
	return doc
}

func find(c types.Collections, chart types.ChartSpec, l Lookup) (types.Document, bool) {
	key, err := l.Key(chart)
	if err != nil {
		return nil, false
	}
	doc, ok := c.Get(l.Collection, string(key))
	if !ok || doc == nil {
		return nil, false
	}
	return doc, true
}
