package home

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/homeenergy/pkg/aggregate"
	"github.com/vjranagit/homeenergy/pkg/state"
	"github.com/vjranagit/homeenergy/pkg/subscription"
	"github.com/vjranagit/homeenergy/pkg/types"
)

type recordingSubscriber struct {
	names []string
}

func (r *recordingSubscriber) Subscribe(_ context.Context, name string, _ ...any) error {
	r.names = append(r.names, name)
	return nil
}

type fakeSession struct {
	logouts int
}

func (f *fakeSession) Logout() { f.logouts++ }

var chart = types.ChartSpec{
	SensorID:        "sensorId",
	Source:          "reading",
	Day:             "1970-01-01",
	MeasurementType: "activeEnergy",
}

func newView(t *testing.T) (*View, *state.Store, *recordingSubscriber, *fakeSession) {
	t.Helper()
	store := state.New(state.ClockFunc(func() time.Time { return time.UnixMilli(0) }))
	sub := &recordingSubscriber{}
	session := &fakeSession{}
	v, err := New(store, subscription.NewManager(sub), session, WithCacheSize(16))
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v, store, sub, session
}

func TestChartConsumptionEmptyStore(t *testing.T) {
	v, _, _, _ := newView(t)
	require.NoError(t, v.Mount(context.Background(), subscription.Props{Site: "site", Charts: []types.ChartSpec{chart}}))

	got := v.ChartConsumption()
	assert.Equal(t, []types.ChartSpec{chart}, got.Charts)
	assert.True(t, got.DailyAggregates.IsEmpty())
	assert.True(t, got.ConsumptionAggregates.IsEmpty())
	assert.False(t, got.IsForecastData)
	assert.False(t, got.IsStandbyData)
}

func TestChartConsumptionFollowsSnapshot(t *testing.T) {
	v, store, _, _ := newView(t)
	require.NoError(t, v.Mount(context.Background(), subscription.Props{Site: "site", Charts: []types.ChartSpec{chart}}))

	store.Dispatch(state.CollectionsChange{Payload: types.NewCollections(map[string]map[string]types.Document{
		aggregate.DailyCollection: {
			"sensorId-1970-01-01-reading-activeEnergy": {"_id": "daily"},
		},
	})})
	first := v.ChartConsumption()
	assert.Equal(t, types.Document{"_id": "daily"}, first.DailyAggregates)
	assert.False(t, first.IsForecastData)

	store.Dispatch(state.CollectionsChange{Payload: types.NewCollections(map[string]map[string]types.Document{
		aggregate.DailyCollection: {
			"sensorId-1970-01-01-forecast-activeEnergy":        {"_id": "forecast"},
			"sensorId-standby-1970-01-01-reading-activeEnergy": {"_id": "standby"},
		},
		aggregate.YearlyCollection: {
			"sensorId-1970-reading-activeEnergy": {"_id": "yearly"},
		},
	})})
	second := v.ChartConsumption()
	assert.True(t, second.DailyAggregates.IsEmpty())
	assert.Equal(t, types.Document{"_id": "yearly"}, second.ConsumptionAggregates)
	assert.True(t, second.IsForecastData)
	assert.True(t, second.IsStandbyData)
}

func TestChartConsumptionNoCharts(t *testing.T) {
	v, _, _, _ := newView(t)
	require.NoError(t, v.Mount(context.Background(), subscription.Props{}))

	got := v.ChartConsumption()
	assert.Empty(t, got.Charts)
	assert.Nil(t, got.DailyAggregates)
}

func TestViewDelegatesSubscriptions(t *testing.T) {
	v, _, sub, _ := newView(t)
	ctx := context.Background()

	require.NoError(t, v.Mount(ctx, subscription.Props{}))
	assert.Equal(t, []string{subscription.SitesPublication}, sub.names)

	props := subscription.Props{Site: "site", Charts: []types.ChartSpec{chart}}
	require.NoError(t, v.ReceiveProps(ctx, props))
	assert.Len(t, sub.names, 1+len(aggregate.Lookups))
	assert.Equal(t, props, v.Props())

	require.NoError(t, v.ReceiveProps(ctx, props))
	assert.Len(t, sub.names, 1+len(aggregate.Lookups))
}

func TestViewKeepsPropsOnInvalidCharts(t *testing.T) {
	v, _, sub, _ := newView(t)
	ctx := context.Background()

	props := subscription.Props{Site: "site", Charts: []types.ChartSpec{chart}}
	require.NoError(t, v.Mount(ctx, props))

	undated := chart
	undated.Day = "yesterday"
	err := v.ReceiveProps(ctx, subscription.Props{Site: "site", Charts: []types.ChartSpec{undated}})
	require.ErrorIs(t, err, subscription.ErrInvalidProps)

	assert.Equal(t, props, v.Props())
	assert.Len(t, sub.names, 1+len(aggregate.Lookups))
}

func TestOnLogout(t *testing.T) {
	v, _, _, session := newView(t)
	v.OnLogout()
	assert.Equal(t, 1, session.logouts)
}
