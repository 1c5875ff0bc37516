// Package home is the view model behind the home screen: it keeps the
// measurement subscriptions in line with the selected charts and derives
// the chart aggregates from the replicated collections.
package home

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/vjranagit/homeenergy/pkg/aggregate"
	"github.com/vjranagit/homeenergy/pkg/state"
	"github.com/vjranagit/homeenergy/pkg/subscription"
	"github.com/vjranagit/homeenergy/pkg/types"
)

// Session ends the user's remote session
type Session interface {
	Logout()
}

// ChartConsumption is what the home charts render
type ChartConsumption struct {
	Charts                []types.ChartSpec `json:"charts"`
	ConsumptionAggregates types.Document    `json:"consumptionAggregates"`
	DailyAggregates       types.Document    `json:"dailyAggregates"`
	IsForecastData        bool              `json:"isForecastData"`
	IsStandbyData         bool              `json:"isStandbyData"`
}

type (
	// Option configures a View.
	Option interface{ apply(*Options) }

	// Options are the resolved view options.
	Options struct {
		Logger    *slog.Logger
		CacheSize int64
	}

	withLogger    struct{ *slog.Logger }
	withCacheSize int64
)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) apply(opt *Options) {
	opt.Logger = o.Logger
}

// WithCacheSize bounds the number of memoised chart results.
func WithCacheSize(n int64) Option {
	return withCacheSize(n)
}

func (o withCacheSize) apply(opt *Options) {
	opt.CacheSize = int64(o)
}

// View binds the store, the subscription manager and the session
type View struct {
	store   *state.Store
	manager *subscription.Manager
	session Session
	cache   *aggregate.Cache
	logger  *slog.Logger

	mu    sync.RWMutex
	props subscription.Props
}

// New creates a home view. Close releases its resolver cache.
func New(store *state.Store, manager *subscription.Manager, session Session, opts ...Option) (*View, error) {
	o := Options{CacheSize: 256}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&o)
		}
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cache, err := aggregate.NewCache(o.CacheSize)
	if err != nil {
		return nil, err
	}
	return &View{
		store:   store,
		manager: manager,
		session: session,
		cache:   cache,
		logger:  logger,
	}, nil
}

// Mount issues the initial subscriptions for props. Invalid props are
// not kept.
func (v *View) Mount(ctx context.Context, props subscription.Props) error {
	if err := v.manager.Mount(ctx, props); err != nil {
		return err
	}
	v.setProps(props)
	return nil
}

// ReceiveProps updates the props and re-subscribes if needed. Invalid props
// leave the current ones in place.
func (v *View) ReceiveProps(ctx context.Context, props subscription.Props) error {
	if err := v.manager.ReceiveProps(ctx, props); err != nil {
		return err
	}
	v.setProps(props)
	return nil
}

// Props returns the props last received
func (v *View) Props() subscription.Props {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return subscription.Props{Site: v.props.Site, Charts: slices.Clone(v.props.Charts)}
}

func (v *View) setProps(props subscription.Props) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.props = subscription.Props{Site: props.Site, Charts: slices.Clone(props.Charts)}
}

// ChartConsumption resolves the aggregates of the first chart against the
// current collection snapshot.
func (v *View) ChartConsumption() ChartConsumption {
	props := v.Props()
	out := ChartConsumption{Charts: props.Charts}
	if len(props.Charts) == 0 {
		return out
	}

	s := v.store.State()
	agg := v.cache.Resolve(s.Version, s.Collections, props.Charts[0])
	out.DailyAggregates = agg.Daily()
	out.ConsumptionAggregates = agg.Consumption()
	out.IsForecastData = agg.HasForecast()
	out.IsStandbyData = agg.HasStandby()
	return out
}

// OnLogout ends the remote session
func (v *View) OnLogout() {
	v.logger.Info("logout")
	v.session.Logout()
}

// Close releases the resolver cache
func (v *View) Close() {
	v.cache.Close()
}
