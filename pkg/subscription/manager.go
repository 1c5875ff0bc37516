// Package subscription decides which remote publications the home view needs
// and issues them through a Subscriber.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/vjranagit/homeenergy/pkg/aggregate"
	"github.com/vjranagit/homeenergy/pkg/metrics"
	"github.com/vjranagit/homeenergy/pkg/types"
)

// SitesPublication is subscribed once on mount to discover the user's sites
const SitesPublication = "sites"

// Subscriber issues a subscription on the remote real-time API. Identical
// requests may be issued more than once; implementations de-duplicate them.
type Subscriber interface {
	Subscribe(ctx context.Context, name string, params ...any) error
}

// Props are the inputs the subscriptions are derived from
type Props struct {
	Site   string            `json:"site"`
	Charts []types.ChartSpec `json:"charts"`
}

// Equal reports whether p and o request the same subscriptions
func (p Props) Equal(o Props) bool {
	return p.Site == o.Site && slices.Equal(p.Charts, o.Charts)
}

// ErrInvalidProps is returned for props holding a chart whose aggregate
// keys cannot be built
var ErrInvalidProps = errors.New("invalid props")

// Validate checks that every chart can be planned in full
func (p Props) Validate() error {
	for i, chart := range p.Charts {
		if err := aggregate.ValidateChart(chart); err != nil {
			return fmt.Errorf("%w: charts[%d]: %w", ErrInvalidProps, i, err)
		}
	}
	return nil
}

// Descriptor is one measurement subscription
type Descriptor struct {
	Collection      string
	SensorID        string
	Source          string
	MeasurementType string
	Period          string
	Variant         aggregate.Variant
}

// Params returns the publication arguments for the descriptor
func (d Descriptor) Params() []any {
	return []any{d.SensorID, d.Period, d.Source, d.MeasurementType, d.Variant.String()}
}

type (
	// Option configures a Manager.
	Option interface{ apply(*Options) }

	// Options are the resolved manager options.
	Options struct {
		Logger *slog.Logger
	}

	withLogger struct{ *slog.Logger }
)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) apply(opt *Options) {
	opt.Logger = o.Logger
}

// Manager keeps the remote subscriptions in line with the current props
type Manager struct {
	subscriber Subscriber
	logger     *slog.Logger

	mu      sync.Mutex
	mounted bool
	issued  *Props
}

// NewManager creates a manager issuing subscriptions through s
func NewManager(s Subscriber, opts ...Option) *Manager {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&o)
		}
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{subscriber: s, logger: logger}
}

// Plan expands charts into the measurement subscriptions they need: one per
// chart and aggregate lookup. Lookups whose key cannot be built for a chart
// are reported in skipped.
func Plan(charts []types.ChartSpec) (plan []Descriptor, skipped []error) {
	plan = make([]Descriptor, 0, len(charts)*len(aggregate.Lookups))
	for _, chart := range charts {
		for _, l := range aggregate.Lookups {
			if _, err := l.Key(chart); err != nil {
				skipped = append(skipped, err)
				continue
			}
			period, _ := l.Period(chart)
			plan = append(plan, Descriptor{
				Collection:      l.Collection,
				SensorID:        chart.SensorID,
				Source:          l.Source(chart),
				MeasurementType: chart.MeasurementType,
				Period:          period,
				Variant:         l.Variant,
			})
		}
	}
	return plan, skipped
}

// Mount subscribes to the site list, once per manager, and to the
// measurements of props when a site is selected. Invalid props still get
// the site list but no measurement subscriptions.
func (m *Manager) Mount(ctx context.Context, props Props) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted {
		m.mounted = true
		m.subscribe(ctx, SitesPublication)
	}

	if err := props.Validate(); err != nil {
		return err
	}
	if props.Site != "" {
		m.subscribeToMeasures(ctx, props)
	}
	return nil
}

// ReceiveProps re-issues the measurement subscriptions when a site is
// selected and the props differ from the ones last issued. Invalid props
// are rejected and leave the issued subscriptions unchanged.
func (m *Manager) ReceiveProps(ctx context.Context, next Props) error {
	if err := next.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if next.Site == "" {
		return nil
	}
	if m.issued != nil && m.issued.Equal(next) {
		m.logger.Debug("subscriptions unchanged", slog.String("site", next.Site))
		return nil
	}
	m.subscribeToMeasures(ctx, next)
	return nil
}

func (m *Manager) subscribeToMeasures(ctx context.Context, props Props) {
	plan, skipped := Plan(props.Charts)
	for _, err := range skipped {
		m.logger.Warn("skipping measurement subscription", slog.Any("error", err))
	}

	for _, d := range plan {
		m.subscribe(ctx, d.Collection, d.Params()...)
	}

	issued := Props{Site: props.Site, Charts: slices.Clone(props.Charts)}
	m.issued = &issued

	m.logger.Info("measurement subscriptions issued",
		slog.String("site", props.Site),
		slog.Int("charts", len(props.Charts)),
		slog.Int("subscriptions", len(plan)),
	)
}

// subscribe is fire-and-forget: failures are logged and counted, and
// retrying is left to the transport.
func (m *Manager) subscribe(ctx context.Context, name string, params ...any) {
	metrics.SubscriptionsIssued.WithLabelValues(name).Inc()
	if err := m.subscriber.Subscribe(ctx, name, params...); err != nil {
		metrics.SubscriptionErrors.Inc()
		m.logger.Error("subscribe failed",
			slog.String("name", name),
			slog.Any("params", params),
			slog.Any("error", err),
		)
	}
}
