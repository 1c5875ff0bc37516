// Package state holds the process-wide application state: the navigation
// history and the replicated collection snapshot. All mutation goes through
// Dispatch, which runs the two reducers in order.
package state

import (
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vjranagit/homeenergy/pkg/metrics"
	"github.com/vjranagit/homeenergy/pkg/types"
)

// Clock supplies the wall-clock time used to stamp navigation entries
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now implements Clock
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now
var SystemClock Clock = ClockFunc(time.Now)

// State is an immutable view of the store at one point in time
type State struct {
	Navigation  NavigationState   `json:"analytics"`
	Collections types.Collections `json:"collections"`
	// Version increases every time the collection snapshot is replaced.
	Version uint64 `json:"version"`
}

// Listener observes committed transitions. Listeners run in dispatch order
// and must not call Dispatch themselves.
type Listener func(a Action, s State)

type (
	// Option configures a Store.
	Option interface{ apply(*Options) }

	// Options are the resolved store options.
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

// Store is the single owner of State
type Store struct {
	clock  Clock
	logger *slog.Logger

	// initial is replaced by SeedNavigation; guarded by dispatchMu.
	initial NavigationState

	// dispatchMu serialises transitions and listener delivery; mu guards
	// the committed state for readers.
	dispatchMu sync.Mutex
	mu         sync.RWMutex
	state      State

	listenersMu sync.RWMutex
	listeners   []registration
	nextID      int
}

// New creates a store whose initial navigation history is stamped with
// clock's current time.
func New(clock Clock, opts ...Option) *Store {
	if clock == nil {
		clock = SystemClock
	}

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

	initial := InitialNavigation(clock.Now())
	s := &Store{
		clock:   clock,
		initial: initial,
		logger:  logger,
		state:   State{Navigation: initial},
	}
	metrics.NavigationHistoryLength.Set(float64(initial.Len()))
	return s
}

// State returns the last committed state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies a, stamping any new navigation entry with the clock
func (s *Store) Dispatch(a Action) State {
	return s.DispatchAt(a, s.clock.Now())
}

// DispatchAt applies a as if it happened at now. Journal replay uses it to
// keep the original timestamps.
func (s *Store) DispatchAt(a Action, now time.Time) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := State{
		Navigation:  ReduceNavigation(prev.Navigation, a, now, s.initial),
		Collections: ReduceCollections(prev.Collections, a),
		Version:     prev.Version,
	}
	switch a.(type) {
	case CollectionsChange:
		next.Version++
	case SeedNavigation:
		s.initial = next.Navigation
	}
	s.state = next
	s.mu.Unlock()

	metrics.ActionsDispatched.WithLabelValues(a.Kind()).Inc()
	metrics.NavigationHistoryLength.Set(float64(next.Navigation.Len()))
	metrics.SnapshotDocuments.Set(float64(next.Collections.Len()))

	s.logger.Debug("action dispatched",
		slog.String("action", a.Kind()),
		slog.Int("history", next.Navigation.Len()),
		slog.Uint64("version", next.Version),
	)

	s.listenersMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.RUnlock()

	for _, r := range listeners {
		r.fn(a, next)
	}

	return next
}

// Subscribe registers l and returns a function removing it. Listeners are
// notified in registration order.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, registration{id: id, fn: l})

	return sync.OnceFunc(func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(r registration) bool {
			return r.id == id
		})
	})
}

type registration struct {
	id int
	fn Listener
}
