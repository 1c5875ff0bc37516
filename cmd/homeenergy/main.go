package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vjranagit/homeenergy/internal/config"
	"github.com/vjranagit/homeenergy/pkg/api"
	"github.com/vjranagit/homeenergy/pkg/ddp"
	"github.com/vjranagit/homeenergy/pkg/home"
	"github.com/vjranagit/homeenergy/pkg/state"
	"github.com/vjranagit/homeenergy/pkg/storage"
	"github.com/vjranagit/homeenergy/pkg/subscription"
	"github.com/vjranagit/homeenergy/pkg/types"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		slog.Error("homeenergy stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("homeenergy starting",
		slog.String("version", version),
		slog.String("listen_addr", cfg.Server.ListenAddr),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("remote", cfg.Remote.Endpoint),
		slog.Int("charts", len(cfg.Home.Charts)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewStorage(cfg.ToStorageConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer db.Close()

	store := state.New(state.SystemClock, state.WithLogger(logger))
	seeded, err := restore(ctx, logger, store, db, cfg)
	if err != nil {
		return err
	}

	var wal *storage.WAL
	if cfg.Storage.EnableWAL {
		wal, err = storage.NewWAL(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer wal.Close()
	}

	p := newPersister(db, wal, logger)
	if !seeded {
		if err := p.rewrite(store.State().Navigation); err != nil {
			return err
		}
	}
	unsubscribe := store.Subscribe(p.observe)
	p.start()
	// runs before the deferred wal and db Close
	defer func() {
		unsubscribe()
		p.close()
	}()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Remote.DialTimeout)
	client, err := ddp.Dial(dialCtx, cfg.Remote.Endpoint,
		ddp.WithLogger(logger),
		ddp.WithBatchInterval(cfg.Remote.BatchInterval),
		ddp.WithDialTimeout(cfg.Remote.DialTimeout),
		ddp.WithSnapshotHandler(func(snap types.Collections) {
			store.Dispatch(state.CollectionsChange{Payload: snap})
		}),
	)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	manager := subscription.NewManager(client, subscription.WithLogger(logger))
	view, err := home.New(store, manager, client, home.WithLogger(logger))
	if err != nil {
		return err
	}
	defer view.Close()

	if err := view.Mount(ctx, subscription.Props{Site: cfg.Home.Site, Charts: cfg.Home.Charts}); err != nil {
		return fmt.Errorf("invalid home props: %w", err)
	}

	server := api.NewServer(cfg.Server.ListenAddr, store, view, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	case <-client.Done():
		runErr = remoteLost(client.Err())
		logger.Warn("remote connection lost, stopping server", slog.Any("error", client.Err()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancelShutdown()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return runErr
}

// remoteLost is the exit error of a run that ended because the remote
// connection closed, so supervisors see a failure.
func remoteLost(err error) error {
	if err == nil {
		return errors.New("remote connection closed")
	}
	return fmt.Errorf("remote connection lost: %w", err)
}

// restore loads the persisted snapshot and replays the navigation journal
// before any listener is attached, so neither is written back. seeded
// reports whether the journal opened with its seed entry; otherwise the
// journal must be rewritten from the current history.
func restore(ctx context.Context, logger *slog.Logger, store *state.Store, db storage.Storage, cfg *config.Config) (seeded bool, err error) {
	snap, saved, err := db.LoadSnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if !snap.IsEmpty() {
		store.Dispatch(state.CollectionsChange{Payload: snap})
		logger.Info("snapshot restored",
			slog.Uint64("saved_version", saved),
			slog.Int("documents", snap.Len()),
		)
	}

	if !cfg.Storage.EnableWAL {
		return false, nil
	}

	replayed := 0
	err = storage.ReplayWAL(cfg.Storage.Path, func(e storage.WALEntry) error {
		a, err := state.DecodeAction(e.Action)
		if err != nil {
			logger.Warn("skipping journal entry", slog.Any("error", err))
			return nil
		}
		if _, ok := a.(state.SeedNavigation); ok && replayed == 0 {
			seeded = true
		}
		store.DispatchAt(a, e.Timestamp)
		replayed++
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to replay journal: %w", err)
	}
	if replayed > 0 {
		logger.Info("navigation journal replayed", slog.Int("actions", replayed), slog.Bool("seeded", seeded))
	}
	return seeded, nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}

// persister journals navigation actions and saves collection snapshots off
// the dispatch path. Only the newest pending snapshot is kept.
type persister struct {
	db     storage.Storage
	wal    *storage.WAL
	logger *slog.Logger
	snaps  chan state.State

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPersister(db storage.Storage, wal *storage.WAL, logger *slog.Logger) *persister {
	return &persister{
		db:     db,
		wal:    wal,
		logger: logger,
		snaps:  make(chan state.State, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (p *persister) observe(a state.Action, s state.State) {
	switch a.(type) {
	case state.NavigateView, state.NavigateBack:
		if err := p.journal(a, s.Navigation.Current().Timestamp); err != nil {
			p.logger.Error("failed to journal action", slog.Any("error", err))
		}
	case state.PostAnalytics:
		if err := p.rewrite(s.Navigation); err != nil {
			p.logger.Error("failed to reset journal", slog.Any("error", err))
		}
	case state.CollectionsChange:
		select {
		case p.snaps <- s:
		default:
			// replace the pending snapshot
			select {
			case <-p.snaps:
			default:
			}
			select {
			case p.snaps <- s:
			default:
			}
		}
	}
}

// rewrite replaces the journal with nav: a seed for its first entry, then
// one NavigateView per later entry, each with its recorded timestamp.
func (p *persister) rewrite(nav state.NavigationState) error {
	if p.wal == nil || nav.Len() == 0 {
		return nil
	}
	if err := p.wal.Truncate(); err != nil {
		return fmt.Errorf("failed to truncate journal: %w", err)
	}

	first := nav.History[0]
	if err := p.journal(state.SeedNavigation{View: first.View}, first.Timestamp); err != nil {
		return err
	}
	for _, e := range nav.History[1:] {
		if err := p.journal(state.NavigateView{View: e.View}, e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func (p *persister) journal(a state.Action, timestamp int64) error {
	if p.wal == nil {
		return nil
	}
	data, err := state.EncodeAction(a)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}
	return p.wal.Append(time.UnixMilli(timestamp), data)
}

func (p *persister) start() {
	go p.run()
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case s := <-p.snaps:
			p.save(s)
		case <-p.stop:
			select {
			case s := <-p.snaps:
				p.save(s)
			default:
			}
			return
		}
	}
}

// close stops the saver once any pending snapshot is written. It must be
// called after start and before the storage is closed.
func (p *persister) close() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *persister) save(s state.State) {
	if err := p.db.SaveSnapshot(context.Background(), s.Version, s.Collections); err != nil {
		p.logger.Error("failed to save snapshot", slog.Any("error", err))
	}
}
