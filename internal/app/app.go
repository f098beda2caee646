package app

import (
	"context"
	"fmt"
	"time"

	"helplink/internal/advisory"
	"helplink/internal/config"
	"helplink/internal/entity"
	"helplink/internal/eventbus"
	"helplink/internal/kv"
	"helplink/internal/maintenance"
	"helplink/internal/negotiation"
	"helplink/internal/notify"
	"helplink/internal/observability/debug"
	"helplink/internal/reconcile"
	"helplink/internal/state"
	"helplink/internal/wall"
	logx "helplink/pkg/logx"
)

// App wires the coordination layer: the shared durable store, the in-memory
// snapshot, the services operating on it, and the sync loop that turns
// external writes into state replacements and notifications.
type App struct {
	cfg *config.Config
	sup *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	db    kv.Store
	store *state.Store
	guard *reconcile.Guard
	actor reconcile.Actor

	neg   *negotiation.Service
	ntf   *notify.Service
	wall  *wall.Service
	adv   *advisory.Client
	maint *maintenance.Service
	dbg   *debug.Server
}

func NewApp(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	debounce, err := config.ParseDurationField("storage.debounce", cfg.Storage.Debounce)
	if err != nil {
		return nil, err
	}
	poll, err := config.ParseDurationField("storage.poll_interval", cfg.Storage.PollInterval)
	if err != nil {
		return nil, err
	}
	db, err := kv.Open(kv.Config{
		Driver:       cfg.Storage.Driver,
		Path:         cfg.Storage.Path,
		Debounce:     debounce,
		PollInterval: poll,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	role := entity.Role(cfg.Actor.Role)
	actor := reconcile.Actor{
		Role:     role,
		UserID:   cfg.Actor.SessionKey(),
		ExpertID: cfg.Actor.ExpertID,
	}

	store := state.New()

	ncfg := notify.Config{}
	if nc := cfg.Notifier; nc != nil {
		ttl, err := config.ParseDurationField("notifier.ttl", nc.TTL)
		if err != nil {
			return nil, err
		}
		ncfg = notify.Config{TTL: ttl, RatePerSec: nc.RatePerSec, HistorySize: nc.HistorySize}
	}
	ntf := notify.New(ncfg, store, log.With(logx.String("comp", "notify")))

	neg := negotiation.New(store, db, negotiation.Actor{
		Role:     role,
		UserID:   actor.UserID,
		Name:     cfg.Actor.Name,
		ExpertID: cfg.Actor.ExpertID,
	}, log.With(logx.String("comp", "negotiation")))

	wallSvc := wall.New(store, db, role, log.With(logx.String("comp", "wall")))

	var adv *advisory.Client
	if ac := cfg.Advisory; ac != nil {
		timeout, err := config.ParseDurationOrDefault("advisory.timeout", ac.Timeout, 30*time.Second)
		if err != nil {
			return nil, err
		}
		opts := []advisory.Option{
			advisory.WithLogger(log.With(logx.String("comp", "advisory"))),
			advisory.WithHTTPClient(newHTTPClient(timeout)),
		}
		if ac.BaseURL != "" {
			opts = append(opts, advisory.WithBaseURL(ac.BaseURL))
		}
		if ac.RatePerSec > 0 {
			opts = append(opts, advisory.WithRateLimit(float64(ac.RatePerSec)))
		}
		adv = advisory.New(ac.APIKey, opts...)
	}

	var maint *maintenance.Service
	if mc := cfg.Maintenance; mc != nil && mc.Enabled {
		ttl, err := config.ParseDurationOrDefault("maintenance.resolved_ttl", mc.ResolvedTTL, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		maint = maintenance.New(maintenance.Config{
			Enabled:     true,
			Schedule:    mc.Schedule,
			ResolvedTTL: ttl,
		}, store, db, neg, ntf, log.With(logx.String("comp", "maintenance")))
	}

	var dbg *debug.Server
	if dc := cfg.Debug; dc != nil && dc.Enabled {
		dbg = debug.New(debug.Config{
			Enabled:       true,
			Addr:          dc.Addr,
			Token:         dc.Token,
			AllowInsecure: dc.AllowInsecure,
		}, store, ntf, log.With(logx.String("comp", "debug")))
	}

	return &App{
		cfg:   cfg,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		db:    db,
		store: store,
		guard: reconcile.NewGuard(),
		actor: actor,
		neg:   neg,
		ntf:   ntf,
		wall:  wallSvc,
		adv:   adv,
		maint: maint,
		dbg:   dbg,
	}, nil
}

func (a *App) Negotiation() *negotiation.Service { return a.neg }
func (a *App) Notifications() *notify.Service    { return a.ntf }
func (a *App) Wall() *wall.Service               { return a.wall }
func (a *App) Advisory() *advisory.Client        { return a.adv }
func (a *App) State() *state.Store               { return a.store }
func (a *App) Bus() eventbus.Bus                 { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	runCtx := a.sup.Context()

	if err := a.bootstrap(runCtx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	// The storage watch self-heals; losing a watcher must not take down the
	// sync loop.
	a.sup.GoRestart("storage.watch", a.db.Watch)

	changes, unsub := a.db.Subscribe(64)
	a.sup.Go0("sync.loop", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				a.applyChange(c, ch)
			}
		}
	})

	if a.maint != nil {
		if err := a.maint.Start(runCtx); err != nil {
			return fmt.Errorf("maintenance: %w", err)
		}
	}

	if a.dbg != nil && a.dbg.Enabled() {
		a.sup.GoRestart("debug.serve", a.dbg.Serve)
	}

	events, unsubBus := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubBus()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.log.Info("started",
		logx.String("role", string(a.actor.Role)),
		logx.String("driver", a.cfg.Storage.Driver),
		logx.String("path", a.cfg.Storage.Path))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.maint != nil {
		a.maint.Stop(ctx)
	}
	a.ntf.Stop()

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if cerr := a.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("stopped")
	return err
}
