// Package maintenance runs periodic housekeeping over the shared state:
// pruning stale local suppressions, evicting resolved broadcasts past their
// retention window, and trimming the notification history.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"helplink/internal/entity"
	"helplink/internal/kv"
	"helplink/internal/negotiation"
	"helplink/internal/notify"
	"helplink/internal/state"
	"helplink/pkg/logx"
)

type Config struct {
	Enabled     bool
	Schedule    string
	ResolvedTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Schedule == "" {
		c.Schedule = "@every 10m"
	}
	if c.ResolvedTTL <= 0 {
		c.ResolvedTTL = 24 * time.Hour
	}
}

type Service struct {
	cfg   Config
	log   logx.Logger
	store *state.Store
	kv    kv.Store
	neg   *negotiation.Service
	ntf   *notify.Service

	c   *cron.Cron
	now func() time.Time
}

func New(cfg Config, store *state.Store, db kv.Store, neg *negotiation.Service, ntf *notify.Service, log logx.Logger) *Service {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, store: store, kv: db, neg: neg, ntf: ntf, now: time.Now}
}

// Start registers the sweep job and starts cron triggering.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled || s.c != nil {
		return nil
	}
	s.c = cron.New()
	if _, err := s.c.AddFunc(s.cfg.Schedule, func() { s.Sweep(ctx) }); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("service started", logx.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.c == nil {
		return
	}
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.c = nil
	s.log.Info("service stopped")
}

// Sweep runs one housekeeping pass. Safe to call directly, cron just
// triggers it.
func (s *Service) Sweep(ctx context.Context) {
	pruned := s.neg.PruneDismissed()
	evicted := s.evictResolved(ctx)
	trimmed := s.ntf.TrimHistory()

	if pruned+evicted+trimmed > 0 {
		s.log.Info("sweep done",
			logx.Int("suppressions_pruned", pruned),
			logx.Int("broadcasts_evicted", evicted),
			logx.Int("history_trimmed", trimmed))
	}
}

// evictResolved drops resolved broadcasts older than the retention window
// from the shared collection.
func (s *Service) evictResolved(ctx context.Context) int {
	broadcasts := s.store.Broadcasts()
	cutoff := s.now().Add(-s.cfg.ResolvedTTL)

	kept := make([]entity.Broadcast, 0, len(broadcasts))
	for _, b := range broadcasts {
		if b.Status == entity.BroadcastResolved && b.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, b)
	}
	evicted := len(broadcasts) - len(kept)
	if evicted == 0 {
		return 0
	}

	s.store.ReplaceBroadcasts(kept)
	if err := kv.SaveJSON(ctx, s.kv, state.KeyBroadcasts, kept); err != nil {
		s.log.Warn("persist evicted broadcasts failed", logx.Err(err))
	}
	return evicted
}
