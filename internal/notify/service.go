// Package notify is the transient alert surface: dismissible, time-boxed
// notifications, some carrying a deep link to a broadcast. Notifications are
// owned entirely by this service and never persisted.
package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"helplink/internal/entity"
	"helplink/internal/state"
	logx "helplink/pkg/logx"
)

// Severity tags how an alert is rendered.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityOffer   Severity = "offer"
)

// Notification is a single transient alert.
type Notification struct {
	ID          string
	Message     string
	Severity    Severity
	BroadcastID string // optional deep link
	PostedAt    time.Time
}

type Config struct {
	TTL         time.Duration // auto-expiry; default 5s
	RatePerSec  int           // post rate limit; default 5
	HistorySize int           // bounded history ring; default 100
}

type item struct {
	n     Notification
	timer *time.Timer
}

// Service posts, expires and dismisses notifications. Safe for concurrent
// use. Deep-link clicks resolve against the live entity store, never a
// stale capture.
type Service struct {
	log   logx.Logger
	store *state.Store

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	active  map[string]*item
	order   []string

	history []Notification
}

func New(cfg Config, store *state.Store, log logx.Logger) *Service {
	s := &Service{
		log:    log,
		store:  store,
		active: map[string]*item{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't get eaten.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Post surfaces a new notification and returns its id. Posts beyond the
// rate limit are dropped (they are transient by contract, so losing an
// excess burst is preferable to queueing stale alerts).
func (s *Service) Post(message string, severity Severity, broadcastID string) string {
	s.mu.Lock()
	if !s.limiter.Allow() {
		s.mu.Unlock()
		s.log.Debug("notification dropped (rate limited)", logx.String("severity", string(severity)))
		return ""
	}

	n := Notification{
		ID:          entity.NewID("ntf"),
		Message:     message,
		Severity:    severity,
		BroadcastID: broadcastID,
		PostedAt:    time.Now(),
	}
	it := &item{n: n}
	it.timer = time.AfterFunc(s.cfg.TTL, func() { s.expire(n.ID) })
	s.active[n.ID] = it
	s.order = append(s.order, n.ID)
	s.appendHistoryLocked(n)
	s.mu.Unlock()

	s.log.Debug("notification posted",
		logx.String("id", n.ID),
		logx.String("severity", string(severity)),
		logx.Bool("deep_link", broadcastID != ""),
	)
	return n.ID
}

// Dismiss removes a notification early. Dismissing twice, or dismissing an
// id that already expired, is a no-op.
func (s *Service) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.active[id]
	if !ok {
		return
	}
	it.timer.Stop()
	s.removeLocked(id)
}

func (s *Service) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; !ok {
		return
	}
	s.removeLocked(id)
}

func (s *Service) removeLocked(id string) {
	delete(s.active, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Active returns the currently visible notifications in post order.
func (s *Service) Active() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0, len(s.order))
	for _, id := range s.order {
		if it, ok := s.active[id]; ok {
			out = append(out, it.n)
		}
	}
	return out
}

// History returns the bounded record of everything posted this session.
func (s *Service) History() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.history))
	copy(out, s.history)
	return out
}

// Click follows a notification's deep link. The broadcast is resolved from
// the freshest store snapshot; the detail surface opens only if it still
// carries at least one offer, otherwise a fallback notification explains
// there is nothing to show.
func (s *Service) Click(id string) (entity.Broadcast, bool) {
	s.mu.Lock()
	it, ok := s.active[id]
	var broadcastID string
	if ok {
		broadcastID = it.n.BroadcastID
	}
	s.mu.Unlock()

	if !ok || broadcastID == "" {
		return entity.Broadcast{}, false
	}

	b, found := s.store.BroadcastByID(broadcastID)
	if !found || len(b.Offers) == 0 {
		s.Post("This broadcast has no offers yet.", SeverityInfo, "")
		return entity.Broadcast{}, false
	}
	return b, true
}

func (s *Service) appendHistoryLocked(n Notification) {
	s.history = append(s.history, n)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}

// TrimHistory drops history beyond the configured bound and reports how many
// entries were removed (maintenance hook).
func (s *Service) TrimHistory() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = s.history[over:]
		return over
	}
	return 0
}

// Stop cancels all pending expiry timers.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, it := range s.active {
		it.timer.Stop()
		delete(s.active, id)
	}
	s.order = nil
}
