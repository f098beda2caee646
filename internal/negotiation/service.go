package negotiation

import (
	"context"
	"sync"
	"time"

	"helplink/internal/entity"
	"helplink/internal/kv"
	"helplink/internal/state"
	logx "helplink/pkg/logx"
)

// Actor is the local identity issuing commands.
type Actor struct {
	Role   entity.Role
	UserID string
	Name   string
	// ExpertID is set for responders and names their roster profile.
	ExpertID string
}

// Thread selects one of a project's two independent message threads.
type Thread string

const (
	ThreadAdvisory Thread = "advisory"
	ThreadExpert   Thread = "expert"
)

// Service applies lifecycle commands to the shared collections.
//
// Commands mutate the entity store first and then write the collection out
// best-effort; persistence failures are logged, never surfaced as command
// failures.
type Service struct {
	mu sync.Mutex

	store *state.Store
	kv    kv.Store
	log   logx.Logger
	actor Actor

	// dismissed is the local-only suppression list: hiding a broadcast is a
	// personal filter and must not mutate shared state.
	dismissed map[string]struct{}

	now func() time.Time
}

func New(store *state.Store, db kv.Store, actor Actor, log logx.Logger) *Service {
	return &Service{
		store:     store,
		kv:        db,
		log:       log,
		actor:     actor,
		dismissed: map[string]struct{}{},
		now:       time.Now,
	}
}

func (s *Service) Actor() Actor { return s.actor }

// RegisterExpert adds (or refreshes) the responder's profile in the shared
// roster. Registration is keyed by profile id and idempotent.
func (s *Service) RegisterExpert(ctx context.Context, profile entity.ExpertProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	experts := s.store.Experts()
	next := make([]entity.ExpertProfile, 0, len(experts)+1)
	replaced := false
	for _, e := range experts {
		if e.ID == profile.ID {
			next = append(next, profile)
			replaced = true
			continue
		}
		next = append(next, e)
	}
	if !replaced {
		next = append(next, profile)
	}
	s.store.ReplaceExperts(next)
	s.persist(ctx, state.KeyExperts, next)
}

func (s *Service) persist(ctx context.Context, key string, v any) {
	if err := kv.SaveJSON(ctx, s.kv, key, v); err != nil {
		s.log.Warn("persist failed", logx.String("key", key), logx.Err(err))
	}
}

func (s *Service) systemMessage(text string) entity.Message {
	return entity.Message{
		ID:   entity.NewID("sys"),
		Role: entity.MessageSystem,
		Text: text,
	}
}
