package negotiation

import (
	"helplink/internal/entity"
	"helplink/internal/reconcile"
)

// External snapshot replacement runs under the same command lock as the
// lifecycle commands: a command's read-modify-replace and a sync's
// diff-replace can never interleave, so a local approval is never erased by
// a concurrent external write landing mid-command.

// SyncBroadcasts swaps in an externally observed broadcast snapshot and
// returns the events derived from the delta.
func (s *Service) SyncBroadcasts(next []entity.Broadcast) []reconcile.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := reconcile.DiffBroadcasts(s.store.Broadcasts(), next, s.syncActor())
	s.store.ReplaceBroadcasts(next)
	return events
}

// SyncProjects swaps in an externally observed project snapshot and returns
// the events derived from the delta.
func (s *Service) SyncProjects(next []entity.Project) []reconcile.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := reconcile.DiffProjects(s.store.Projects(), next, s.syncActor())
	s.store.ReplaceProjects(next)
	return events
}

// SyncExperts swaps in an externally observed roster snapshot.
func (s *Service) SyncExperts(next []entity.ExpertProfile) {
	s.mu.Lock()
	s.store.ReplaceExperts(next)
	s.mu.Unlock()
}

func (s *Service) syncActor() reconcile.Actor {
	return reconcile.Actor{
		Role:     s.actor.Role,
		UserID:   s.actor.UserID,
		ExpertID: s.actor.ExpertID,
	}
}
