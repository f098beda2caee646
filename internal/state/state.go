// Package state is the in-memory authoritative copy of the shared
// collections. External syncs replace a whole collection atomically; local
// commands build modified copies and replace wholesale, so readers never see
// interleaved partial states.
package state

import (
	"sync"

	"helplink/internal/apperr"
	"helplink/internal/entity"
)

// Durable collection keys. Names are part of the stored shape and must not
// change.
const (
	KeyBroadcasts  = "broadcasts"
	KeyProjects    = "projects"
	KeyExperts     = "registered-experts"
	KeyCollections = "collections"
	KeyWallPosts   = "wall-posts"
)

// SharedKeys lists every cross-actor collection key.
var SharedKeys = []string{KeyBroadcasts, KeyProjects, KeyExperts, KeyCollections, KeyWallPosts}

// Store holds the current snapshot of every shared collection.
//
// The zero value is usable. All methods are safe for concurrent use, but by
// design only the command path and the reconciliation path write here.
type Store struct {
	mu sync.RWMutex

	broadcasts  []entity.Broadcast
	projects    []entity.Project
	experts     []entity.ExpertProfile
	collections []entity.Collection
	wallPosts   []entity.WallPost
}

func New() *Store { return &Store{} }

// Broadcasts returns the current broadcast snapshot. Callers must treat the
// returned slice as read-only.
func (s *Store) Broadcasts() []entity.Broadcast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broadcasts
}

func (s *Store) Projects() []entity.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projects
}

func (s *Store) Experts() []entity.ExpertProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.experts
}

func (s *Store) Collections() []entity.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collections
}

func (s *Store) WallPosts() []entity.WallPost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallPosts
}

// ReplaceBroadcasts swaps the whole collection atomically.
func (s *Store) ReplaceBroadcasts(v []entity.Broadcast) {
	s.mu.Lock()
	s.broadcasts = v
	s.mu.Unlock()
}

func (s *Store) ReplaceProjects(v []entity.Project) {
	s.mu.Lock()
	s.projects = v
	s.mu.Unlock()
}

func (s *Store) ReplaceExperts(v []entity.ExpertProfile) {
	s.mu.Lock()
	s.experts = v
	s.mu.Unlock()
}

func (s *Store) ReplaceCollections(v []entity.Collection) {
	s.mu.Lock()
	s.collections = v
	s.mu.Unlock()
}

func (s *Store) ReplaceWallPosts(v []entity.WallPost) {
	s.mu.Lock()
	s.wallPosts = v
	s.mu.Unlock()
}

// BroadcastByID resolves a broadcast from the freshest snapshot.
func (s *Store) BroadcastByID(id string) (entity.Broadcast, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.broadcasts {
		if b.ID == id {
			return b, true
		}
	}
	return entity.Broadcast{}, false
}

func (s *Store) ProjectByID(id string) (entity.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return entity.Project{}, false
}

// ExpertByID is a strict identity lookup over the registered roster.
// There is deliberately no fallback substitution: a miss is ErrNotFound.
func (s *Store) ExpertByID(id string) (entity.ExpertProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.experts {
		if e.ID == id {
			return e, nil
		}
	}
	return entity.ExpertProfile{}, apperr.ErrNotFound
}
