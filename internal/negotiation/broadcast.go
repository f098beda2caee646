package negotiation

import (
	"context"
	"fmt"

	"helplink/internal/apperr"
	"helplink/internal/entity"
	"helplink/internal/state"
)

// CreateBroadcast opens a new help call. Requester command.
func (s *Service) CreateBroadcast(ctx context.Context, summary, category string, urgency entity.Urgency) (entity.Broadcast, error) {
	if s.actor.Role != entity.RoleRequester {
		return entity.Broadcast{}, fmt.Errorf("create broadcast: %w", apperr.ErrInvalidTransition)
	}
	if summary == "" {
		summary = "General help inquiry"
	}
	if category == "" {
		category = "General"
	}
	if urgency == "" {
		urgency = entity.UrgencyMedium
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := entity.Broadcast{
		ID:             entity.NewID("br"),
		RequesterID:    s.actor.UserID,
		RequesterName:  s.actor.Name,
		ProblemSummary: summary,
		Category:       category,
		Urgency:        urgency,
		CreatedAt:      s.now(),
		Status:         entity.BroadcastOpen,
		Offers:         []entity.Offer{},
		Version:        1,
	}

	next := append([]entity.Broadcast{b}, s.store.Broadcasts()...)
	s.store.ReplaceBroadcasts(next)
	s.persist(ctx, state.KeyBroadcasts, next)
	return b, nil
}

// SubmitOffer attaches the responder's offer to an open broadcast.
// Resubmitting on the same broadcast is a no-op: one offer per responder.
// The profile is resolved strictly from the registered roster.
func (s *Service) SubmitOffer(ctx context.Context, broadcastID string) error {
	if s.actor.Role != entity.RoleResponder {
		return fmt.Errorf("submit offer: %w", apperr.ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.store.ExpertByID(s.actor.ExpertID)
	if err != nil {
		return fmt.Errorf("submit offer: profile %s: %w", s.actor.ExpertID, err)
	}

	broadcasts := s.store.Broadcasts()
	idx := -1
	for i := range broadcasts {
		if broadcasts[i].ID == broadcastID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("submit offer: broadcast %s: %w", broadcastID, apperr.ErrNotFound)
	}
	b := broadcasts[idx]
	if !b.Accepting() {
		return fmt.Errorf("submit offer: broadcast %s is %s: %w", broadcastID, b.Status, apperr.ErrInvalidTransition)
	}
	if b.HasOfferFrom(s.actor.ExpertID) {
		// Idempotent: the offer is already there, nothing to do.
		return nil
	}

	offer := entity.Offer{
		ResponderID:   profile.ID,
		ResponderName: profile.Name,
		Profile:       profile,
		SubmittedAt:   s.now(),
	}

	updated := b
	updated.Offers = append(append([]entity.Offer{}, b.Offers...), offer)
	updated.Status = entity.BroadcastOfferReceived
	updated.Version = b.Version + 1

	next := make([]entity.Broadcast, len(broadcasts))
	copy(next, broadcasts)
	next[idx] = updated

	s.store.ReplaceBroadcasts(next)
	s.persist(ctx, state.KeyBroadcasts, next)
	return nil
}

// ApproveOffer accepts a responder's offer, removes the broadcast from the
// active set, and creates or updates the linked project as in-progress.
//
// version is the optimistic-concurrency token the caller read; if another
// session changed the broadcast in the meantime the approval fails with
// ErrConflict and nothing is mutated.
//
// projectID optionally targets an existing project; when empty, a new
// project is created from the broadcast summary.
func (s *Service) ApproveOffer(ctx context.Context, broadcastID, responderID string, version int64, projectID string) (entity.Project, error) {
	if s.actor.Role != entity.RoleRequester {
		return entity.Project{}, fmt.Errorf("approve offer: %w", apperr.ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	broadcasts := s.store.Broadcasts()
	idx := -1
	for i := range broadcasts {
		if broadcasts[i].ID == broadcastID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return entity.Project{}, fmt.Errorf("approve offer: broadcast %s: %w", broadcastID, apperr.ErrNotFound)
	}
	b := broadcasts[idx]
	if !b.Accepting() {
		return entity.Project{}, fmt.Errorf("approve offer: broadcast %s is %s: %w", broadcastID, b.Status, apperr.ErrInvalidTransition)
	}
	if b.Version != version {
		return entity.Project{}, fmt.Errorf("approve offer: broadcast %s at v%d, caller at v%d: %w",
			broadcastID, b.Version, version, apperr.ErrConflict)
	}
	offer, ok := b.OfferFrom(responderID)
	if !ok {
		return entity.Project{}, fmt.Errorf("approve offer: no offer from %s on %s: %w", responderID, broadcastID, apperr.ErrNotFound)
	}

	// Remove the broadcast from the active set.
	nextBroadcasts := make([]entity.Broadcast, 0, len(broadcasts)-1)
	nextBroadcasts = append(nextBroadcasts, broadcasts[:idx]...)
	nextBroadcasts = append(nextBroadcasts, broadcasts[idx+1:]...)

	project, nextProjects := s.assignLocked(projectID, b.ProblemSummary, offer)

	s.store.ReplaceBroadcasts(nextBroadcasts)
	s.store.ReplaceProjects(nextProjects)
	s.persist(ctx, state.KeyBroadcasts, nextBroadcasts)
	s.persist(ctx, state.KeyProjects, nextProjects)
	return project, nil
}

// assignLocked attaches the approved responder to projectID (or a fresh
// project) and returns the updated project plus the new collection.
func (s *Service) assignLocked(projectID, summary string, offer entity.Offer) (entity.Project, []entity.Project) {
	projects := s.store.Projects()

	if projectID != "" {
		for i := range projects {
			if projects[i].ID != projectID {
				continue
			}
			updated := projects[i]
			updated.Status = entity.ProjectInProgress
			updated.AssignedExpertID = offer.ResponderID
			updated.AssignedExpertName = offer.ResponderName
			updated.UpdatedAt = s.now()
			updated.ExpertThread = append(append([]entity.Message{}, updated.ExpertThread...),
				s.systemMessage(fmt.Sprintf("Expert %s has joined. Initial project context transmitted.", offer.ResponderName)))

			next := make([]entity.Project, len(projects))
			copy(next, projects)
			next[i] = updated
			return updated, next
		}
	}

	if summary == "" {
		summary = "Direct expert collaboration"
	}
	p := entity.Project{
		ID:                 entity.NewID("proj"),
		Title:              truncateTitle(summary),
		Status:             entity.ProjectInProgress,
		Summary:            summary,
		UpdatedAt:          s.now(),
		AssignedExpertID:   offer.ResponderID,
		AssignedExpertName: offer.ResponderName,
		AdvisoryThread:     []entity.Message{},
		ExpertThread: []entity.Message{
			s.systemMessage(fmt.Sprintf("Expert %s has joined. Match finalized.", offer.ResponderName)),
		},
		Media:      []entity.MediaItem{},
		Milestones: []entity.Milestone{},
	}
	next := append([]entity.Project{p}, projects...)
	return p, next
}

// DismissBroadcast hides a broadcast from the local actor only. The shared
// collection is deliberately untouched.
func (s *Service) DismissBroadcast(id string) {
	s.mu.Lock()
	s.dismissed[id] = struct{}{}
	s.mu.Unlock()
}

// Dismissed reports whether the actor suppressed this broadcast.
func (s *Service) Dismissed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dismissed[id]
	return ok
}

// VisibleBroadcasts returns the broadcasts this actor should see: accepting
// ones that are not locally suppressed.
func (s *Service) VisibleBroadcasts() []entity.Broadcast {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.Broadcast
	for _, b := range s.store.Broadcasts() {
		if !b.Accepting() {
			continue
		}
		if _, hidden := s.dismissed[b.ID]; hidden {
			continue
		}
		out = append(out, b)
	}
	return out
}

// PruneDismissed drops suppression entries whose broadcasts vanished.
func (s *Service) PruneDismissed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := map[string]struct{}{}
	for _, b := range s.store.Broadcasts() {
		live[b.ID] = struct{}{}
	}
	removed := 0
	for id := range s.dismissed {
		if _, ok := live[id]; !ok {
			delete(s.dismissed, id)
			removed++
		}
	}
	return removed
}

func truncateTitle(s string) string {
	const maxLen = 24
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
