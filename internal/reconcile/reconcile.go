// Package reconcile classifies deltas between snapshots of the shared
// collections and derives the notification-worthy events for the local actor.
//
// Diffing is content-keyed: broadcasts by id, offers by responder id,
// projects by id. Every simultaneous addition is reported, not just the
// first one found.
package reconcile

import (
	"bytes"
	"sync"

	"helplink/internal/entity"
)

// Actor is the local identity the diff is evaluated against.
type Actor struct {
	Role   entity.Role
	UserID string
	// ExpertID is the responder's profile identity; empty for requesters.
	ExpertID string
}

// Kind tags a semantic event.
type Kind string

const (
	// KindBroadcastPosted: another actor opened a new broadcast
	// (responders only).
	KindBroadcastPosted Kind = "broadcast_posted"
	// KindOfferReceived: one of the local requester's broadcasts gained
	// offers from new responders.
	KindOfferReceived Kind = "offer_received"
	// KindProjectAssigned: a new project assigned to the local responder
	// appeared.
	KindProjectAssigned Kind = "project_assigned"
)

// Event is a semantic change derived from two snapshots.
// Exactly the fields for its Kind are set.
type Event struct {
	Kind Kind

	Broadcast   *entity.Broadcast // KindBroadcastPosted
	BroadcastID string            // KindOfferReceived
	NewOffers   []entity.Offer    // KindOfferReceived
	Project     *entity.Project   // KindProjectAssigned
}

// DiffBroadcasts returns the events an externally updated broadcast
// collection implies for the actor. It never mutates its inputs.
func DiffBroadcasts(prev, next []entity.Broadcast, actor Actor) []Event {
	var events []Event

	prevByID := make(map[string]*entity.Broadcast, len(prev))
	for i := range prev {
		prevByID[prev[i].ID] = &prev[i]
	}

	for i := range next {
		b := &next[i]
		old, existed := prevByID[b.ID]

		if !existed && actor.Role == entity.RoleResponder && b.RequesterID != actor.UserID {
			events = append(events, Event{Kind: KindBroadcastPosted, Broadcast: b})
			continue
		}

		if actor.Role != entity.RoleRequester || b.RequesterID != actor.UserID {
			continue
		}
		var oldOffers []entity.Offer
		if existed {
			oldOffers = old.Offers
		}
		added := addedOffers(oldOffers, b.Offers)
		if len(added) > 0 {
			events = append(events, Event{
				Kind:        KindOfferReceived,
				BroadcastID: b.ID,
				NewOffers:   added,
			})
		}
	}
	return events
}

// addedOffers returns offers from next whose responder is absent in prev.
func addedOffers(prev, next []entity.Offer) []entity.Offer {
	if len(next) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(prev))
	for _, o := range prev {
		seen[o.ResponderID] = struct{}{}
	}
	var added []entity.Offer
	for _, o := range next {
		if _, ok := seen[o.ResponderID]; !ok {
			added = append(added, o)
		}
	}
	return added
}

// DiffProjects reports projects that newly appeared assigned to the local
// responder. Requesters derive nothing from project syncs.
func DiffProjects(prev, next []entity.Project, actor Actor) []Event {
	if actor.Role != entity.RoleResponder || actor.ExpertID == "" {
		return nil
	}

	known := make(map[string]struct{}, len(prev))
	for _, p := range prev {
		known[p.ID] = struct{}{}
	}

	var events []Event
	for i := range next {
		p := &next[i]
		if _, ok := known[p.ID]; ok {
			continue
		}
		if p.AssignedExpertID == actor.ExpertID {
			events = append(events, Event{Kind: KindProjectAssigned, Project: p})
		}
	}
	return events
}

// Guard short-circuits redundant deliveries: an actor's own write can echo
// back through the change subscription, and the durable layer may deliver
// the same payload twice. A payload byte-identical to the last one seen for
// its key produces no events.
type Guard struct {
	mu      sync.Mutex
	lastRaw map[string][]byte
}

func NewGuard() *Guard {
	return &Guard{lastRaw: map[string][]byte{}}
}

// Repeat records raw as the latest payload for key and reports whether it
// was byte-identical to the previous one.
func (g *Guard) Repeat(key string, raw []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.lastRaw[key]; ok && bytes.Equal(prev, raw) {
		return true
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	g.lastRaw[key] = cp
	return false
}
