package app

import (
	"context"
	"fmt"

	"helplink/internal/entity"
	"helplink/internal/eventbus"
	"helplink/internal/kv"
	"helplink/internal/notify"
	"helplink/internal/reconcile"
	"helplink/internal/state"
	logx "helplink/pkg/logx"
)

// applyChange processes one externally observed write. All changes funnel
// through the single sync.loop goroutine; snapshot replacement itself runs
// under the owning service's command lock, so a command's read-modify-replace
// never interleaves with a sync swap.
func (a *App) applyChange(ctx context.Context, ch kv.Change) {
	_ = ctx // reserved for context-aware persistence on apply

	// Redundant redelivery of an identical payload is a no-op.
	if a.guard.Repeat(ch.Key, ch.Raw) {
		a.log.Debug("redundant change skipped", logx.String("key", ch.Key))
		return
	}

	var applied bool
	switch ch.Key {
	case state.KeyBroadcasts:
		applied = a.applyBroadcasts(ch.Raw)
	case state.KeyProjects:
		applied = a.applyProjects(ch.Raw)
	case state.KeyExperts:
		applied = applyCollection(a, ch, a.neg.SyncExperts)
	case state.KeyCollections:
		applied = applyCollection(a, ch, a.wall.SyncCollections)
	case state.KeyWallPosts:
		applied = applyCollection(a, ch, a.wall.SyncPosts)
	default:
		// Session blobs and unknown keys belong to other actors.
		return
	}

	if applied {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeSyncApplied, Data: ch.Key})
	}
}

func (a *App) applyBroadcasts(raw []byte) bool {
	next, err := kv.DecodeJSON[[]entity.Broadcast](raw)
	if err != nil {
		// Keep the last good snapshot; malformed external writes are logged
		// and ignored.
		a.log.Warn("malformed broadcasts payload ignored", logx.Err(err))
		return false
	}

	for _, ev := range a.neg.SyncBroadcasts(next) {
		a.announce(ev)
	}
	return true
}

func (a *App) applyProjects(raw []byte) bool {
	next, err := kv.DecodeJSON[[]entity.Project](raw)
	if err != nil {
		a.log.Warn("malformed projects payload ignored", logx.Err(err))
		return false
	}

	for _, ev := range a.neg.SyncProjects(next) {
		a.announce(ev)
	}
	return true
}

func applyCollection[T any](a *App, ch kv.Change, replace func([]T)) bool {
	next, err := kv.DecodeJSON[[]T](ch.Raw)
	if err != nil {
		a.log.Warn("malformed payload ignored", logx.String("key", ch.Key), logx.Err(err))
		return false
	}
	replace(next)
	return true
}

// announce turns a reconciled event into a notification and a bus signal.
func (a *App) announce(ev reconcile.Event) {
	switch ev.Kind {
	case reconcile.KindBroadcastPosted:
		if a.neg.Dismissed(ev.Broadcast.ID) {
			return
		}
		a.ntf.Post(
			fmt.Sprintf("New help request: %s", ev.Broadcast.ProblemSummary),
			notify.SeverityInfo, ev.Broadcast.ID)
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastPosted, Data: ev.Broadcast.ID})

	case reconcile.KindOfferReceived:
		msg := fmt.Sprintf("You have %d new offer(s) on your request.", len(ev.NewOffers))
		if len(ev.NewOffers) == 1 {
			msg = fmt.Sprintf("%s sent you an offer.", ev.NewOffers[0].ResponderName)
		}
		a.ntf.Post(msg, notify.SeverityOffer, ev.BroadcastID)
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeOfferReceived, Data: ev.BroadcastID})

	case reconcile.KindProjectAssigned:
		a.ntf.Post(
			fmt.Sprintf("You've been assigned: %s", ev.Project.Title),
			notify.SeveritySuccess, "")
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeProjectAssigned, Data: ev.Project.ID})
	}
}
