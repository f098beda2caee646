package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"helplink/internal/apperr"
	"helplink/internal/entity"
	"helplink/internal/eventbus"
	"helplink/internal/kv"
	"helplink/internal/notify"
	"helplink/internal/state"
)

func writeActorConfig(t *testing.T, dataDir, name, role, expertID string) string {
	t.Helper()
	cfg := map[string]any{
		"actor": map[string]any{
			"name":      name,
			"role":      role,
			"expert_id": expertID,
		},
		"logging": map[string]any{"level": "error"},
		"storage": map[string]any{
			"driver":   "file",
			"path":     dataDir,
			"debounce": "20ms",
		},
		"notifier": map[string]any{"ttl": "1m"},
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), name+".json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func startApp(t *testing.T, ctx context.Context, cfgPath string) *App {
	t.Helper()
	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx)
	})
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasNotification(history []notify.Notification, substr string) bool {
	for _, n := range history {
		if strings.Contains(n.Message, substr) {
			return true
		}
	}
	return false
}

// TestTwoActorFlow runs a requester and a responder as two independent app
// instances sharing one storage directory and walks the full lifecycle:
// broadcast, offer, approval, assignment.
func TestTwoActorFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("filesystem watch timing")
	}

	dataDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requester := startApp(t, ctx, writeActorConfig(t, dataDir, "alice", "requester", ""))
	responder := startApp(t, ctx, writeActorConfig(t, dataDir, "bob", "responder", "exp-1"))

	// Responder registration propagates to the requester's roster.
	waitFor(t, "expert registration sync", func() bool {
		_, err := requester.State().ExpertByID("exp-1")
		return err == nil
	})

	// 1. Requester opens a broadcast; responder gets notified.
	b, err := requester.Negotiation().CreateBroadcast(ctx, "Burst pipe in basement", "Plumbing", entity.UrgencyHigh)
	if err != nil {
		t.Fatalf("CreateBroadcast: %v", err)
	}
	waitFor(t, "broadcast sync to responder", func() bool {
		_, ok := responder.State().BroadcastByID(b.ID)
		return ok
	})
	waitFor(t, "broadcast notification", func() bool {
		return hasNotification(responder.Notifications().History(), "Burst pipe")
	})
	if hasNotification(requester.Notifications().History(), "Burst pipe") {
		t.Fatal("requester was notified about their own broadcast")
	}

	// 2. Responder offers; requester gets notified exactly once.
	if err := responder.Negotiation().SubmitOffer(ctx, b.ID); err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	waitFor(t, "offer sync to requester", func() bool {
		got, ok := requester.State().BroadcastByID(b.ID)
		return ok && len(got.Offers) == 1
	})
	waitFor(t, "offer notification", func() bool {
		return hasNotification(requester.Notifications().History(), "sent you an offer")
	})

	// 3. Requester approves; responder learns about the assignment.
	cur, _ := requester.State().BroadcastByID(b.ID)
	p, err := requester.Negotiation().ApproveOffer(ctx, b.ID, "exp-1", cur.Version, "")
	if err != nil {
		t.Fatalf("ApproveOffer: %v", err)
	}
	waitFor(t, "assignment sync to responder", func() bool {
		got, ok := responder.State().ProjectByID(p.ID)
		return ok && got.AssignedExpertID == "exp-1"
	})
	waitFor(t, "assignment notification", func() bool {
		return hasNotification(responder.Notifications().History(), "assigned")
	})
	waitFor(t, "broadcast removal sync", func() bool {
		_, ok := responder.State().BroadcastByID(b.ID)
		return !ok
	})
}

// TestOwnWritesDoNotNotify checks that an actor's own command never loops
// back into a notification through the watch path.
func TestOwnWritesDoNotNotify(t *testing.T) {
	if testing.Short() {
		t.Skip("filesystem watch timing")
	}

	dataDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requester := startApp(t, ctx, writeActorConfig(t, dataDir, "alice", "requester", ""))

	if _, err := requester.Negotiation().CreateBroadcast(ctx, "Paint hallway", "", ""); err != nil {
		t.Fatalf("CreateBroadcast: %v", err)
	}

	// Give the watcher ample time to mistakenly echo the self-write.
	time.Sleep(500 * time.Millisecond)
	if got := requester.Notifications().History(); len(got) != 0 {
		t.Fatalf("self-write produced notifications: %+v", got)
	}
}

func TestApproveVanishedBroadcastNotifies(t *testing.T) {
	if testing.Short() {
		t.Skip("starts storage watchers")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := startApp(t, ctx, writeActorConfig(t, t.TempDir(), "alice", "requester", ""))

	_, err := a.ApproveOffer(ctx, "br-gone", "exp-1", 1, "")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !hasNotification(a.Notifications().Active(), "no longer available") {
		t.Fatalf("no informational notification, active = %+v", a.Notifications().Active())
	}
}

func TestMalformedSyncPayloadNotApplied(t *testing.T) {
	if testing.Short() {
		t.Skip("starts storage watchers")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := startApp(t, ctx, writeActorConfig(t, t.TempDir(), "alice", "requester", ""))

	events, unsub := a.Bus().Subscribe(8)
	defer unsub()

	a.applyChange(ctx, kv.Change{Key: state.KeyBroadcasts, Raw: []byte("{broken")})
	a.applyChange(ctx, kv.Change{Key: state.KeyBroadcasts, Raw: []byte("[]")})

	select {
	case e := <-events:
		if e.Type != eventbus.TypeSyncApplied || e.Data != state.KeyBroadcasts {
			t.Fatalf("first event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid payload produced no sync event")
	}

	// The malformed payload must not have produced one of its own.
	select {
	case e := <-events:
		t.Fatalf("unexpected extra event %q", e.Type)
	case <-time.After(150 * time.Millisecond):
	}
}
