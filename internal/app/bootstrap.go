package app

import (
	"context"
	"net/http"
	"time"

	"helplink/internal/entity"
	"helplink/internal/kv"
	"helplink/internal/state"
	logx "helplink/pkg/logx"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// bootstrap loads the shared collections into the in-memory snapshot, primes
// the redundancy guard with what was loaded, and restores (or creates) the
// actor's session. Missing or malformed payloads fall back to empty
// collections; a broken file never blocks startup.
func (a *App) bootstrap(ctx context.Context) error {
	log := a.log.With(logx.String("comp", "bootstrap"))

	a.store.ReplaceBroadcasts(kv.LoadJSON(ctx, a.db, state.KeyBroadcasts, []entity.Broadcast{}, log))
	a.store.ReplaceProjects(kv.LoadJSON(ctx, a.db, state.KeyProjects, []entity.Project{}, log))
	a.store.ReplaceExperts(kv.LoadJSON(ctx, a.db, state.KeyExperts, []entity.ExpertProfile{}, log))
	a.store.ReplaceCollections(kv.LoadJSON(ctx, a.db, state.KeyCollections, []entity.Collection{}, log))
	a.store.ReplaceWallPosts(kv.LoadJSON(ctx, a.db, state.KeyWallPosts, []entity.WallPost{}, log))

	// Prime the guard so the loaded payloads don't echo back as changes.
	for _, key := range state.SharedKeys {
		if raw, ok, err := a.db.Load(ctx, key); err == nil && ok {
			a.guard.Repeat(key, raw)
		}
	}

	session := a.loadSession(ctx, log)
	if a.actor.Role == entity.RoleResponder {
		profile := session.Profile
		if profile.ID == "" {
			profile = entity.ExpertProfile{
				ID:   a.cfg.Actor.ExpertID,
				Name: a.cfg.Actor.Name,
			}
		}
		profile.ID = a.cfg.Actor.ExpertID
		a.neg.RegisterExpert(ctx, profile)
	}

	log.Info("state loaded",
		logx.Int("broadcasts", len(a.store.Broadcasts())),
		logx.Int("projects", len(a.store.Projects())),
		logx.Int("experts", len(a.store.Experts())))
	return nil
}

func (a *App) loadSession(ctx context.Context, log logx.Logger) entity.Session {
	key := a.cfg.Actor.SessionKey()
	def := entity.Session{
		ID:   key,
		Name: a.cfg.Actor.Name,
		Role: a.actor.Role,
	}
	session := kv.LoadJSON(ctx, a.db, key, def, log)
	if session.ID == "" {
		session = def
	}
	if err := kv.SaveJSON(ctx, a.db, key, session); err != nil {
		log.Warn("persist session failed", logx.Err(err))
	}
	return session
}
