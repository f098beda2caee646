package app

import (
	"context"
	"errors"

	"helplink/internal/apperr"
	"helplink/internal/entity"
	"helplink/internal/notify"
	logx "helplink/pkg/logx"
)

// Command wrappers. The services return typed sentinels; here a recoverable
// failure becomes its user-visible outcome: a vanished target or a stale
// version is an informational notification, never a crash.

// SubmitOffer runs the responder's offer command.
func (a *App) SubmitOffer(ctx context.Context, broadcastID string) error {
	return a.commandOutcome("submit offer", a.neg.SubmitOffer(ctx, broadcastID))
}

// ApproveOffer runs the requester's approval command.
func (a *App) ApproveOffer(ctx context.Context, broadcastID, responderID string, version int64, projectID string) (entity.Project, error) {
	p, err := a.neg.ApproveOffer(ctx, broadcastID, responderID, version, projectID)
	return p, a.commandOutcome("approve offer", err)
}

// commandOutcome posts the notification for recoverable command failures and
// passes the error through for callers that inspect it.
func (a *App) commandOutcome(op string, err error) error {
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		a.ntf.Post("That request is no longer available.", notify.SeverityInfo, "")
		a.log.Debug("command target vanished", logx.String("op", op), logx.Err(err))
	case errors.Is(err, apperr.ErrConflict):
		a.ntf.Post("This request just changed. Review the latest offers and try again.", notify.SeverityInfo, "")
		a.log.Debug("command conflicted", logx.String("op", op), logx.Err(err))
	}
	return err
}
