// Package negotiation enforces the broadcast/offer/project lifecycle for
// local actor commands.
//
// Transitions
//
// A broadcast starts open, moves to offer_received on the first offer, and
// leaves the active set when an offer is approved (it becomes a project in
// progress). A project moves planning -> in-progress via approval,
// in-progress -> completed on resolution, and from completed either back to
// in-progress (reconnect, assignment retained) or to planning (find new
// expert, assignment cleared).
//
// Failure semantics
//
// Invalid transitions are no-ops reported as apperr sentinels, never panics.
// Approval carries the version token the caller acted on; a mismatch fails
// with apperr.ErrConflict instead of silently racing another session.
package negotiation
