// Package kv is the persistence adapter over the durable layer shared by
// all actors: persist key->JSON, read on load, notify on external change.
//
// It is the one true concurrency seam in the system. Changes made by another
// actor arrive at arbitrary points in time relative to local mutations, so
// everything downstream of Subscribe must be idempotent under redundant
// delivery. Self-writes are suppressed by content hash so an actor does not
// observe its own saves as external changes.
package kv
