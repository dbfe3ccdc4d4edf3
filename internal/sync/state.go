// Package sync reconciles the in-memory version graph, the canvas
// projection and the durable store. It owns the only queue through
// which background reconciliation flows.
package sync

// State is the per-version reconciliation state against the durable
// store. Retry policy: at most one immediate corrective retry, then the
// version stays SyncFailed until a later full-session resync.
type State string

const (
	// StateLocalOnly: the version exists only in the local graph and no
	// push has been attempted.
	StateLocalOnly State = "local_only"

	// StateSyncPending: a push is queued or in flight.
	StateSyncPending State = "sync_pending"

	// StateSynced: the durable store has acknowledged the version.
	StateSynced State = "synced"

	// StateSyncFailed: the last push failed; a full resync reconciles it.
	StateSyncFailed State = "sync_failed"
)
