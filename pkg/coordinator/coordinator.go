// Package coordinator implements the Agentic Run Subsystem's distributed
// lease / cancel-marker / live-event pub-sub primitives. The key layout and
// compare-and-mutate scripts are ported verbatim (in spirit) from the
// original agentic_runtime's Redis implementation.
package coordinator

import (
	"context"
	"fmt"
)

const (
	keyPrefix     = "agentic:run"
	channelPrefix = "agentic:run"
)

// DefaultCancelTTLSeconds is the fallback cancel-marker TTL, matching the
// original runtime's 15-minute default.
const DefaultCancelTTLSeconds = 15 * 60

// TurnLeaseKey returns the Redis key backing a turn's lease.
func TurnLeaseKey(runID string, turnSeq int) string {
	return fmt.Sprintf("%s:%s:turn:%d:lease", keyPrefix, runID, turnSeq)
}

// TurnCancelKey returns the Redis key backing a turn's cancel marker.
func TurnCancelKey(runID string, turnSeq int) string {
	return fmt.Sprintf("%s:%s:turn:%d:cancel", keyPrefix, runID, turnSeq)
}

// LiveEventChannel returns the pub/sub channel name for a run's live events.
func LiveEventChannel(runID string) string {
	return fmt.Sprintf("%s:%s:events", channelPrefix, runID)
}

// Subscription is a scoped live-event subscription with guaranteed cleanup
// on every exit path.
type Subscription interface {
	// Read waits until ctx is done for the next message, returning
	// ("", false) if ctx ends with no message.
	Read(ctx context.Context) (string, bool, error)
	// Close unsubscribes and releases the underlying connection. Safe to
	// call more than once.
	Close() error
}

// Coordinator is the distributed lease/cancel/pub-sub primitive set the
// Worker and Stream Reader are built on.
type Coordinator interface {
	// AcquireLease atomically sets the lease key to owner only if absent,
	// with the given TTL. Returns true exactly when this call set it.
	AcquireLease(ctx context.Context, runID string, turnSeq int, owner string, ttlSeconds int) (bool, error)

	// RefreshLease extends the lease TTL iff the current value equals
	// owner. Atomic compare-and-extend.
	RefreshLease(ctx context.Context, runID string, turnSeq int, owner string, ttlSeconds int) (bool, error)

	// ReleaseLease deletes the lease key iff the current value equals
	// owner. Atomic compare-and-delete.
	ReleaseLease(ctx context.Context, runID string, turnSeq int, owner string) (bool, error)

	// GetLeaseOwner returns the current owner, or "" if unset.
	GetLeaseOwner(ctx context.Context, runID string, turnSeq int) (string, error)

	// RequestCancel sets the cancel marker with the given TTL.
	RequestCancel(ctx context.Context, runID string, turnSeq int, ttlSeconds int) error

	// IsCancelRequested reports whether the cancel marker is set.
	IsCancelRequested(ctx context.Context, runID string, turnSeq int) (bool, error)

	// ClearCancel deletes the cancel marker.
	ClearCancel(ctx context.Context, runID string, turnSeq int) error

	// PublishLiveEvent best-effort fans payload out to a run's live
	// subscribers.
	PublishLiveEvent(ctx context.Context, runID string, payload string) error

	// SubscribeLiveEvents opens a scoped subscription to a run's live
	// channel. Callers must Close it on every exit path.
	SubscribeLiveEvents(ctx context.Context, runID string) (Subscription, error)

	// Close releases the coordinator's underlying connection(s).
	Close() error
}
