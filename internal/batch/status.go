package batch

import (
	"sync/atomic"
	"time"
)

// StatusTracker holds the progress counters for one batch. A single
// instance is shared between the dispatch loop and the per-task
// completion goroutines, so all fields are updated atomically.
type StatusTracker struct {
	started         atomic.Int64
	inProgress      atomic.Int64
	succeeded       atomic.Int64
	failed          atomic.Int64
	rateLimitErrors atomic.Int64
	apiErrors       atomic.Int64
	otherErrors     atomic.Int64

	// lastRateLimitNano is the UnixNano timestamp of the most recent
	// rate-limit error, zero if none has occurred.
	lastRateLimitNano atomic.Int64
}

// Status is a plain snapshot of a StatusTracker.
type Status struct {
	Started         int64
	InProgress      int64
	Succeeded       int64
	Failed          int64
	RateLimitErrors int64
	APIErrors       int64
	OtherErrors     int64
	LastRateLimitAt time.Time
}

// Snapshot returns the tracker's current counters. Individual fields are
// read atomically; the snapshot as a whole is not a consistent cut while
// tasks are still completing.
func (t *StatusTracker) Snapshot() Status {
	return Status{
		Started:         t.started.Load(),
		InProgress:      t.inProgress.Load(),
		Succeeded:       t.succeeded.Load(),
		Failed:          t.failed.Load(),
		RateLimitErrors: t.rateLimitErrors.Load(),
		APIErrors:       t.apiErrors.Load(),
		OtherErrors:     t.otherErrors.Load(),
		LastRateLimitAt: t.lastRateLimitAt(),
	}
}

// noteRateLimit stamps the time of the most recent rate-limit error.
func (t *StatusTracker) noteRateLimit(now time.Time) {
	t.lastRateLimitNano.Store(now.UnixNano())
}

func (t *StatusTracker) lastRateLimitAt() time.Time {
	nano := t.lastRateLimitNano.Load()
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}
