package batch

import "errors"

// Common errors used by the batch package.
var (
	// ErrRateLimited marks a throttling signal from the remote service.
	// The default classifier recognizes it via errors.Is; it triggers the
	// global cooldown pause and, while attempts remain, a requeue.
	ErrRateLimited = errors.New("rate limited by remote service")

	// ErrRemoteService marks a non-throttling failure reported by the
	// remote service. Requeued while attempts remain.
	ErrRemoteService = errors.New("remote service error")

	// ErrInvalidConfig is returned by Process when the configuration is
	// unusable.
	ErrInvalidConfig = errors.New("invalid batch configuration")

	// ErrNilSource is returned by Process when no task source is given.
	ErrNilSource = errors.New("task source cannot be nil")
)
