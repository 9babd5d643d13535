// Package batch drives large batches of independent, idempotent remote
// calls through an admission-controlled dispatch loop. Dispatch is
// throttled by a token bucket sized to a provider's rate limit, failed
// calls are retried with bounded attempts, and a rate-limit signal pauses
// the whole batch for a cooldown period. The scheduler never fails a
// batch because individual calls failed; it reports aggregate counts and
// per-task error histories instead.
package batch
