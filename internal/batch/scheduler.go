package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Call is one deferred idempotent remote invocation. The scheduler
// imposes no timeout of its own; a call that needs one must carry it
// itself (typically via the context it is given).
type Call func(ctx context.Context) error

// Config holds the knobs for one batch run.
type Config struct {
	// MaxRequestsPerMinute is the provider-imposed rate limit. Required,
	// must be positive.
	MaxRequestsPerMinute float64

	// MaxAttempts is how many times a task may be dispatched before it is
	// finalized as failed. Required, must be at least 1.
	MaxAttempts int

	// IsRateLimit classifies an error as a throttling signal. Defaults to
	// errors.Is(err, ErrRateLimited).
	IsRateLimit func(error) bool

	// IsRemoteError classifies an error as a non-throttling remote
	// failure. Defaults to errors.Is(err, ErrRemoteService).
	IsRemoteError func(error) bool

	// Cooldown is how long dispatch pauses after a rate-limit error.
	// Defaults to 15 seconds.
	Cooldown time.Duration

	// PollInterval is the dispatch loop's sleep between iterations.
	// Defaults to 1 millisecond.
	PollInterval time.Duration

	// OnProgress, when non-nil, is invoked exactly once per task reaching
	// a terminal state (success or attempt exhaustion). It is called from
	// completion goroutines and must be safe for concurrent use.
	OnProgress func()

	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// task is one unit of work owned exclusively by the scheduler. It lives
// in exactly one place at a time: staged, in flight, or on the retry
// queue.
type task struct {
	id           int64
	call         Call
	attemptsLeft int
	errs         []error
}

// scheduler is the state of one Process run.
type scheduler struct {
	cfg     Config
	logger  *slog.Logger
	tracker *StatusTracker
	retry   *retryQueue
	bucket  *tokenBucket
	nextID  atomic.Int64
	wg      sync.WaitGroup
}

// Process drives every call produced by tasks to a terminal state and
// returns the final status. Calls are dispatched concurrently, throttled
// so dispatch never exceeds cfg.MaxRequestsPerMinute, and retried up to
// cfg.MaxAttempts times with retries taking priority over fresh work.
//
// The tasks channel is consumed lazily; closing it marks the input
// exhausted. Cancelling ctx stops fresh pulls but lets in-flight tasks,
// including their remaining retries, run to their natural terminal state.
//
// Process never returns an error for individual task failures, only for
// unusable arguments.
func Process(ctx context.Context, tasks <-chan Call, cfg Config) (*StatusTracker, error) {
	if tasks == nil {
		return nil, ErrNilSource
	}
	if cfg.MaxRequestsPerMinute <= 0 {
		return nil, fmt.Errorf("%w: max requests per minute must be positive, got %v",
			ErrInvalidConfig, cfg.MaxRequestsPerMinute)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: max attempts must be at least 1, got %d",
			ErrInvalidConfig, cfg.MaxAttempts)
	}

	if cfg.IsRateLimit == nil {
		cfg.IsRateLimit = func(err error) bool { return errors.Is(err, ErrRateLimited) }
	}
	if cfg.IsRemoteError == nil {
		cfg.IsRemoteError = func(err error) bool { return errors.Is(err, ErrRemoteService) }
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", uuid.New())

	s := &scheduler{
		cfg:     cfg,
		logger:  logger,
		tracker: &StatusTracker{},
		retry:   newRetryQueue(),
		bucket:  newTokenBucket(cfg.MaxRequestsPerMinute, time.Now()),
	}

	s.logger.Debug("starting batch",
		"max_requests_per_minute", cfg.MaxRequestsPerMinute,
		"max_attempts", cfg.MaxAttempts,
		"cooldown", cfg.Cooldown)

	s.run(ctx, tasks)

	status := s.tracker.Snapshot()
	s.logger.Info("batch complete",
		"started", status.Started,
		"succeeded", status.Succeeded,
		"failed", status.Failed)
	if status.Failed > 0 {
		s.logger.Warn("some requests failed after all attempts",
			"failed", status.Failed,
			"started", status.Started)
	}
	if status.RateLimitErrors > 0 {
		s.logger.Warn("rate limit errors were received, consider a lower rate",
			"rate_limit_errors", status.RateLimitErrors)
	}

	return s.tracker, nil
}

// run is the admission control loop. It stages at most one task at a
// time, preferring retries over fresh work, and dispatches the staged
// task once the capacity pool holds a whole token.
func (s *scheduler) run(ctx context.Context, tasks <-chan Call) {
	var staged *task
	exhausted := false

	for {
		if staged == nil {
			if t, ok := s.retry.pop(); ok {
				staged = t
				s.logger.Debug("staging retry",
					"task_id", t.id,
					"attempts_left", t.attemptsLeft)
			} else if !exhausted {
				select {
				case <-ctx.Done():
					exhausted = true
					s.logger.Info("context cancelled, no new tasks will be started",
						"cause", ctx.Err())
				case call, ok := <-tasks:
					if !ok {
						exhausted = true
						s.logger.Debug("task source exhausted")
						break
					}
					staged = &task{
						id:           s.nextID.Add(1) - 1,
						call:         call,
						attemptsLeft: s.cfg.MaxAttempts,
					}
					s.tracker.started.Add(1)
					s.tracker.inProgress.Add(1)
					s.logger.Debug("staging new task", "task_id", staged.id)
				default:
					// Source not ready; try again next iteration.
				}
			}
		}

		s.bucket.refill(time.Now())

		if staged != nil && s.bucket.take() {
			staged.attemptsLeft--
			t := staged
			staged = nil
			s.wg.Add(1)
			go s.execute(ctx, t)
		}

		if staged == nil && exhausted && s.retry.len() == 0 && s.tracker.inProgress.Load() == 0 {
			break
		}

		time.Sleep(s.cfg.PollInterval)

		// A recent rate-limit error pauses the whole batch, not just the
		// task that observed it.
		if last := s.tracker.lastRateLimitAt(); !last.IsZero() {
			if since := time.Since(last); since < s.cfg.Cooldown {
				remaining := s.cfg.Cooldown - since
				s.logger.Warn("pausing to cool down after rate limit error",
					"remaining", remaining)
				time.Sleep(remaining)
			}
		}
	}

	s.wg.Wait()
}

// execute runs one dispatched attempt to completion and routes the
// outcome: success finalizes the task, a classified failure requeues it
// while attempts remain, and exhaustion finalizes it as failed with its
// accumulated error history.
func (s *scheduler) execute(ctx context.Context, t *task) {
	defer s.wg.Done()

	s.logger.Debug("dispatching request", "task_id", t.id)

	err := t.call(ctx)
	if err == nil {
		s.tracker.succeeded.Add(1)
		s.tracker.inProgress.Add(-1)
		s.logger.Debug("request completed", "task_id", t.id)
		s.signalProgress()
		return
	}

	switch {
	case s.cfg.IsRateLimit(err):
		s.tracker.noteRateLimit(time.Now())
		s.tracker.rateLimitErrors.Add(1)
		s.logger.Warn("request failed with rate limit error",
			"task_id", t.id,
			"error", err)
	case s.cfg.IsRemoteError(err):
		s.tracker.apiErrors.Add(1)
		s.logger.Warn("request failed with remote service error",
			"task_id", t.id,
			"error", err)
	default:
		s.tracker.otherErrors.Add(1)
		s.logger.Warn("request failed",
			"task_id", t.id,
			"error", err)
	}

	t.errs = append(t.errs, err)

	if t.attemptsLeft > 0 {
		s.retry.push(t)
		return
	}

	s.tracker.failed.Add(1)
	s.tracker.inProgress.Add(-1)
	s.logger.Error("request failed after all attempts",
		"task_id", t.id,
		"attempts", len(t.errs),
		"errors", errors.Join(t.errs...))
	s.signalProgress()
}

func (s *scheduler) signalProgress() {
	if s.cfg.OnProgress != nil {
		s.cfg.OnProgress()
	}
}
