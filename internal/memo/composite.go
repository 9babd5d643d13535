package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// EntryState describes the lifecycle of a composite cache entry.
type EntryState int

const (
	// StateAbsent means no entry exists for the key.
	StateAbsent EntryState = iota

	// StatePending means the container is stored but no element has
	// resolved yet.
	StatePending

	// StatePartiallyResolved means some but not all elements have resolved.
	StatePartiallyResolved

	// StateResolved means every element has resolved and the entry has
	// been persisted.
	StateResolved
)

func (s EntryState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePending:
		return "pending"
	case StatePartiallyResolved:
		return "partially_resolved"
	case StateResolved:
		return "resolved"
	default:
		return fmt.Sprintf("EntryState(%d)", int(s))
	}
}

// Future is a single element of a composite result that may resolve after
// the containing collection has been handed to the caller.
type Future[T any] struct {
	done chan struct{}

	mu  sync.Mutex
	val T
	err error
	set bool
}

// NewFuture returns an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// ResolvedFuture returns a Future that already holds v.
func ResolvedFuture[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Resolve completes the future with a value. Calls after the first
// completion are ignored.
func (f *Future[T]) Resolve(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return
	}
	f.val = v
	f.set = true
	close(f.done)
}

// Fail completes the future with an error. Calls after the first
// completion are ignored.
func (f *Future[T]) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return
	}
	f.err = err
	f.set = true
	close(f.done)
}

// Done returns a channel closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result blocks until the future completes and returns its outcome.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.err
}

// CompositeFunc produces a fixed-size ordered collection whose elements
// may still be resolving when the function returns. The function itself
// must return promptly; only the futures are allowed to be slow.
type CompositeFunc[T any] func(ctx context.Context, args ...any) ([]*Future[T], error)

// CompositeCache memoizes computations whose results are collections of
// independently resolving elements. The container is cached immediately in
// a pending state, so a structurally equal call made while elements are
// still resolving returns the same live futures instead of re-invoking the
// computation. Each element is patched in as it resolves; once all have
// resolved the entry is persisted exactly once through the ordinary
// resolved-value cache.
//
// Entries whose elements fail are dropped rather than persisted, so a
// later call re-invokes the computation.
type CompositeCache[T any] struct {
	resolved *Cache[[]T]
	fn       CompositeFunc[T]
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*compositeEntry[T]
}

type compositeEntry[T any] struct {
	state     EntryState
	futures   []*Future[T]
	values    []T
	remaining int
	failed    bool
}

// errResolvedLayer guards the inner cache against direct invocation; the
// composite layer only ever writes to it with precomputed values.
var errResolvedLayer = errors.New("composite resolved layer cannot be invoked directly")

// NewComposite constructs a CompositeCache persisting resolved entries
// under the same naming rules as New.
func NewComposite[T any](reg *Registry, cfg Config, fn CompositeFunc[T]) (*CompositeCache[T], error) {
	if fn == nil {
		return nil, ErrNilFunc
	}

	resolved, err := New(reg, cfg, func(ctx context.Context, args ...any) ([]T, error) {
		return nil, errResolvedLayer
	})
	if err != nil {
		return nil, err
	}

	return &CompositeCache[T]{
		resolved: resolved,
		fn:       fn,
		logger:   resolved.s.logger,
		pending:  make(map[string]*compositeEntry[T]),
	}, nil
}

// Call returns the collection for args, computing it at most once.
// Resolved entries come back as already-completed futures; in-flight
// entries come back as the original live futures.
func (cc *CompositeCache[T]) Call(ctx context.Context, args ...any) ([]*Future[T], error) {
	key, err := Key(args...)
	if err != nil {
		return nil, err
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if e, ok := cc.pending[key]; ok {
		return e.futures, nil
	}

	vals, ok, err := cc.resolved.lookupKey(key)
	if err != nil {
		return nil, err
	}
	if ok {
		futures := make([]*Future[T], len(vals))
		for i, v := range vals {
			futures[i] = ResolvedFuture(v)
		}
		return futures, nil
	}

	futures, err := cc.fn(ctx, args...)
	if err != nil {
		return nil, err
	}

	if len(futures) == 0 {
		// Nothing to wait for; persist the empty container right away.
		if err := cc.resolved.putKey(key, []T{}); err != nil {
			return nil, err
		}
		return futures, nil
	}

	e := &compositeEntry[T]{
		state:     StatePending,
		futures:   futures,
		values:    make([]T, len(futures)),
		remaining: len(futures),
	}
	cc.pending[key] = e

	for i, f := range futures {
		go cc.watch(key, e, i, f)
	}
	return futures, nil
}

// watch patches element i into the entry when its future completes and
// finalizes the entry once every element has.
func (cc *CompositeCache[T]) watch(key string, e *compositeEntry[T], i int, f *Future[T]) {
	v, err := f.Result()

	cc.mu.Lock()
	if err != nil {
		e.failed = true
	} else {
		e.values[i] = v
	}
	e.remaining--
	if e.remaining > 0 {
		e.state = StatePartiallyResolved
		cc.mu.Unlock()
		return
	}
	e.state = StateResolved
	failed := e.failed
	values := e.values
	delete(cc.pending, key)
	cc.mu.Unlock()

	if failed {
		cc.logger.Warn("dropping composite entry with failed elements", "key", key)
		return
	}
	if err := cc.resolved.putKey(key, values); err != nil {
		cc.logger.Error("failed to persist resolved composite entry",
			"key", key,
			"error", err)
	}
}

// State reports the lifecycle state of the entry for args. StateResolved
// covers both freshly finalized and previously persisted entries.
func (cc *CompositeCache[T]) State(args ...any) (EntryState, error) {
	key, err := Key(args...)
	if err != nil {
		return StateAbsent, err
	}

	cc.mu.Lock()
	if e, ok := cc.pending[key]; ok {
		state := e.state
		cc.mu.Unlock()
		return state, nil
	}
	cc.mu.Unlock()

	_, ok, err := cc.resolved.lookupKey(key)
	if err != nil {
		return StateAbsent, err
	}
	if ok {
		return StateResolved, nil
	}
	return StateAbsent, nil
}

// Flush persists the resolved layer. Pending entries are intentionally
// not written; disk only ever sees fully resolved containers.
func (cc *CompositeCache[T]) Flush() error { return cc.resolved.Flush() }

// Name returns the cache's logical name.
func (cc *CompositeCache[T]) Name() string { return cc.resolved.Name() }
