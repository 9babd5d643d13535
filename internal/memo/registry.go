package memo

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// flusher is the slice of a cache the registry needs: enough to persist
// it and to name it in diagnostics.
type flusher interface {
	Name() string
	Flush() error
}

// Registry tracks named cache instances so they can be persisted together
// at shutdown. It is an explicit object rather than a package-level
// global: construct one per process and pass it to anything that needs
// bulk flushing.
type Registry struct {
	logger *slog.Logger

	mu        sync.Mutex
	instances map[string]flusher
}

// NewRegistry creates an empty registry. A nil logger defaults to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:    logger,
		instances: make(map[string]flusher),
	}
}

// register records a cache under its name. A later cache with the same
// name replaces the earlier one, matching last-constructed-wins semantics
// for reconfigured caches.
func (r *Registry) register(c flusher) {
	r.mu.Lock()
	if _, exists := r.instances[c.Name()]; exists {
		r.logger.Warn("replacing previously registered cache", "cache", c.Name())
	}
	r.instances[c.Name()] = c
	r.mu.Unlock()
}

// Len returns the number of registered caches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// FlushAll persists every registered cache. All caches are attempted even
// if some fail; the combined error is returned.
func (r *Registry) FlushAll() error {
	r.mu.Lock()
	caches := make([]flusher, 0, len(r.instances))
	for _, c := range r.instances {
		caches = append(caches, c)
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range caches {
		if err := c.Flush(); err != nil {
			r.logger.Error("failed to flush cache", "cache", c.Name(), "error", err)
			errs = append(errs, fmt.Errorf("cache %q: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
