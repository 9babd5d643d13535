package memo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"github.com/phrazzld/governor/internal/atomicfile"
)

// Common errors returned by the memo package.
var (
	// ErrNilFunc is returned when a cache is constructed without a computation.
	ErrNilFunc = errors.New("memoized function cannot be nil")

	// ErrEmptyName is returned when a cache is constructed without a name.
	ErrEmptyName = errors.New("cache name cannot be empty")
)

// Func is the computation being memoized. It receives the original call
// arguments; the cache never inspects them beyond fingerprinting.
type Func[V any] func(ctx context.Context, args ...any) (V, error)

// Config holds construction options for a Cache.
type Config struct {
	// Name identifies the cache and, by default, names its durable file.
	Name string

	// Dir is the directory holding durable cache files.
	// Defaults to "cache".
	Dir string

	// Path overrides the derived file path entirely when non-empty.
	Path string

	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Cache memoizes a computation, persisting results to a single durable
// file shared with any cooperating process using the same path.
//
// The zero value is not usable; construct with New.
type Cache[V any] struct {
	s *state[V]

	// skipReload marks a fixed write-only view obtained via WriteOnly:
	// per-call disk reloads are skipped, trading cross-process freshness
	// for throughput.
	skipReload bool
}

// state is the shared core of a cache and all views onto it.
type state[V any] struct {
	name   string
	path   string
	fn     Func[V]
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]V

	// ioMu serializes file-lock windows within the process. flock.Flock
	// short-circuits Lock on an instance that is already locked and
	// releases unconditionally on Unlock, so overlapping windows on the
	// shared instance would drop the advisory lock mid-write. Lock order:
	// ioMu, then fileLock, then mu.
	ioMu     sync.Mutex
	fileLock *flock.Flock
	group    singleflight.Group

	scopeMu   sync.Mutex
	writeOnly int
}

// New constructs a Cache for fn, loads any previously persisted entries,
// and registers the cache in reg (when reg is non-nil) so it participates
// in Registry.FlushAll.
func New[V any](reg *Registry, cfg Config, fn Func[V]) (*Cache[V], error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	if cfg.Name == "" {
		return nil, ErrEmptyName
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.Path
	if path == "" {
		dir := cfg.Dir
		if dir == "" {
			dir = "cache"
		}
		path = filepath.Join(dir, cfg.Name+"_cache.json")
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache[V]{
		s: &state[V]{
			name:     cfg.Name,
			path:     path,
			fn:       fn,
			logger:   logger.With("cache", cfg.Name),
			entries:  make(map[string]V),
			fileLock: flock.New(path + ".lock"),
		},
	}

	if err := c.s.mergeFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load cache %q: %w", cfg.Name, err)
	}

	if reg != nil {
		reg.register(c)
	}
	return c, nil
}

// Name returns the cache's logical name.
func (c *Cache[V]) Name() string { return c.s.name }

// Path returns the absolute path of the durable cache file.
func (c *Cache[V]) Path() string { return c.s.path }

// Call returns the cached value for args if present, otherwise invokes
// the wrapped computation, stores and persists the result, and returns it.
// Concurrent calls with structurally equal arguments share one invocation.
//
// Unless a write-only scope or view is active, the in-memory map is first
// refreshed from the durable file so completed work from a cooperating
// process becomes visible.
func (c *Cache[V]) Call(ctx context.Context, args ...any) (V, error) {
	var zero V
	key, err := Key(args...)
	if err != nil {
		return zero, err
	}
	return c.callKey(ctx, key, args...)
}

func (c *Cache[V]) callKey(ctx context.Context, key string, args ...any) (V, error) {
	var zero V
	s := c.s

	if !c.reloadDisabled() {
		if err := s.mergeFromDisk(); err != nil {
			return zero, err
		}
	}

	s.mu.Lock()
	if v, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	res, err, _ := s.group.Do(key, func() (any, error) {
		// A concurrent flight may have filled the entry between the check
		// above and this flight being admitted.
		s.mu.Lock()
		if v, ok := s.entries[key]; ok {
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		v, err := s.fn(ctx, args...)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries[key] = v
		s.mu.Unlock()

		if err := s.persist(); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return res.(V), nil
}

// Lookup reports whether a value is cached for args without invoking the
// computation. It honors the same reload rules as Call.
func (c *Cache[V]) Lookup(args ...any) (V, bool, error) {
	var zero V
	key, err := Key(args...)
	if err != nil {
		return zero, false, err
	}
	return c.lookupKey(key)
}

func (c *Cache[V]) lookupKey(key string) (V, bool, error) {
	var zero V
	if !c.reloadDisabled() {
		if err := c.s.mergeFromDisk(); err != nil {
			return zero, false, err
		}
	}
	c.s.mu.Lock()
	v, ok := c.s.entries[key]
	c.s.mu.Unlock()
	return v, ok, nil
}

// Remove deletes the entry for args from memory and from the durable
// file. The file's current contents are merged in first so a concurrent
// writer's entries for other keys are not discarded.
func (c *Cache[V]) Remove(args ...any) error {
	key, err := Key(args...)
	if err != nil {
		return err
	}

	s := c.s
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire cache file lock: %w", err)
	}
	defer func() { _ = s.fileLock.Unlock() }()

	s.mu.Lock()
	defer s.mu.Unlock()

	disk, err := s.readDisk()
	if err != nil {
		return err
	}
	for k, v := range disk {
		s.entries[k] = v
	}
	delete(s.entries, key)

	return s.writeEntries()
}

// Flush persists the cache's current contents with the usual
// reload-merge-write discipline. Used for orderly shutdown, typically via
// Registry.FlushAll.
func (c *Cache[V]) Flush() error {
	return c.s.persist()
}

// Keys returns the fingerprints of all in-memory entries, sorted.
func (c *Cache[V]) Keys() []string {
	c.s.mu.Lock()
	keys := make([]string, 0, len(c.s.entries))
	for k := range c.s.entries {
		keys = append(keys, k)
	}
	c.s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of in-memory entries.
func (c *Cache[V]) Len() int {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return len(c.s.entries)
}

// WriteOnly returns a view sharing this cache's state that skips the
// per-call disk reload. Use it when bulk-driving the cache under a known
// single-writer assumption; writes still persist normally.
func (c *Cache[V]) WriteOnly() *Cache[V] {
	return &Cache[V]{s: c.s, skipReload: true}
}

// WithWriteOnly refreshes the cache from disk once, then runs fn with
// per-call disk reloads suspended on the cache itself. The scope is
// reference-counted: nested or concurrent scopes stack, and normal reload
// behavior is restored when the last one exits.
func (c *Cache[V]) WithWriteOnly(fn func(c *Cache[V]) error) error {
	if err := c.s.mergeFromDisk(); err != nil {
		return err
	}

	c.s.scopeMu.Lock()
	c.s.writeOnly++
	c.s.scopeMu.Unlock()

	defer func() {
		c.s.scopeMu.Lock()
		c.s.writeOnly--
		c.s.scopeMu.Unlock()
	}()

	return fn(c)
}

func (c *Cache[V]) reloadDisabled() bool {
	if c.skipReload {
		return true
	}
	c.s.scopeMu.Lock()
	defer c.s.scopeMu.Unlock()
	return c.s.writeOnly > 0
}

// putKey stores a precomputed value under key and persists. Used by the
// composite layer once an entry reaches its resolved state.
func (c *Cache[V]) putKey(key string, v V) error {
	c.s.mu.Lock()
	c.s.entries[key] = v
	c.s.mu.Unlock()
	return c.s.persist()
}

// mergeFromDisk refreshes the in-memory map from the durable file. Disk
// entries win for conflicting keys; a missing file is an empty cache.
func (s *state[V]) mergeFromDisk() error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire cache file lock: %w", err)
	}
	disk, err := s.readDisk()
	if uerr := s.fileLock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("failed to release cache file lock: %w", uerr)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	for k, v := range disk {
		s.entries[k] = v
	}
	s.mu.Unlock()
	return nil
}

// persist writes the in-memory map to the durable file after merging in
// the file's current contents, so a concurrent writer's entries are never
// lost. Holds the window mutex, the file lock, and the map mutex for the
// whole load-merge-write sequence.
func (s *state[V]) persist() error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire cache file lock: %w", err)
	}
	defer func() { _ = s.fileLock.Unlock() }()

	s.mu.Lock()
	defer s.mu.Unlock()

	disk, err := s.readDisk()
	if err != nil {
		return err
	}
	for k, v := range disk {
		s.entries[k] = v
	}

	return s.writeEntries()
}

// readDisk reads and decodes the durable file. Callers hold the file lock.
func (s *state[V]) readDisk() (map[string]V, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var disk map[string]V
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, fmt.Errorf("failed to decode cache file %s: %w", s.path, err)
	}
	return disk, nil
}

// writeEntries serializes the in-memory map and atomically replaces the
// durable file. Callers hold both the mutex and the file lock.
func (s *state[V]) writeEntries() error {
	err := atomicfile.Replace(s.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		return enc.Encode(s.entries)
	})
	if err != nil {
		return fmt.Errorf("failed to persist cache %q: %w", s.name, err)
	}
	s.logger.Debug("cache persisted", "entries", len(s.entries))
	return nil
}
