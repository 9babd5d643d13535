// Package memo provides a persistent, concurrency-safe memoization layer
// for expensive computations such as remote API calls. Results are keyed
// by a canonical fingerprint of the call arguments and stored both in
// memory and in a durable file, so repeated work is never re-paid across
// process restarts or across cooperating processes sharing the same cache
// path.
//
// Durable writes follow a reload-merge-write discipline under a
// cross-process advisory file lock: the file's current contents are merged
// into memory before every persist, so no cooperating writer's entries are
// lost. The file itself is replaced atomically (see the atomicfile
// package), so it is never observable in a half-written state.
package memo
