// Package fallback retries a call against interchangeable target
// identifiers. Given groups of equivalent targets (for example model
// names that answer the same requests), a wrapped call tries a random
// permutation of the requested target's group until one candidate
// succeeds, propagating the last failure if none does.
//
// The wrapper is a pure decorator: it holds no state and makes no
// assumptions about the underlying call beyond its signature.
package fallback

import (
	"context"
	"math/rand"
)

// Call invokes the underlying operation against one target identifier.
type Call[T any] func(ctx context.Context, target string) (T, error)

// Groups is an ordered list of groups of interchangeable target
// identifiers. A target appearing in no group is its own group of one.
type Groups [][]string

// Candidates returns a random permutation of target's group, or just
// target itself when it belongs to no group.
func (g Groups) Candidates(target string) []string {
	for _, group := range g {
		for _, member := range group {
			if member != target {
				continue
			}
			out := make([]string, len(group))
			copy(out, group)
			rand.Shuffle(len(out), func(i, j int) {
				out[i], out[j] = out[j], out[i]
			})
			return out
		}
	}
	return []string{target}
}

// Wrap returns a call that tries each candidate for the requested target
// in a freshly randomized order, returning the first success. If every
// candidate fails, the last error is returned.
func Wrap[T any](call Call[T], groups Groups) Call[T] {
	return func(ctx context.Context, target string) (T, error) {
		var zero T
		var lastErr error
		for _, candidate := range groups.Candidates(target) {
			v, err := call(ctx, candidate)
			if err == nil {
				return v, nil
			}
			lastErr = err
		}
		return zero, lastErr
	}
}
