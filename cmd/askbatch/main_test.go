package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/governor/internal/config"
	"github.com/phrazzld/governor/internal/memo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Cache: config.CacheConfig{Dir: dir},
		LLM: config.LLMConfig{
			Model:       "gemini-2.0-flash",
			Temperature: 1,
			TopP:        1,
		},
	}
}

func TestMemoized_PromptReachesComputationAndIsCached(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t.TempDir())
	var calls atomic.Int64
	var lastPrompt atomic.Value

	invoke, err := memoized(nil, cfg, testLogger(), func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		lastPrompt.Store(prompt)
		return "echo: " + prompt, nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	got, err := invoke(ctx, "what is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "echo: what is the capital of France?", got)
	assert.Equal(t, "what is the capital of France?", lastPrompt.Load())

	// The same prompt is served from the cache.
	again, err := invoke(ctx, "what is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int64(1), calls.Load())

	// A different prompt is a different entry.
	_, err = invoke(ctx, "and of Spain?")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCompletionRequestKeyIdentity(t *testing.T) {
	t.Parallel()

	base := completionRequest{Model: "gemini-2.0-flash", Prompt: "q", Temperature: 1, TopP: 1}
	baseKey, err := memo.Key(base)
	require.NoError(t, err)

	sameKey, err := memo.Key(completionRequest{Model: "gemini-2.0-flash", Prompt: "q", Temperature: 1, TopP: 1})
	require.NoError(t, err)
	assert.Equal(t, baseKey, sameKey)

	// Every field of the request participates in the cache identity.
	for name, req := range map[string]completionRequest{
		"model":       {Model: "gemini-2.5-pro", Prompt: "q", Temperature: 1, TopP: 1},
		"prompt":      {Model: "gemini-2.0-flash", Prompt: "q2", Temperature: 1, TopP: 1},
		"temperature": {Model: "gemini-2.0-flash", Prompt: "q", Temperature: 0.2, TopP: 1},
		"top_p":       {Model: "gemini-2.0-flash", Prompt: "q", Temperature: 1, TopP: 0.5},
		"system":      {Model: "gemini-2.0-flash", Prompt: "q", Temperature: 1, TopP: 1, SystemContext: "be terse"},
	} {
		key, err := memo.Key(req)
		require.NoError(t, err)
		assert.NotEqual(t, baseKey, key, "changing %s must change the key", name)
	}
}

func TestCollectPrompts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	promptFile := filepath.Join(dir, "long-prompt.txt")
	require.NoError(t, os.WriteFile(promptFile, []byte("  from a file\n"), 0o600))

	linesFile := filepath.Join(dir, "prompts.txt")
	require.NoError(t, os.WriteFile(linesFile, []byte("first\n\n  second  \n"), 0o600))

	prompts, err := collectPrompts([]string{"inline", "@" + promptFile}, linesFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"inline", "from a file", "first", "second"}, prompts)

	_, err = collectPrompts([]string{"@" + filepath.Join(dir, "missing.txt")}, "")
	assert.Error(t, err)
}
