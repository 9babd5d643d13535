// Package main implements the askbatch command, which drives a batch of
// prompts through the rate-limited scheduler with persistent memoization
// and writes one JSON result per prompt.
//
// Prompts come from positional arguments (use @file to read a prompt
// from a file) or from -prompts, a file with one prompt per line ("-"
// for stdin). Configuration comes from GOVERNOR_* environment variables
// or an optional config.yaml; GOVERNOR_LLM_API_KEY is required.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/governor/internal/batch"
	"github.com/phrazzld/governor/internal/config"
	"github.com/phrazzld/governor/internal/fallback"
	"github.com/phrazzld/governor/internal/memo"
	"github.com/phrazzld/governor/internal/platform/llm"
	"github.com/phrazzld/governor/internal/platform/logger"
)

// result is one output line.
type result struct {
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func main() {
	promptsPath := flag.String("prompts", "", "file with one prompt per line, '-' for stdin")
	outputPath := flag.String("output", "", "write JSON results here instead of stdout")
	flag.Parse()

	cfg, appLogger, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	prompts, err := collectPrompts(flag.Args(), *promptsPath)
	if err != nil {
		log.Fatalf("Failed to read prompts: %v", err)
	}
	if len(prompts) == 0 {
		log.Fatal("No prompts given; pass them as arguments or via -prompts")
	}

	out := os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Fatalf("Failed to open output file: %v", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	failed, err := run(context.Background(), cfg, appLogger, prompts, out)
	if err != nil {
		log.Fatalf("Batch failed: %v", err)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// initializeApp loads configuration and sets up application components.
// Returns the loaded config, the root logger, and any initialization error.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Debug("configuration loaded",
		"log_level", cfg.Server.LogLevel,
		"max_requests_per_minute", cfg.Scheduler.MaxRequestsPerMinute,
		"max_attempts", cfg.Scheduler.MaxAttempts,
		"cache_dir", cfg.Cache.Dir,
		"cache_disabled", cfg.Cache.Disabled,
		"model", cfg.LLM.Model)

	return cfg, appLogger, nil
}

// run drives every prompt to a terminal state and writes results as they
// complete. It returns the number of prompts that failed after all
// attempts.
func run(ctx context.Context, cfg *config.Config, appLogger *slog.Logger, prompts []string, out *os.File) (int64, error) {
	client, err := llm.NewClient(ctx, appLogger, cfg.LLM)
	if err != nil {
		return 0, fmt.Errorf("failed to create LLM client: %w", err)
	}

	registry := memo.NewRegistry(appLogger)
	defer func() {
		if err := registry.FlushAll(); err != nil {
			appLogger.Error("failed to flush caches at shutdown", "error", err)
		}
	}()

	invoke, err := buildInvoke(registry, cfg, appLogger, client)
	if err != nil {
		return 0, err
	}

	var writeMu sync.Mutex
	enc := json.NewEncoder(out)
	writeResult := func(r result) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := enc.Encode(r); err != nil {
			appLogger.Error("failed to write result", "error", err)
		}
	}

	tasks := make(chan batch.Call, len(prompts))
	for _, p := range prompts {
		prompt := p
		tasks <- func(ctx context.Context) error {
			response, err := invoke(ctx, prompt)
			if err != nil {
				return err
			}
			writeResult(result{Prompt: prompt, Model: cfg.LLM.Model, Response: response})
			return nil
		}
	}
	close(tasks)

	tracker, err := batch.Process(ctx, tasks, batch.Config{
		MaxRequestsPerMinute: cfg.Scheduler.MaxRequestsPerMinute,
		MaxAttempts:          cfg.Scheduler.MaxAttempts,
		Cooldown:             time.Duration(cfg.Scheduler.CooldownSeconds) * time.Second,
		Logger:               appLogger,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to process batch: %w", err)
	}

	status := tracker.Snapshot()
	appLogger.Info("batch finished",
		"prompts", len(prompts),
		"succeeded", status.Succeeded,
		"failed", status.Failed,
		"rate_limit_errors", status.RateLimitErrors)
	return status.Failed, nil
}

// invokeFunc resolves one prompt to a completion.
type invokeFunc func(ctx context.Context, prompt string) (string, error)

// completionRequest is the cache identity of one completion: the same
// prompt asked of a different model, or with different sampling knobs, is
// a different entry. It is the single definition of the cache key shape,
// on both the calling and the computing side.
type completionRequest struct {
	Model         string  `json:"model"`
	Prompt        string  `json:"prompt"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	SystemContext string  `json:"system_context,omitempty"`
}

// buildInvoke assembles the call chain for a prompt: memoization on the
// outside (matching how completions were historically cached), the
// equivalent-model fallback inside it, and the real client call at the
// bottom.
func buildInvoke(registry *memo.Registry, cfg *config.Config, appLogger *slog.Logger, client *llm.Client) (invokeFunc, error) {
	withFallback := fallback.Wrap(func(ctx context.Context, model string) (string, error) {
		return client.Complete(ctx, model, promptFromContext(ctx))
	}, llm.EquivalentModels)

	direct := func(ctx context.Context, prompt string) (string, error) {
		return withFallback(contextWithPrompt(ctx, prompt), cfg.LLM.Model)
	}

	if cfg.Cache.Disabled {
		return direct, nil
	}
	return memoized(registry, cfg, appLogger, direct)
}

// memoized wraps direct in the persistent completion cache, keyed by
// completionRequest.
func memoized(registry *memo.Registry, cfg *config.Config, appLogger *slog.Logger, direct invokeFunc) (invokeFunc, error) {
	cache, err := memo.New(registry, memo.Config{
		Name:   "completions",
		Dir:    cfg.Cache.Dir,
		Logger: appLogger,
	}, func(ctx context.Context, args ...any) (string, error) {
		req, ok := args[0].(completionRequest)
		if !ok {
			return "", fmt.Errorf("unexpected cache argument %T", args[0])
		}
		return direct(ctx, req.Prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion cache: %w", err)
	}

	// Batches are a single-writer workload, so skip the per-call disk
	// reload for throughput; results are still persisted on every write.
	view := cache.WriteOnly()

	return func(ctx context.Context, prompt string) (string, error) {
		return view.Call(ctx, completionRequest{
			Model:         cfg.LLM.Model,
			Prompt:        prompt,
			Temperature:   cfg.LLM.Temperature,
			TopP:          cfg.LLM.TopP,
			SystemContext: cfg.LLM.SystemContext,
		})
	}, nil
}

// promptKey is the context key carrying the prompt through the fallback
// wrapper, whose call signature only varies the target model.
type promptKey struct{}

func contextWithPrompt(ctx context.Context, prompt string) context.Context {
	return context.WithValue(ctx, promptKey{}, prompt)
}

func promptFromContext(ctx context.Context) string {
	prompt, _ := ctx.Value(promptKey{}).(string)
	return prompt
}

// collectPrompts merges positional prompts (with @file expansion) and
// the optional prompts file.
func collectPrompts(args []string, promptsPath string) ([]string, error) {
	var prompts []string

	for _, arg := range args {
		if strings.HasPrefix(arg, "@") {
			raw, err := os.ReadFile(arg[1:])
			if err != nil {
				return nil, fmt.Errorf("failed to read prompt file %s: %w", arg[1:], err)
			}
			prompts = append(prompts, strings.TrimSpace(string(raw)))
			continue
		}
		prompts = append(prompts, arg)
	}

	if promptsPath == "" {
		return prompts, nil
	}

	var r *os.File
	if promptsPath == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(promptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open prompts file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}

	return prompts, nil
}
