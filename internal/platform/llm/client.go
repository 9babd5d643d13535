package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/phrazzld/governor/internal/batch"
	"github.com/phrazzld/governor/internal/config"
	"github.com/phrazzld/governor/internal/fallback"
)

// EquivalentModels groups Gemini model names that answer the same
// requests interchangeably, for use with the fallback package.
var EquivalentModels = fallback.Groups{
	{"gemini-2.0-flash", "gemini-2.0-flash-001", "gemini-2.0-flash-lite"},
	{"gemini-1.5-pro", "gemini-1.5-pro-002"},
	{"gemini-1.5-flash", "gemini-1.5-flash-002", "gemini-1.5-flash-8b"},
}

// Client issues chat completions against the Gemini API.
type Client struct {
	// logger is used for structured logging
	logger *slog.Logger

	// cfg contains LLM-specific configuration
	cfg config.LLMConfig

	// client is the Gemini API client for making requests
	client *genai.Client
}

// NewClient creates a Client from the provided configuration.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &Client{
		logger: logger,
		cfg:    cfg,
		client: client,
	}, nil
}

// Model returns the configured default model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends prompt to the given model and returns the generated
// text. Errors are classified: throttling comes back wrapping
// batch.ErrRateLimited, other remote failures wrap
// batch.ErrRemoteService, so the scheduler's default classifiers apply.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if model == "" {
		model = c.cfg.Model
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.cfg.Temperature)),
		TopP:        genai.Ptr(float32(c.cfg.TopP)),
	}
	if c.cfg.SystemContext != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(c.cfg.SystemContext, genai.RoleUser)
	}

	c.logger.DebugContext(ctx, "sending completion request",
		"model", model,
		"prompt_length", len(prompt))

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", classify(err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: model %s returned no text", ErrEmptyResponse, model)
	}

	c.logger.DebugContext(ctx, "completion received",
		"model", model,
		"response_length", len(text))
	return text, nil
}

// classify maps a Gemini API failure onto the batch error taxonomy.
// HTTP 429 is the provider's throttling signal; any other 4xx/5xx is a
// remote service error. Everything else (transport failures, context
// cancellation) passes through unchanged.
func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", batch.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", batch.ErrRemoteService, err)
}
