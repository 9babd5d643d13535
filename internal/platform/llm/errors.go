package llm

import "errors"

// Error definitions for the llm package.
var (
	// ErrInvalidConfig is returned when the client configuration is invalid.
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrEmptyPrompt is returned when a completion is requested for an
	// empty prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrEmptyResponse is returned when the model produced no usable text.
	ErrEmptyResponse = errors.New("empty response from language model")
)
