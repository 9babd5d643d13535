package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv sets up environment variables for testing
func setupEnv(t *testing.T, envVars map[string]string) func() {
	// Save current environment values
	originalValues := make(map[string]string)
	for name := range envVars {
		originalValues[name] = os.Getenv(name)
	}

	// Set new environment variables
	for name, value := range envVars {
		err := os.Setenv(name, value)
		require.NoError(t, err, "Failed to set environment variable %s", name)
	}

	// Return cleanup function
	return func() {
		// Restore original environment
		for name, value := range originalValues {
			if value == "" {
				os.Unsetenv(name)
			} else {
				os.Setenv(name, value)
			}
		}
	}
}

// TestLoadDefaults verifies that Load fills in the expected defaults when
// only the required settings are provided.
func TestLoadDefaults(t *testing.T) {
	cleanup := setupEnv(t, map[string]string{
		// Set required fields
		"GOVERNOR_LLM_API_KEY": "test-api-key",
		// Explicitly unset the ones we want to test defaults for
		"GOVERNOR_SERVER_LOG_LEVEL":                "",
		"GOVERNOR_SCHEDULER_MAX_REQUESTS_PER_MINUTE": "",
		"GOVERNOR_SCHEDULER_MAX_ATTEMPTS":          "",
		"GOVERNOR_CACHE_DIR":                       "",
	})
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg, "Load() should return a non-nil config")
	assert.Equal(t, "info", cfg.Server.LogLevel, "Default log level should be 'info'")
	assert.Equal(t, float64(60), cfg.Scheduler.MaxRequestsPerMinute, "Default rate should be 60 per minute")
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts, "Default max attempts should be 3")
	assert.Equal(t, 15, cfg.Scheduler.CooldownSeconds, "Default cooldown should be 15 seconds")
	assert.Equal(t, "cache", cfg.Cache.Dir, "Default cache dir should be 'cache'")
	assert.False(t, cfg.Cache.Disabled, "Memoization should be enabled by default")
}

// TestLoadFromEnv verifies that Load correctly reads values from environment variables.
func TestLoadFromEnv(t *testing.T) {
	cleanup := setupEnv(t, map[string]string{
		"GOVERNOR_SERVER_LOG_LEVEL":                "debug",
		"GOVERNOR_SCHEDULER_MAX_REQUESTS_PER_MINUTE": "120.5",
		"GOVERNOR_SCHEDULER_MAX_ATTEMPTS":          "5",
		"GOVERNOR_CACHE_DIR":                       "/tmp/governor-cache",
		"GOVERNOR_LLM_API_KEY":                     "test-api-key",
		"GOVERNOR_LLM_MODEL":                       "gemini-2.0-pro",
	})
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with valid environment variables")
	require.NotNil(t, cfg, "Load() should return a non-nil config")
	assert.Equal(t, "debug", cfg.Server.LogLevel, "Log level should be loaded from environment variables")
	assert.Equal(t, 120.5, cfg.Scheduler.MaxRequestsPerMinute, "Rate should be loaded from environment variables")
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts, "Max attempts should be loaded from environment variables")
	assert.Equal(t, "/tmp/governor-cache", cfg.Cache.Dir, "Cache dir should be loaded from environment variables")
	assert.Equal(t, "test-api-key", cfg.LLM.APIKey, "API key should be loaded from environment variables")
	assert.Equal(t, "gemini-2.0-pro", cfg.LLM.Model, "Model should be loaded from environment variables")
}

// TestLoadValidationErrors verifies that Load correctly validates the configuration.
func TestLoadValidationErrors(t *testing.T) {
	testCases := []struct {
		name           string
		envVars        map[string]string
		errorSubstring string
	}{
		{
			name: "Missing API key",
			envVars: map[string]string{
				"GOVERNOR_SERVER_LOG_LEVEL": "debug",
				"GOVERNOR_LLM_API_KEY":      "",
			},
			errorSubstring: "validation failed",
		},
		{
			name: "Invalid log level",
			envVars: map[string]string{
				"GOVERNOR_SERVER_LOG_LEVEL": "invalid-level",
				"GOVERNOR_LLM_API_KEY":      "test-api-key",
			},
			errorSubstring: "validation failed",
		},
		{
			name: "Negative rate",
			envVars: map[string]string{
				"GOVERNOR_SCHEDULER_MAX_REQUESTS_PER_MINUTE": "-1",
				"GOVERNOR_LLM_API_KEY":                       "test-api-key",
			},
			errorSubstring: "validation failed",
		},
		{
			name: "Zero attempts",
			envVars: map[string]string{
				"GOVERNOR_SCHEDULER_MAX_ATTEMPTS": "0",
				"GOVERNOR_LLM_API_KEY":            "test-api-key",
			},
			errorSubstring: "validation failed",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cleanup := setupEnv(t, tc.envVars)
			defer cleanup()

			cfg, err := Load()

			assert.Error(t, err, "Load() should return an error with invalid configuration")
			if err != nil {
				assert.Contains(t, err.Error(), tc.errorSubstring, "Error message should contain expected substring")
			}
			assert.Nil(t, cfg, "Config should be nil when an error occurs")
		})
	}
}
