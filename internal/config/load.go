package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults for everything that has a sensible one; required secrets
	// and limits have none and must be provided.
	v.SetDefault("server.log_level", "info")
	v.SetDefault("scheduler.max_requests_per_minute", 60)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.cooldown_seconds", 15)
	// Registering the key with an empty default lets AutomaticEnv find it;
	// validation still rejects the empty value.
	v.SetDefault("llm.api_key", "")
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.disabled", false)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 1)
	v.SetDefault("llm.top_p", 1)
	v.SetDefault("llm.system_context", "You are a helpful assistant.")

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with the GOVERNOR_ prefix override the file:
	// e.g. GOVERNOR_LLM_API_KEY, GOVERNOR_SCHEDULER_MAX_ATTEMPTS.
	v.SetEnvPrefix("GOVERNOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
