package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache"     validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// SchedulerConfig contains the admission scheduler's throttling settings.
type SchedulerConfig struct {
	// MaxRequestsPerMinute is the provider-imposed rate limit.
	MaxRequestsPerMinute float64 `mapstructure:"max_requests_per_minute" validate:"required,gt=0"`

	// MaxAttempts bounds how many times a failing call is dispatched.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gte=1"`

	// CooldownSeconds is how long dispatch pauses after a rate limit error.
	CooldownSeconds int `mapstructure:"cooldown_seconds" validate:"gte=0"`
}

// CacheConfig contains the persistent memoization settings.
type CacheConfig struct {
	// Dir is the directory holding durable cache files.
	Dir string `mapstructure:"dir" validate:"required"`

	// Disabled turns memoization off entirely; every call hits the remote
	// service.
	Disabled bool `mapstructure:"disabled"`
}

// LLMConfig contains the remote language-model settings.
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"     validate:"required"`
	Model       string  `mapstructure:"model"       validate:"required"`
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `mapstructure:"top_p"       validate:"gte=0,lte=1"`

	// SystemContext seeds every conversation.
	SystemContext string `mapstructure:"system_context"`
}
