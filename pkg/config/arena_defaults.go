package config

import "time"

// DefaultConfig returns the built-in configuration. Load applies
// environment overrides on top of these values.
func DefaultConfig() *Config {
	return &Config{
		HTTP:       DefaultHTTPConfig(),
		Gateway:    DefaultGatewayConfig(),
		Repository: RepositoryConfig{},
		Arena:      DefaultArenaConfig(),
		Judging:    DefaultJudgingConfig(),
		Retention:  DefaultRetentionConfig(),
		Logging:    DefaultLoggingConfig(),
	}
}

// DefaultHTTPConfig returns the built-in HTTP defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr: ":8080",
	}
}

// DefaultGatewayConfig returns the built-in gateway defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseURL:        "https://openrouter.ai/api/v1",
		RequestTimeout: 120 * time.Second,
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// DefaultArenaConfig returns the built-in arena defaults.
func DefaultArenaConfig() ArenaConfig {
	return ArenaConfig{
		MaxLiveMatches:         2,
		StartsPerMinute:        5,
		MatchTimeout:           600 * time.Second,
		PairingCooldown:        10 * time.Second,
		PairingEpsilon:         0.1,
		MaxDebateTurns:         6,
		QualityRetirementFloor: 0.2,
	}
}

// DefaultJudgingConfig returns the built-in judging defaults.
func DefaultJudgingConfig() JudgingConfig {
	return JudgingConfig{
		MinJudges:        3,
		MaxJudges:        5,
		JudgeTimeout:     90 * time.Second,
		DrawEpsilon:      0.25,
		ReliabilityFloor: 0.4,
		ReliabilityAlpha: 0.05,
	}
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enabled:        true,
		Interval:       30 * time.Minute,
		MatchRetention: 0,
	}
}

// DefaultLoggingConfig returns the built-in logging defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
	}
}
