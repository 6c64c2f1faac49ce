package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Load builds the configuration from defaults plus environment overrides
// and validates it. Parse failures and validation failures are aggregated
// into a single error so operators see every problem at once.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	var errs []error

	env := &envReader{errs: &errs}

	cfg.HTTP.Addr = env.str("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Gateway.BaseURL = env.str("MODEL_GATEWAY_URL", cfg.Gateway.BaseURL)
	cfg.Gateway.APIKey = env.str("MODEL_GATEWAY_KEY", cfg.Gateway.APIKey)
	cfg.Gateway.MaxRetries = env.intVal("GATEWAY_MAX_RETRIES", cfg.Gateway.MaxRetries)

	cfg.Repository.URL = env.str("REPOSITORY_URL", cfg.Repository.URL)
	cfg.Repository.Key = env.str("REPOSITORY_KEY", cfg.Repository.Key)

	cfg.AdminAPIKey = env.str("ADMIN_API_KEY", cfg.AdminAPIKey)

	cfg.Arena.MaxLiveMatches = env.intVal("MAX_LIVE_MATCHES", cfg.Arena.MaxLiveMatches)
	cfg.Arena.StartsPerMinute = env.intVal("STARTS_PER_MINUTE", cfg.Arena.StartsPerMinute)
	cfg.Arena.MatchTimeout = env.seconds("MATCH_TIMEOUT_SECONDS", cfg.Arena.MatchTimeout)
	cfg.Arena.PairingCooldown = env.seconds("PAIRING_COOLDOWN_SECONDS", cfg.Arena.PairingCooldown)
	cfg.Arena.CronSchedule = env.str("ARENA_CRON", cfg.Arena.CronSchedule)
	cfg.Arena.QualityRetirementFloor = env.floatVal("QUALITY_RETIREMENT_FLOOR", cfg.Arena.QualityRetirementFloor)

	cfg.Judging.MinJudges = env.intVal("MIN_JUDGES", cfg.Judging.MinJudges)
	cfg.Judging.MaxJudges = env.intVal("MAX_JUDGES", cfg.Judging.MaxJudges)
	cfg.Judging.JudgeTimeout = env.seconds("JUDGE_TIMEOUT_SECONDS", cfg.Judging.JudgeTimeout)
	cfg.Judging.DrawEpsilon = env.floatVal("DRAW_EPSILON", cfg.Judging.DrawEpsilon)

	cfg.Retention.Enabled = env.boolVal("RETENTION_ENABLED", cfg.Retention.Enabled)
	cfg.Retention.Interval = env.minutes("RETENTION_INTERVAL_MINUTES", cfg.Retention.Interval)
	cfg.Retention.MatchRetention = env.days("MATCH_RETENTION_DAYS", cfg.Retention.MatchRetention)

	cfg.Logging.Level = env.str("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = env.str("LOG_FORMAT", cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envReader reads typed environment values, collecting parse errors
// instead of failing on the first one.
type envReader struct {
	errs *[]error
}

func (r *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r *envReader) intVal(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (r *envReader) floatVal(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (r *envReader) boolVal(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (r *envReader) seconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %q is not a non-negative integer", key, v))
		return def
	}
	return time.Duration(n) * time.Second
}

func (r *envReader) minutes(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %q is not a non-negative integer", key, v))
		return def
	}
	return time.Duration(n) * time.Minute
}

func (r *envReader) days(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %q is not a non-negative integer", key, v))
		return def
	}
	return time.Duration(n) * 24 * time.Hour
}
