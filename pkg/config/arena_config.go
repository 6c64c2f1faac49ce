package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is the complete arena configuration, assembled from environment
// variables at startup. Invalid values fail fast; unknown variables are
// ignored.
type Config struct {
	HTTP       HTTPConfig
	Gateway    GatewayConfig
	Repository RepositoryConfig
	Arena      ArenaConfig
	Judging    JudgingConfig
	Retention  RetentionConfig
	Logging    LoggingConfig

	// AdminAPIKey is the shared secret required by admin mutations
	// (X-API-Key header).
	AdminAPIKey string
}

// HTTPConfig holds the HTTP server settings.
type HTTPConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
}

// GatewayConfig holds the model-gateway client settings.
type GatewayConfig struct {
	// BaseURL is the OpenAI-compatible API root, e.g. https://openrouter.ai/api/v1.
	BaseURL string
	// APIKey is sent as a bearer token on every call.
	APIKey string
	// RequestTimeout is the per-invocation wall-clock deadline.
	RequestTimeout time.Duration
	// MaxRetries bounds retry attempts for retryable failures.
	MaxRetries int
	// InitialBackoff is the first retry delay; doubled per attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
}

// RepositoryConfig holds persistent-store settings.
type RepositoryConfig struct {
	// URL is a Postgres DSN. Empty selects the in-memory repository.
	URL string
	// Key optionally overrides the DSN password, for deployments that
	// inject the credential separately from the connection string.
	Key string
}

// DSN returns the connection string with the separately-injected credential
// applied. An empty Key leaves the URL untouched.
func (c RepositoryConfig) DSN() (string, error) {
	if c.Key == "" || c.URL == "" {
		return c.URL, nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid REPOSITORY_URL: %w", err)
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, c.Key)
	return u.String(), nil
}

// ArenaConfig holds scheduling and match-execution settings.
type ArenaConfig struct {
	// MaxLiveMatches caps matches counted from admission to terminal event.
	MaxLiveMatches int
	// StartsPerMinute is the per-requester-IP token bucket rate.
	StartsPerMinute int
	// MatchTimeout is the per-match wall-clock budget.
	MatchTimeout time.Duration
	// PairingCooldown is the minimum idle time before an agent is
	// eligible for another match.
	PairingCooldown time.Duration
	// PairingEpsilon is the exploration probability for opponent choice.
	PairingEpsilon float64
	// MaxDebateTurns is the per-side turn budget in debate matches.
	MaxDebateTurns int
	// CronSchedule drives autonomous quick matches and probation sweeps;
	// empty disables the cron.
	CronSchedule string
	// QualityRetirementFloor retires challenges whose quality drops below it.
	QualityRetirementFloor float64
}

// JudgingConfig holds judge-panel settings.
type JudgingConfig struct {
	// MinJudges is the smallest acceptable panel.
	MinJudges int
	// MaxJudges is the largest panel drafted.
	MaxJudges int
	// JudgeTimeout bounds each judge invocation.
	JudgeTimeout time.Duration
	// DrawEpsilon is the weighted score difference below which a draw is
	// possible.
	DrawEpsilon float64
	// ReliabilityFloor excludes unreliable judges from selection.
	ReliabilityFloor float64
	// ReliabilityAlpha is the per-match reliability nudge.
	ReliabilityAlpha float64
}

// RetentionConfig holds the cleanup service settings.
type RetentionConfig struct {
	Enabled bool
	// Interval is the sweep period.
	Interval time.Duration
	// MatchRetention prunes terminal matches older than this; zero keeps
	// everything.
	MatchRetention time.Duration
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is text or json.
	Format string
}

// Validate checks cross-field constraints and required values.
func (c *Config) Validate() error {
	var errs []error
	if c.AdminAPIKey == "" {
		errs = append(errs, errors.New("ADMIN_API_KEY is required"))
	}
	if c.Arena.MaxLiveMatches < 1 {
		errs = append(errs, fmt.Errorf("MAX_LIVE_MATCHES must be >= 1, got %d", c.Arena.MaxLiveMatches))
	}
	if c.Arena.StartsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("STARTS_PER_MINUTE must be >= 1, got %d", c.Arena.StartsPerMinute))
	}
	if c.Arena.MatchTimeout <= 0 {
		errs = append(errs, errors.New("MATCH_TIMEOUT_SECONDS must be positive"))
	}
	if c.Arena.MaxDebateTurns < 1 {
		errs = append(errs, fmt.Errorf("max debate turns must be >= 1, got %d", c.Arena.MaxDebateTurns))
	}
	if c.Arena.PairingEpsilon < 0 || c.Arena.PairingEpsilon > 1 {
		errs = append(errs, fmt.Errorf("pairing epsilon must be in [0,1], got %g", c.Arena.PairingEpsilon))
	}
	if c.Judging.MinJudges < 1 {
		errs = append(errs, fmt.Errorf("MIN_JUDGES must be >= 1, got %d", c.Judging.MinJudges))
	}
	if c.Judging.MaxJudges < c.Judging.MinJudges {
		errs = append(errs, fmt.Errorf("MAX_JUDGES (%d) must be >= MIN_JUDGES (%d)",
			c.Judging.MaxJudges, c.Judging.MinJudges))
	}
	if c.Judging.DrawEpsilon < 0 {
		errs = append(errs, fmt.Errorf("DRAW_EPSILON must be >= 0, got %g", c.Judging.DrawEpsilon))
	}
	if c.Gateway.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("GATEWAY_MAX_RETRIES must be >= 0, got %d", c.Gateway.MaxRetries))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug|info|warn|error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text|json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
