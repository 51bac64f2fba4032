package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries every tunable for the monitor binary. Values come from the
// environment, with an optional .env file loaded first.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	DataRoot string `env:"DATA_ROOT" envDefault:"./data"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`

	// Hourly monitor
	MonitorEnabled           bool          `env:"MONITOR_ENABLED" envDefault:"true"`
	MonitorPollInterval      time.Duration `env:"MONITOR_POLL_INTERVAL" envDefault:"5m"`
	MonitorRecentRetry       time.Duration `env:"MONITOR_RECENT_RETRY" envDefault:"1m"`
	MonitorLookbackDays      int           `env:"MONITOR_MAX_LOOKBACK_DAYS" envDefault:"1"`
	FallbackThresholdMinutes int           `env:"LOCAL_FALLBACK_MINUTES" envDefault:"45"`

	// Local fallback crawler. When set, the command runs with {date} and
	// {hour} substituted and must print a topic JSON list on stdout.
	FallbackCommand string        `env:"LOCAL_FALLBACK_COMMAND"`
	FallbackTimeout time.Duration `env:"LOCAL_FALLBACK_TIMEOUT" envDefault:"2m"`

	// Remote snapshot source. {date} and {hour} are substituted per fetch.
	SnapshotSourceURL string        `env:"SNAPSHOT_SOURCE_URL" envDefault:"https://raw.githubusercontent.com/lxw15337674/weibo-trending-hot-history/refs/heads/master/api/{date}/{hour}.json"`
	SnapshotTimeout   time.Duration `env:"SNAPSHOT_TIMEOUT" envDefault:"10s"`

	// Rate limiting for the snapshot fetch scope
	RateLimitBaseDelay       time.Duration `env:"RATE_LIMIT_BASE_DELAY" envDefault:"5s"`
	RateLimitJitter          float64       `env:"RATE_LIMIT_JITTER" envDefault:"0.2"`
	RateLimitBackoffAttempts int           `env:"RATE_LIMIT_BACKOFF_ATTEMPTS" envDefault:"3"`
	RateLimitSoftRange       string        `env:"RATE_LIMIT_SOFT_RANGE" envDefault:"300,900"`
	RateLimitHardRange       string        `env:"RATE_LIMIT_HARD_RANGE" envDefault:"1800,3600"`
	RateLimitCooldownWindow  time.Duration `env:"RATE_LIMIT_COOLDOWN_WINDOW" envDefault:"1h"`
	RateLimitSoftThreshold   int           `env:"RATE_LIMIT_SOFT_THRESHOLD" envDefault:"2"`

	// Credential pool
	Credentials        string        `env:"SOURCE_CREDENTIALS"`
	Credential         string        `env:"SOURCE_CREDENTIAL"`
	CredentialFiles    []string      `env:"SOURCE_CREDENTIAL_FILES" envSeparator:","`
	CredentialCooldown time.Duration `env:"SOURCE_CREDENTIAL_COOLDOWN" envDefault:"10m"`

	// Daily enrichment
	EnrichmentEnabled bool   `env:"ENRICHMENT_ENABLED" envDefault:"true"`
	EnrichmentTime    string `env:"ENRICHMENT_TIME" envDefault:"09:30"`
	EnrichmentWorkers int    `env:"ENRICHMENT_WORKERS" envDefault:"3"`
	EnrichmentTopK    int    `env:"ENRICHMENT_TOP_K" envDefault:"50"`
	StoredPostsCap    int    `env:"ENRICHMENT_STORED_POSTS_CAP" envDefault:"20"`

	// Classifier (OpenAI-compatible endpoint)
	LLMAPIKey  string        `env:"LLM_API_KEY"`
	LLMBaseURL string        `env:"LLM_BASE_URL"`
	LLMModel   string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMRPS     int           `env:"LLM_RATE_LIMIT_RPS" envDefault:"1"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	// Risk warning snapshot
	RiskWindowDays int `env:"RISK_WINDOW_DAYS" envDefault:"7"`
	RiskTopK       int `env:"RISK_TOP_K" envDefault:"5"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}

// ParseRange parses a "low,high" second-range string, sorting the bounds.
// Invalid or non-positive input yields the supplied default.
func ParseRange(value string, def [2]time.Duration) [2]time.Duration {
	parts := strings.Split(strings.ReplaceAll(value, " ", ""), ",")
	if len(parts) != 2 {
		return def
	}

	first, err1 := strconv.Atoi(parts[0])
	second, err2 := strconv.Atoi(parts[1])

	if err1 != nil || err2 != nil {
		return def
	}

	low, high := first, second
	if low > high {
		low, high = high, low
	}

	if low <= 0 {
		return def
	}

	return [2]time.Duration{time.Duration(low) * time.Second, time.Duration(high) * time.Second}
}

// ScopeOverride reads RATE_LIMIT_<SCOPE>_<KEY> for per-scope rate limit tuning.
func ScopeOverride(scope, key string) (string, bool) {
	name := fmt.Sprintf("RATE_LIMIT_%s_%s", strings.ToUpper(scope), key)

	val, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(val) == "" {
		return "", false
	}

	return strings.TrimSpace(val), true
}
