package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Harness   HarnessConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Log       LogConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server started by `uicheck serve`.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// MaxConcurrentRuns bounds runs executing at the same time.
	MaxConcurrentRuns int // default: 2
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// ControlURL connects to an already running browser instead of
	// launching one. The browser is left running on shutdown.
	ControlURL string

	// Stealth injects anti-bot-detection evasions into every page.
	Stealth bool // default: false

	// BlockedResourceTypes lists resource types to block, e.g. "Media".
	BlockedResourceTypes []string

	// BlockTrackers blocks requests to well-known analytics/ad domains.
	BlockTrackers bool // default: false
}

// HarnessConfig holds run defaults. Suite settings and CLI flags override them.
type HarnessConfig struct {
	Mode        string        // "sequential" or "parallel"; default: "sequential"
	Parallelism int           // default: 4
	StepTimeout time.Duration // default: 30s
	RunTimeout  time.Duration // default: 0 (none)
	ArtifactDir string        // default: "artifacts"
	BaseURL     string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// StoreConfig controls the in-memory run store of the HTTP server.
type StoreConfig struct {
	MaxEntries int           // default: 200
	TTL        time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// WebhookConfig configures run completion notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              envOr("UICHECK_HOST", "0.0.0.0"),
			Port:              envIntOr("UICHECK_PORT", 8080),
			Mode:              envOr("UICHECK_SERVER_MODE", "release"),
			MaxConcurrentRuns: envIntOr("UICHECK_MAX_RUNS", 2),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("UICHECK_HEADLESS", true),
			NoSandbox:            envBoolOr("UICHECK_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("UICHECK_BROWSER_BIN"),
			Proxy:                os.Getenv("UICHECK_PROXY"),
			ControlURL:           os.Getenv("UICHECK_CONTROL_URL"),
			Stealth:              envBoolOr("UICHECK_STEALTH", false),
			BlockedResourceTypes: envSliceOr("UICHECK_BLOCKED_RESOURCES", nil),
			BlockTrackers:        envBoolOr("UICHECK_BLOCK_TRACKERS", false),
		},
		Harness: HarnessConfig{
			Mode:        envOr("UICHECK_MODE", "sequential"),
			Parallelism: envIntOr("UICHECK_PARALLELISM", 4),
			StepTimeout: envDurationOr("UICHECK_STEP_TIMEOUT", 30*time.Second),
			RunTimeout:  envDurationOr("UICHECK_RUN_TIMEOUT", 0),
			ArtifactDir: envOr("UICHECK_ARTIFACT_DIR", "artifacts"),
			BaseURL:     os.Getenv("UICHECK_BASE_URL"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("UICHECK_AUTH_ENABLED", true),
			APIKeys: envSliceOr("UICHECK_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("UICHECK_RATE_RPS", 2.0),
			Burst:             envIntOr("UICHECK_RATE_BURST", 5),
		},
		Store: StoreConfig{
			MaxEntries: envIntOr("UICHECK_STORE_MAX_ENTRIES", 200),
			TTL:        envDurationOr("UICHECK_STORE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("UICHECK_LOG_LEVEL", "info"),
			Format: envOr("UICHECK_LOG_FORMAT", "text"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("UICHECK_WEBHOOK_URL"),
			Secret: os.Getenv("UICHECK_WEBHOOK_SECRET"),
		},
	}
}

// Validate checks the harness defaults.
func (h HarnessConfig) Validate() error {
	switch h.Mode {
	case "sequential", "parallel":
	default:
		return fmt.Errorf("invalid harness mode %q (want sequential or parallel)", h.Mode)
	}
	if h.Parallelism < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", h.Parallelism)
	}
	if h.StepTimeout <= 0 {
		return fmt.Errorf("step timeout must be positive, got %s", h.StepTimeout)
	}
	if h.RunTimeout < 0 {
		return fmt.Errorf("run timeout must not be negative, got %s", h.RunTimeout)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
