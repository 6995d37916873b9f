// Package config loads the process configuration from the environment.
// Names follow the deployment contract; every value has a built-in default
// so a bare process comes up in a sane local configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shacharon/tavola/pkg/rank"
)

// Config is the full process configuration.
type Config struct {
	HTTPPort string

	// Store backend selection.
	StoreBackend  string // "memory" | "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auth.
	SessionCookieSecret string
	JWTSecret           string
	CookieSameSite      string // "lax" | "strict" | "none"
	CookieDomain        string
	CookieSecure        bool
	SessionTTL          time.Duration
	TicketTTL           time.Duration

	// Job store.
	DedupRunningMaxAge      time.Duration
	DedupSuccessFreshWindow time.Duration
	JobTTL                  time.Duration
	SweepInterval           time.Duration

	// Realtime hub.
	WSHeartbeatInterval time.Duration
	WSOutboundQueueMax  int
	WSWriteTimeout      time.Duration
	BacklogSize         int
	BacklogTTL          time.Duration
	PendingSubWindow    time.Duration

	// Assistant SSE.
	AssistantSSETimeout   time.Duration
	AssistantPollInterval time.Duration

	// Provider adapter.
	ProviderBaseURL           string
	ProviderAPIKey            string
	ProviderTextSearchTimeout time.Duration
	ProviderNearbyTimeout     time.Duration
	ProviderFindPlaceTimeout  time.Duration
	ProviderGeocodeTimeout    time.Duration
	ProviderRetryAttempts     int
	ProviderRetryBackoff      []time.Duration
	ProviderDNSPreflight      bool

	// LLM collaborator service.
	LLMServiceURL string
	LLMTimeout    time.Duration

	// Pipeline.
	PipelineTimeout      time.Duration
	GateTimeout          time.Duration
	IntentTimeout        time.Duration
	RouteTimeout         time.Duration
	ProviderStageTimeout time.Duration
	PostFilterTimeout    time.Duration
	RankTimeout          time.Duration
	AssistantTimeout     time.Duration

	// Filter & rank tuning.
	FilterKeepUnknownOpen bool
	MinAcceptableResults  int
	DefaultRegion         string
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		StoreBackend:  getEnv("STORE_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		SessionCookieSecret: getEnv("SESSION_COOKIE_SECRET", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		CookieSameSite:      getEnv("COOKIE_SAMESITE", "lax"),
		CookieDomain:        getEnv("COOKIE_DOMAIN", ""),
		CookieSecure:        getBool("COOKIE_SECURE", false),
		SessionTTL:          getMillis("SESSION_TTL_MS", 7*24*time.Hour),
		TicketTTL:           getMillis("WS_TICKET_TTL_MS", 60*time.Second),

		DedupRunningMaxAge:      getMillis("DEDUP_RUNNING_MAX_AGE_MS", 90*time.Second),
		DedupSuccessFreshWindow: getMillis("DEDUP_SUCCESS_FRESH_WINDOW_MS", 5*time.Second),
		JobTTL:                  getMillis("JOB_TTL_MS", 5*time.Minute),
		SweepInterval:           getMillis("JOB_SWEEP_INTERVAL_MS", time.Minute),

		WSHeartbeatInterval: getMillis("WS_HEARTBEAT_INTERVAL_MS", 30*time.Second),
		WSOutboundQueueMax:  getInt("WS_OUTBOUND_QUEUE_MAX", 256),
		WSWriteTimeout:      getMillis("WS_WRITE_TIMEOUT_MS", 10*time.Second),
		BacklogSize:         getInt("WS_BACKLOG_SIZE", 128),
		BacklogTTL:          getMillis("WS_BACKLOG_TTL_MS", 5*time.Minute),
		PendingSubWindow:    getMillis("WS_PENDING_SUB_WINDOW_MS", 2*time.Minute),

		AssistantSSETimeout:   getMillis("ASSISTANT_SSE_TIMEOUT_MS", 20*time.Second),
		AssistantPollInterval: getMillis("ASSISTANT_POLL_INTERVAL_MS", 400*time.Millisecond),

		ProviderBaseURL:           getEnv("PROVIDER_BASE_URL", "https://places.example.com"),
		ProviderAPIKey:            getEnv("PROVIDER_API_KEY", ""),
		ProviderTextSearchTimeout: getMillis("PROVIDER_TEXTSEARCH_TIMEOUT_MS", 5*time.Second),
		ProviderNearbyTimeout:     getMillis("PROVIDER_NEARBY_TIMEOUT_MS", 5*time.Second),
		ProviderFindPlaceTimeout:  getMillis("PROVIDER_FINDPLACE_TIMEOUT_MS", 4*time.Second),
		ProviderGeocodeTimeout:    getMillis("PROVIDER_GEOCODE_TIMEOUT_MS", 4*time.Second),
		ProviderRetryAttempts:     getInt("PROVIDER_RETRY_ATTEMPTS", 3),
		ProviderRetryBackoff:      getBackoff("PROVIDER_RETRY_BACKOFF_MS", []time.Duration{0, 300 * time.Millisecond}),
		ProviderDNSPreflight:      getBool("PROVIDER_DNS_PREFLIGHT", false),

		LLMServiceURL: getEnv("LLM_SERVICE_URL", "http://localhost:8091"),
		LLMTimeout:    getMillis("LLM_TIMEOUT_MS", 8*time.Second),

		PipelineTimeout:      getMillis("PIPELINE_TIMEOUT_MS", 20*time.Second),
		GateTimeout:          getMillis("STAGE_GATE_TIMEOUT_MS", 3*time.Second),
		IntentTimeout:        getMillis("STAGE_INTENT_TIMEOUT_MS", 4*time.Second),
		RouteTimeout:         getMillis("STAGE_ROUTE_TIMEOUT_MS", 500*time.Millisecond),
		ProviderStageTimeout: getMillis("STAGE_PROVIDER_TIMEOUT_MS", 8*time.Second),
		PostFilterTimeout:    getMillis("STAGE_POSTFILTER_TIMEOUT_MS", 500*time.Millisecond),
		RankTimeout:          getMillis("STAGE_RANK_TIMEOUT_MS", time.Second),
		AssistantTimeout:     getMillis("STAGE_ASSISTANT_TIMEOUT_MS", 3*time.Second),

		FilterKeepUnknownOpen: getBool("FILTER_KEEP_UNKNOWN_OPEN", true),
		MinAcceptableResults:  getInt("MIN_ACCEPTABLE_RESULTS", 3),
		DefaultRegion:         getEnv("DEFAULT_REGION", "IL"),
	}
}

// Validate checks invariants that must hold before the process serves
// traffic. A validation failure aborts startup.
func (c *Config) Validate() error {
	if err := rank.ValidateProfiles(); err != nil {
		return fmt.Errorf("ranking profiles: %w", err)
	}
	switch c.StoreBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("STORE_BACKEND must be \"memory\" or \"redis\", got %q", c.StoreBackend)
	}
	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("COOKIE_SAMESITE must be lax, strict or none, got %q", c.CookieSameSite)
	}
	if c.SessionCookieSecret == "" {
		return fmt.Errorf("SESSION_COOKIE_SECRET is required")
	}
	if c.WSOutboundQueueMax <= 0 {
		return fmt.Errorf("WS_OUTBOUND_QUEUE_MAX must be positive")
	}
	if c.ProviderRetryAttempts < 1 {
		return fmt.Errorf("PROVIDER_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}

// getBackoff parses a comma-separated list of millisecond delays,
// e.g. "0,300" → [0ms, 300ms].
func getBackoff(key string, fallback []time.Duration) []time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(strings.Trim(v, "[] "), ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return fallback
		}
		out = append(out, time.Duration(n)*time.Millisecond)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
