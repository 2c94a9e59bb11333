package config

import (
	"fmt"
	"maps"
	neturl "net/url"
	"os"
	"slices"
	"time"

	"go.yaml.in/yaml/v2"
)

const (
	// DefaultRulesURL is the ClearURLs rules document fetched when no source
	// is configured.
	DefaultRulesURL = "https://kevinroebert.gitlab.io/ClearUrls/data/data.minify.json"

	DefaultUserAgent = "linkscrub/1.0 (link sanitizer; +https://github.com/linkscrub/linkscrub)"
)

// Config is the top-level configuration for the link sanitizer service.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Rules  RulesConfig  `yaml:"rules"`
	Log    LogConfig    `yaml:"log"`
}

// New returns a Config with sensible defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Rules: RulesConfig{
			URL: DefaultRulesURL,
		},
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string          `yaml:"addr"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// GetAddr returns the listen address with a default of ":8080".
func (s *ServerConfig) GetAddr() string {
	if s.Addr != "" {
		return s.Addr
	}
	return ":8080"
}

// RateLimitConfig defines per-IP request limiting for the API.
type RateLimitConfig struct {
	Requests int           `yaml:"requests,omitempty"`
	Window   time.Duration `yaml:"window,omitempty"`
}

// GetRequests returns the request limit with a default of 100.
func (r *RateLimitConfig) GetRequests() int {
	if r.Requests > 0 {
		return r.Requests
	}
	return 100
}

// GetWindow returns the limiting window with a default of 1 minute.
func (r *RateLimitConfig) GetWindow() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return time.Minute
}

// RulesConfig defines where the rules document comes from and how often it is
// refreshed.
type RulesConfig struct {
	URL                string        `yaml:"url,omitempty"`
	RefreshInterval    time.Duration `yaml:"refresh_interval,omitempty"`
	MinRefreshInterval time.Duration `yaml:"min_refresh_interval,omitempty"`
	Fetch              FetchConfig   `yaml:"fetch"`
	Retry              RetryConfig   `yaml:"retry"`
}

// GetURL returns the rules document URL with the ClearURLs default.
func (r *RulesConfig) GetURL() string {
	if r.URL != "" {
		return r.URL
	}
	return DefaultRulesURL
}

// GetRefreshInterval returns the background refresh interval with a default
// of 24 hours.
func (r *RulesConfig) GetRefreshInterval() time.Duration {
	if r.RefreshInterval > 0 {
		return r.RefreshInterval
	}
	return 24 * time.Hour
}

// GetMinRefreshInterval returns the minimum spacing between on-demand
// refreshes with a default of 1 minute.
func (r *RulesConfig) GetMinRefreshInterval() time.Duration {
	if r.MinRefreshInterval > 0 {
		return r.MinRefreshInterval
	}
	return time.Minute
}

// FetchConfig defines how the rules document is fetched.
type FetchConfig struct {
	Timeout              time.Duration     `yaml:"timeout,omitempty"`
	UserAgent            string            `yaml:"user_agent,omitempty"`
	Headers              map[string]string `yaml:"headers,omitempty"`
	EnableSSRFProtection bool              `yaml:"enable_ssrf_protection,omitempty"`
}

// GetTimeout returns the fetch timeout with a default of 30 seconds.
func (f *FetchConfig) GetTimeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return 30 * time.Second
}

// GetHeaders returns the headers to use for a request, always including a
// User-Agent.
func (f *FetchConfig) GetHeaders() map[string]string {
	headers := make(map[string]string)
	if f.UserAgent != "" {
		headers["User-Agent"] = f.UserAgent
	} else {
		headers["User-Agent"] = DefaultUserAgent
	}
	maps.Copy(headers, f.Headers)
	return headers
}

// RetryConfig defines retry and exponential backoff behavior for failed
// rules document fetches.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`
	Multiplier   float64       `yaml:"multiplier,omitempty"`
	RetryOn      []int         `yaml:"retry_on,omitempty"`
}

// GetMaxRetries returns the max retries with a default of 0 (no retries).
func (r *RetryConfig) GetMaxRetries() int {
	if r.MaxRetries < 0 {
		return 0
	}
	return r.MaxRetries
}

// GetInitialDelay returns the initial delay with a default of 1 second.
func (r *RetryConfig) GetInitialDelay() time.Duration {
	if r.InitialDelay > 0 {
		return r.InitialDelay
	}
	return time.Second
}

// GetMaxDelay returns the max delay with a default of 30 seconds.
func (r *RetryConfig) GetMaxDelay() time.Duration {
	if r.MaxDelay > 0 {
		return r.MaxDelay
	}
	return 30 * time.Second
}

// GetMultiplier returns the backoff multiplier with a default of 2.0.
func (r *RetryConfig) GetMultiplier() float64 {
	if r.Multiplier > 0 {
		return r.Multiplier
	}
	return 2.0
}

// GetRetryOn returns the status codes to retry on with defaults [429, 500, 502, 503, 504].
func (r *RetryConfig) GetRetryOn() []int {
	if len(r.RetryOn) > 0 {
		return r.RetryOn
	}
	return []int{429, 500, 502, 503, 504}
}

// ShouldRetry returns true if the given status code should be retried.
func (r *RetryConfig) ShouldRetry(statusCode int) bool {
	return slices.Contains(r.GetRetryOn(), statusCode)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors and conflicts.
func (c *Config) Validate() error {
	if c.Server.RateLimit.Requests < 0 {
		return fmt.Errorf("server.rate_limit: 'requests' must be >= 0")
	}
	if c.Server.RateLimit.Window < 0 {
		return fmt.Errorf("server.rate_limit: 'window' must be >= 0")
	}

	if c.Rules.URL != "" {
		u, err := neturl.ParseRequestURI(c.Rules.URL)
		if err != nil {
			return fmt.Errorf("rules: invalid 'url': %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("rules: 'url' scheme must be http or https")
		}
	}
	if c.Rules.RefreshInterval < 0 {
		return fmt.Errorf("rules: 'refresh_interval' must be >= 0")
	}
	if c.Rules.MinRefreshInterval < 0 {
		return fmt.Errorf("rules: 'min_refresh_interval' must be >= 0")
	}
	if c.Rules.Fetch.Timeout < 0 {
		return fmt.Errorf("rules.fetch: 'timeout' must be >= 0")
	}

	r := c.Rules.Retry
	if r.Multiplier > 0 && r.Multiplier < 1.0 {
		return fmt.Errorf("rules.retry: 'multiplier' must be >= 1.0 (got %.2f)", r.Multiplier)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("rules.retry: 'max_retries' must be >= 0")
	}
	if r.MaxDelay > 0 && r.InitialDelay > r.MaxDelay {
		return fmt.Errorf("rules.retry: 'initial_delay' (%s) cannot be greater than 'max_delay' (%s)",
			r.InitialDelay, r.MaxDelay)
	}
	for _, code := range r.RetryOn {
		if code < 100 || code > 599 {
			return fmt.Errorf("rules.retry: invalid HTTP status code %d in 'retry_on'", code)
		}
	}

	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("log: 'format' must be 'json' or 'text'")
	}

	return nil
}
