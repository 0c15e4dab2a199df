// Package config loads msgopsd configuration from the environment.
//
// Every variable is prefixed with MSGOPS_. A .env file in the working
// directory is loaded first when present; variables already set in the
// environment win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/jonwraymond/msgops/auth"
	"github.com/jonwraymond/msgops/observe"
	"github.com/jonwraymond/msgops/observe/exporters"
	"github.com/jonwraymond/msgops/provider"
	"github.com/jonwraymond/msgops/providers/mock"
	"github.com/jonwraymond/msgops/providers/webhook"
	"github.com/jonwraymond/msgops/resilience"
	"github.com/jonwraymond/msgops/router"
)

// Prefix is prepended to every variable name.
const Prefix = "MSGOPS_"

// Config is the daemon configuration.
type Config struct {
	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"msgopsd"`
	Version         string        `env:"VERSION" envDefault:"dev"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	// Providers lists upstream backends as id=target pairs, where target is
	// either a webhook base URL or "mock". Empty runs a single mock.
	Providers ProviderList `env:"PROVIDERS"`

	// WebhookAPIKey is handed to every webhook provider. It may be a
	// secretref: or ${ENV} reference.
	WebhookAPIKey  string        `env:"WEBHOOK_API_KEY"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`

	// SecretsDir roots secretref:file: references. Empty disables them.
	SecretsDir string `env:"SECRETS_DIR"`

	Strategy      string        `env:"ROUTER_STRATEGY" envDefault:"round_robin"`
	HealthTimeout time.Duration `env:"HEALTH_TIMEOUT" envDefault:"5s"`

	Telemetry Telemetry `envPrefix:"OTEL_"`
	Retry     Retry     `envPrefix:"RETRY_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
	Breaker   Breaker   `envPrefix:"BREAKER_"`
	Dedupe    Dedupe    `envPrefix:"DEDUPE_"`
	Auth      Auth      `envPrefix:"AUTH_"`
}

// Telemetry selects exporters.
type Telemetry struct {
	TracesExporter  string  `env:"TRACES_EXPORTER" envDefault:"none"`
	MetricsExporter string  `env:"METRICS_EXPORTER" envDefault:"prometheus"`
	Endpoint        string  `env:"ENDPOINT"`
	SamplePct       float64 `env:"SAMPLE_PCT" envDefault:"1"`
}

// Retry mirrors resilience.RetryConfig. MaxRetries 0 disables retries.
type Retry struct {
	MaxRetries    int           `env:"MAX" envDefault:"3"`
	Delay         time.Duration `env:"DELAY" envDefault:"100ms"`
	BackoffFactor float64       `env:"BACKOFF_FACTOR" envDefault:"2"`
	MaxDelay      time.Duration `env:"MAX_DELAY" envDefault:"30s"`
}

// RateLimit mirrors resilience.RateLimiterConfig. All zero disables the
// limiter.
type RateLimit struct {
	PerSecond   int  `env:"PER_SECOND"`
	PerMinute   int  `env:"PER_MINUTE"`
	PerHour     int  `env:"PER_HOUR"`
	PerDay      int  `env:"PER_DAY"`
	PerProvider bool `env:"PER_PROVIDER"`
}

// Enabled reports whether any window is configured.
func (r RateLimit) Enabled() bool {
	return r.PerSecond > 0 || r.PerMinute > 0 || r.PerHour > 0 || r.PerDay > 0
}

// Breaker mirrors resilience.CircuitBreakerConfig. Threshold 0 disables
// the breaker.
type Breaker struct {
	Threshold        int           `env:"THRESHOLD" envDefault:"5"`
	CallTimeout      time.Duration `env:"CALL_TIMEOUT" envDefault:"30s"`
	ResetTimeout     time.Duration `env:"RESET_TIMEOUT" envDefault:"60s"`
	HalfOpenMaxCalls int           `env:"HALF_OPEN_MAX_CALLS" envDefault:"1"`
}

// Dedupe configures duplicate suppression. TTL 0 disables it.
type Dedupe struct {
	TTL    time.Duration `env:"TTL" envDefault:"10m"`
	MaxTTL time.Duration `env:"MAX_TTL" envDefault:"24h"`
}

// Auth configures the HTTP API credentials. With neither a JWT secret nor
// API keys the API is open.
type Auth struct {
	JWTSecret   string `env:"JWT_SECRET"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	// APIKeys is a comma-separated list of name:key pairs.
	APIKeys string `env:"API_KEYS"`
}

// Enabled reports whether any credential is configured.
func (a Auth) Enabled() bool { return a.JWTSecret != "" || a.APIKeys != "" }

// Upstream is one configured backend: its id, factory and provider config.
type Upstream struct {
	ID      string
	Factory string
	Config  provider.Config
}

// ProviderList is the parsed form of MSGOPS_PROVIDERS.
type ProviderList []Upstream

// UnmarshalText parses "id=target,id=target".
func (l *ProviderList) UnmarshalText(text []byte) error {
	var out ProviderList
	seen := make(map[string]bool)
	for raw := range strings.SplitSeq(string(text), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, target, ok := strings.Cut(raw, "=")
		id, target = strings.TrimSpace(id), strings.TrimSpace(target)
		if !ok || id == "" || target == "" {
			return fmt.Errorf("provider entry %q: want id=target", raw)
		}
		if seen[id] {
			return fmt.Errorf("provider entry %q: duplicate id", raw)
		}
		seen[id] = true

		up := Upstream{ID: id, Config: provider.Config{"id": id}}
		if target == mock.ID {
			up.Factory = mock.ID
		} else {
			up.Factory = webhook.ID
			up.Config["baseUrl"] = target
		}
		out = append(out, up)
	}
	*l = out
	return nil
}

// Load reads the optional .env files (default ".env") and then the process
// environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load env file: %w", err)
	}
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil, and validates it.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: Prefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Providers) == 0 {
		c.Providers = ProviderList{{ID: mock.ID, Factory: mock.ID, Config: provider.Config{"id": mock.ID}}}
	}
	for i := range c.Providers {
		if c.Providers[i].Factory != webhook.ID {
			continue
		}
		c.Providers[i].Config["timeout"] = c.WebhookTimeout
		if c.WebhookAPIKey != "" {
			c.Providers[i].Config["apiKey"] = c.WebhookAPIKey
		}
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("LISTEN_ADDR is required"))
	}
	if _, err := observe.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if _, err := router.ParseStrategy(c.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("ROUTER_STRATEGY: %w", err))
	}
	if !slices.Contains(exporters.TracingExporters, c.Telemetry.TracesExporter) {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_EXPORTER: unknown exporter %q", c.Telemetry.TracesExporter))
	}
	if !slices.Contains(exporters.MetricsExporters, c.Telemetry.MetricsExporter) {
		errs = append(errs, fmt.Errorf("OTEL_METRICS_EXPORTER: unknown exporter %q", c.Telemetry.MetricsExporter))
	}
	if c.Telemetry.SamplePct < 0 || c.Telemetry.SamplePct > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_PCT: %v is outside [0, 1]", c.Telemetry.SamplePct))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("RETRY_MAX must not be negative"))
	}
	if c.Breaker.Threshold < 0 || c.Breaker.HalfOpenMaxCalls < 0 {
		errs = append(errs, errors.New("BREAKER_THRESHOLD and BREAKER_HALF_OPEN_MAX_CALLS must not be negative"))
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.PerMinute < 0 || c.RateLimit.PerHour < 0 || c.RateLimit.PerDay < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_* must not be negative"))
	}
	if c.Auth.APIKeys != "" {
		if _, err := auth.ParseAPIKeys(c.Auth.APIKeys); err != nil {
			errs = append(errs, fmt.Errorf("AUTH_API_KEYS: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// ObserveConfig returns the observer configuration.
func (c Config) ObserveConfig() observe.Config {
	return observe.Config{
		ServiceName: c.ServiceName,
		Version:     c.Version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Telemetry.TracesExporter != "none",
			Exporter:  c.Telemetry.TracesExporter,
			Endpoint:  c.Telemetry.Endpoint,
			SamplePct: c.Telemetry.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Telemetry.MetricsExporter != "none",
			Exporter: c.Telemetry.MetricsExporter,
			Endpoint: c.Telemetry.Endpoint,
		},
		Logging: observe.LoggingConfig{Enabled: true, Level: c.LogLevel},
	}
}

// RouterStrategy returns the parsed strategy. Validate has already
// rejected unknown names.
func (c Config) RouterStrategy() router.Strategy {
	s, _ := router.ParseStrategy(c.Strategy)
	return s
}

// RetryConfig returns the retry middleware configuration, or false when
// retries are disabled.
func (c Config) RetryConfig() (resilience.RetryConfig, bool) {
	return resilience.RetryConfig{
		MaxRetries:    c.Retry.MaxRetries,
		RetryDelay:    c.Retry.Delay,
		BackoffFactor: c.Retry.BackoffFactor,
		MaxDelay:      c.Retry.MaxDelay,
	}, c.Retry.MaxRetries > 0
}

// RateLimiterConfig returns the limiter configuration, or false when no
// window is configured.
func (c Config) RateLimiterConfig() (resilience.RateLimiterConfig, bool) {
	cfg := resilience.RateLimiterConfig{
		MessagesPerSecond: c.RateLimit.PerSecond,
		MessagesPerMinute: c.RateLimit.PerMinute,
		MessagesPerHour:   c.RateLimit.PerHour,
		MessagesPerDay:    c.RateLimit.PerDay,
	}
	if c.RateLimit.PerProvider {
		cfg.Key = resilience.PerProvider
	}
	return cfg, c.RateLimit.Enabled()
}

// CircuitBreakerConfig returns the breaker configuration, or false when
// the breaker is disabled.
func (c Config) CircuitBreakerConfig() (resilience.CircuitBreakerConfig, bool) {
	return resilience.CircuitBreakerConfig{
		Threshold:        c.Breaker.Threshold,
		Timeout:          c.Breaker.CallTimeout,
		ResetTimeout:     c.Breaker.ResetTimeout,
		HalfOpenMaxCalls: c.Breaker.HalfOpenMaxCalls,
	}, c.Breaker.Threshold > 0
}

// Authenticator returns the configured credential chain, or nil when the
// API is open.
func (c Config) Authenticator() (auth.Authenticator, error) {
	var chain auth.Chain
	if c.Auth.JWTSecret != "" {
		chain = append(chain, auth.NewJWTAuthenticator(auth.JWTConfig{
			Secret:   []byte(c.Auth.JWTSecret),
			Issuer:   c.Auth.JWTIssuer,
			Audience: c.Auth.JWTAudience,
		}))
	}
	if c.Auth.APIKeys != "" {
		keys, err := auth.ParseAPIKeys(c.Auth.APIKeys)
		if err != nil {
			return nil, err
		}
		chain = append(chain, auth.NewAPIKeyAuthenticator(keys...))
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}
