// Package config loads triagebot settings from defaults, an optional YAML
// file, .env files, environment variables and command-line flags.
//
// Precedence, highest first: flags bound to the viper instance, TRIAGE_*
// environment variables, legacy variables (PORT, OPENROUTER_API_KEY,
// OPENROUTER_BASE_URL, LOG_LEVEL), the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/support-triage/graph"
	"github.com/dshills/support-triage/graph/model"
	"github.com/dshills/support-triage/triage"
)

// EnvPrefix prefixes every environment variable, e.g. TRIAGE_SERVER_PORT.
const EnvPrefix = "TRIAGE"

// Defaults.
const (
	DefaultPort     = 3000
	DefaultModel    = "openai/gpt-4.1-mini"
	DefaultBaseURL  = "https://openrouter.ai/api/v1"
	DefaultProvider = "openai"
)

// Config is the complete triagebot configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Classify  ClassifyConfig  `mapstructure:"classify"`
	Store     StoreConfig     `mapstructure:"store"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Channels  triage.Channels `mapstructure:"channels"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// ExposeErrors includes error details in 500 responses.
	ExposeErrors bool `mapstructure:"expose_errors"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LLMConfig selects and configures the chat model.
type LLMConfig struct {
	// Provider is one of openai, anthropic or google. The openai provider
	// talks to any OpenAI-compatible gateway, OpenRouter by default.
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// EngineConfig bounds workflow execution.
type EngineConfig struct {
	MaxSteps    int           `mapstructure:"max_steps"`
	NodeTimeout time.Duration `mapstructure:"node_timeout"`
	RunBudget   time.Duration `mapstructure:"run_budget"`
	Retry       RetryConfig   `mapstructure:"retry"`
}

// RetryConfig mirrors graph.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ClassifyConfig throttles classification requests.
type ClassifyConfig struct {
	// RateLimit is the sustained request rate per second. 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`

	// Timeout bounds one attempt of a classification node. 0 uses
	// engine.node_timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the run-history store.
type StoreConfig struct {
	// Driver is one of memory, sqlite, mysql or none.
	Driver string `mapstructure:"driver"`

	// DSN is the SQLite path or the MySQL data source name.
	DSN string `mapstructure:"dsn"`

	// MaxRuns bounds the memory store. 0 means unbounded.
	MaxRuns int `mapstructure:"max_runs"`

	// Retention prunes SQLite history older than this. 0 keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

// NotifyConfig configures notification delivery.
type NotifyConfig struct {
	// WebhookURL receives notifications as JSON. Empty logs them instead.
	WebhookURL     string            `mapstructure:"webhook_url"`
	WebhookHeaders map[string]string `mapstructure:"webhook_headers"`
	WebhookTimeout time.Duration     `mapstructure:"webhook_timeout"`

	// RedisAddr shares idempotency keys across replicas. Empty keeps them
	// in memory.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`

	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

// KnowledgeConfig points at the help-center and directory data.
type KnowledgeConfig struct {
	// Path of a YAML knowledge file. Empty uses the built-in data.
	Path string `mapstructure:"path"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`

	// Endpoint is an OTLP/HTTP collector URL. Empty logs spans instead.
	Endpoint string `mapstructure:"endpoint"`
}

// SetDefaults registers every key with its default on v. Keys must be known
// to viper for environment variables to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	retry := graph.DefaultRetryPolicy()
	channels := triage.DefaultChannels()

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.expose_errors", false)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("llm.provider", DefaultProvider)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", DefaultBaseURL)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 0)

	v.SetDefault("engine.max_steps", 0)
	v.SetDefault("engine.node_timeout", 20*time.Second)
	v.SetDefault("engine.run_budget", 40*time.Second)
	v.SetDefault("engine.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("engine.retry.base_delay", retry.BaseDelay)
	v.SetDefault("engine.retry.max_delay", retry.MaxDelay)

	v.SetDefault("classify.rate_limit", 0.0)
	v.SetDefault("classify.burst", 1)
	v.SetDefault("classify.timeout", time.Duration(0))

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_runs", 1000)
	v.SetDefault("store.retention", time.Duration(0))

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_headers", map[string]string{})
	v.SetDefault("notify.webhook_timeout", 10*time.Second)
	v.SetDefault("notify.redis_addr", "")
	v.SetDefault("notify.redis_password", "")
	v.SetDefault("notify.redis_db", 0)
	v.SetDefault("notify.key_prefix", "triage")
	v.SetDefault("notify.dedup_ttl", 24*time.Hour)

	v.SetDefault("knowledge.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "triagebot")
	v.SetDefault("tracing.endpoint", "")

	v.SetDefault("channels.ticket_queue", channels.TicketQueue)
	v.SetDefault("channels.on_call", channels.OnCall)
	v.SetDefault("channels.developers", channels.Developers)
	v.SetDefault("channels.feedback", channels.Feedback)
	v.SetDefault("channels.product_manager", channels.ProductManager)
	v.SetDefault("channels.human_inbox", channels.HumanInbox)
}

// legacyEnv maps keys to the variable names the service historically read.
var legacyEnv = map[string]string{
	"server.port":  "PORT",
	"llm.api_key":  "OPENROUTER_API_KEY",
	"llm.base_url": "OPENROUTER_BASE_URL",
	"log.level":    "LOG_LEVEL",
}

// Load reads configuration into a fresh viper instance.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith reads configuration into v, which may already carry bound flags.
// An empty path skips the config file. The result is not validated.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads variables from the given .env files without overriding
// the environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Validate reports every problem in c, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "google":
	default:
		add("llm.provider must be openai, anthropic or google, got %q", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		add("llm.api_key is required (set OPENROUTER_API_KEY or %s_LLM_API_KEY)", EnvPrefix)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 0 {
		add("llm.max_tokens must be >= 0, got %d", c.LLM.MaxTokens)
	}

	if c.Engine.MaxSteps < 0 {
		add("engine.max_steps must be >= 0, got %d", c.Engine.MaxSteps)
	}
	if c.Engine.NodeTimeout < 0 {
		add("engine.node_timeout must be >= 0, got %v", c.Engine.NodeTimeout)
	}
	if c.Engine.RunBudget < 0 {
		add("engine.run_budget must be >= 0, got %v", c.Engine.RunBudget)
	}
	retry := c.RetryPolicy()
	if err := retry.Validate(); err != nil {
		add("engine.retry: %w", err)
	}

	if c.Classify.RateLimit < 0 {
		add("classify.rate_limit must be >= 0, got %v", c.Classify.RateLimit)
	}
	if c.Classify.Timeout < 0 {
		add("classify.timeout must be >= 0, got %v", c.Classify.Timeout)
	}
	if c.Classify.RateLimit > 0 && c.Classify.Burst < 1 {
		add("classify.burst must be >= 1 when rate_limit is set, got %d", c.Classify.Burst)
	}

	switch c.Store.Driver {
	case "memory", "none":
	case "sqlite", "mysql":
		if c.Store.DSN == "" {
			add("store.dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		add("store.driver must be memory, sqlite, mysql or none, got %q", c.Store.Driver)
	}
	if c.Store.MaxRuns < 0 {
		add("store.max_runs must be >= 0, got %d", c.Store.MaxRuns)
	}

	if c.Notify.DedupTTL < 0 {
		add("notify.dedup_ttl must be >= 0, got %v", c.Notify.DedupTTL)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RetryPolicy returns the engine-wide retry policy.
func (c *Config) RetryPolicy() graph.RetryPolicy {
	return graph.RetryPolicy{
		MaxAttempts: c.Engine.Retry.MaxAttempts,
		BaseDelay:   c.Engine.Retry.BaseDelay,
		MaxDelay:    c.Engine.Retry.MaxDelay,
	}
}

// ModelConfig returns the settings for the selected provider adapter.
// The OpenRouter base URL only applies to the openai provider.
func (c *Config) ModelConfig() model.Config {
	mc := model.Config{
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}
	if c.LLM.Provider != "openai" && mc.BaseURL == DefaultBaseURL {
		mc.BaseURL = ""
	}
	if mc.Model == "" && c.LLM.Provider == "openai" {
		mc.Model = DefaultModel
	}
	return mc
}
