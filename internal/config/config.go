// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Tasks   TasksConfig   `mapstructure:"tasks"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig locates the JSON course store.
type StoreConfig struct {
	Path       string `mapstructure:"path"`
	ExportPath string `mapstructure:"export_path"`
}

// TasksConfig governs the background task runner.
type TasksConfig struct {
	QueueDepth         int `mapstructure:"queue_depth"`
	Workers            int `mapstructure:"workers"`
	WaitTimeoutSeconds int `mapstructure:"wait_timeout_seconds"`
}

// HTTPConfig configures the outbound page-fetch client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// OpenAIConfig configures the generative model client.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ContextChars   int    `mapstructure:"context_chars"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// EnrichConfig governs enrichment pacing and failure policy.
type EnrichConfig struct {
	RateLimitRPM    int  `mapstructure:"rate_limit_rpm"`
	BatchSize       int  `mapstructure:"batch_size"`
	CooldownSeconds int  `mapstructure:"cooldown_seconds"`
	RequirePage     bool `mapstructure:"require_page"`
}

// PubSubConfig holds metadata for course-event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// BatchConfig tunes the enrichbatch CLI.
type BatchConfig struct {
	SkipHealthCheck bool `mapstructure:"skip_health_check"`
	ClearOutput     bool `mapstructure:"clear_output"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every knob. Viper only resolves environment
// variables for keys it already knows about, so even purely optional
// values need an explicit zero default or CATALOG_* injection for them
// is silently dropped.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.path", "data/courses.json")
	v.SetDefault("store.export_path", "")
	v.SetDefault("tasks.queue_depth", 64)
	v.SetDefault("tasks.workers", 2)
	v.SetDefault("tasks.wait_timeout_seconds", 10)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "course-catalog-bot/0.1")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout_seconds", 60)
	v.SetDefault("openai.context_chars", 6000)
	v.SetDefault("openai.max_retries", 2)
	v.SetDefault("enrich.rate_limit_rpm", 10)
	v.SetDefault("enrich.batch_size", 1)
	v.SetDefault("enrich.cooldown_seconds", 15)
	v.SetDefault("enrich.require_page", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("batch.skip_health_check", false)
	v.SetDefault("batch.clear_output", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path must be set")
	}
	if c.Tasks.QueueDepth <= 0 {
		return fmt.Errorf("tasks.queue_depth must be > 0")
	}
	if c.Tasks.Workers <= 0 {
		return fmt.Errorf("tasks.workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.OpenAI.ContextChars <= 0 {
		return fmt.Errorf("openai.context_chars must be > 0")
	}
	if c.OpenAI.MaxRetries < 0 {
		return fmt.Errorf("openai.max_retries must be >= 0")
	}
	if c.Enrich.RateLimitRPM < 0 {
		return fmt.Errorf("enrich.rate_limit_rpm must be >= 0")
	}
	return nil
}

// TaskWaitTimeout converts the configured wait budget into a duration.
func (c Config) TaskWaitTimeout() time.Duration {
	return time.Duration(c.Tasks.WaitTimeoutSeconds) * time.Second
}

// FetchTimeout is the page-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ModelTimeout is the per-request deadline for model calls.
func (c Config) ModelTimeout() time.Duration {
	return time.Duration(c.OpenAI.TimeoutSeconds) * time.Second
}

// Cooldown is the pause between enrichment batches.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Enrich.CooldownSeconds) * time.Second
}
