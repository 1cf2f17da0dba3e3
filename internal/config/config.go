// Package config provides configuration management for the paper analysis service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the paper analysis service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains Gemini client settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Search contains literature search settings.
	Search SearchConfig `mapstructure:"search"`
	// ArXiv contains arXiv API client settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// Retry contains the pipeline retry policy settings.
	Retry RetryConfig `mapstructure:"retry"`
	// Pipeline contains orchestration settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response. SSE
	// streams need this comfortably above the stream lifetime.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is the keep-alive idle connection timeout.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxUploadBytes caps the size of an uploaded document.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log output format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log entries.
	AddSource bool `mapstructure:"add_source"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	Enabled bool `mapstructure:"enabled"`
	// Path is the metrics endpoint path (default: /metrics).
	Path string `mapstructure:"path"`
	// Namespace is the metric name prefix (default: paper_analysis).
	Namespace string `mapstructure:"namespace"`
}

// LLMConfig holds Gemini client configuration.
type LLMConfig struct {
	// APIKey is the Gemini API key. Loaded exclusively from the
	// PAPERLENS_GEMINI_API_KEY environment variable.
	APIKey string `mapstructure:"-"`
	// Model is the Gemini model identifier (default: gemini-2.5-flash).
	Model string `mapstructure:"model"`
	// BaseURL overrides the Gemini API endpoint. Used in tests.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SearchConfig holds literature search configuration.
type SearchConfig struct {
	// QueryCount is how many candidate queries to generate.
	QueryCount int `mapstructure:"query_count"`
	// ActiveQueries is how many of the generated queries are executed.
	ActiveQueries int `mapstructure:"active_queries"`
	// FallbackQueries is how many queries are also sent to fallback sources.
	FallbackQueries int `mapstructure:"fallback_queries"`
	// InterQueryPause is the wait between consecutive grounded queries.
	InterQueryPause time.Duration `mapstructure:"inter_query_pause"`
	// ContextChars caps the document text included in query generation.
	ContextChars int `mapstructure:"context_chars"`
}

// ArXivConfig holds arXiv API client configuration.
type ArXivConfig struct {
	// Enabled controls whether arXiv is used as a fallback source.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the arXiv API endpoint.
	BaseURL string `mapstructure:"base_url"`
	// MaxResults caps results per query.
	MaxResults int `mapstructure:"max_results"`
	// RateLimit is the sustained request rate in requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
}

// RetryConfig holds the pipeline retry policy configuration.
type RetryConfig struct {
	// Attempts is the number of retries after the first attempt.
	Attempts int `mapstructure:"attempts"`
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	// MaxElapsed caps the total time spent retrying one operation.
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

// PipelineConfig holds orchestration configuration.
type PipelineConfig struct {
	// SearchStagger is how long the search task waits after analysis starts.
	SearchStagger time.Duration `mapstructure:"search_stagger"`
}

// Load reads configuration from defaults, an optional config file, and
// environment variables prefixed with PAPERLENS.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PAPERLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-analysis-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.APIKey = os.Getenv("PAPERLENS_GEMINI_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "35m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_upload_bytes", 20<<20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "paper_analysis")

	// LLM defaults
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "90s")

	// Search defaults
	v.SetDefault("search.query_count", 6)
	v.SetDefault("search.active_queries", 3)
	v.SetDefault("search.fallback_queries", 2)
	v.SetDefault("search.inter_query_pause", "1500ms")
	v.SetDefault("search.context_chars", 5000)

	// ArXiv defaults
	v.SetDefault("arxiv.enabled", true)
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("arxiv.max_results", 5)
	v.SetDefault("arxiv.rate_limit", 0.34)

	// Retry defaults
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.initial_delay", "2s")
	v.SetDefault("retry.max_elapsed", "2m")

	// Pipeline defaults
	v.SetDefault("pipeline.search_stagger", "2s")
}

// Validate checks the configuration for internal consistency. The API
// key is deliberately not required here so the binary can start without
// one in development; main warns about degraded mode instead.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Search.QueryCount <= 0 {
		return fmt.Errorf("search query_count must be positive")
	}
	if c.Search.ActiveQueries <= 0 || c.Search.ActiveQueries > c.Search.QueryCount {
		return fmt.Errorf("search active_queries (%d) must be between 1 and query_count (%d)",
			c.Search.ActiveQueries, c.Search.QueryCount)
	}
	if c.Search.FallbackQueries < 0 || c.Search.FallbackQueries > c.Search.ActiveQueries {
		return fmt.Errorf("search fallback_queries (%d) must be between 0 and active_queries (%d)",
			c.Search.FallbackQueries, c.Search.ActiveQueries)
	}

	if c.Retry.Attempts < 0 {
		return fmt.Errorf("retry attempts must not be negative")
	}
	if c.ArXiv.Enabled && c.ArXiv.RateLimit <= 0 {
		return fmt.Errorf("arxiv rate_limit must be positive")
	}

	return nil
}
