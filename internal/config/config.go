// Package config provides configuration loading for refundmatch.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (REFUNDMATCH_HISTORY_BACKEND, REFUNDMATCH_SERVER_PORT, ...)
//  2. YAML config file (~/.config/refundmatch/config.yaml)
//  3. Hardcoded defaults
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete refundmatch configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	History    HistoryConfig    `koanf:"history"`
	Matcher    MatcherConfig    `koanf:"matcher"`
	Legal      LegalConfig      `koanf:"legal"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// HistoryConfig selects the historical store backend.
type HistoryConfig struct {
	Backend     string `koanf:"backend"` // memory, bolt, postgres
	BoltPath    string `koanf:"bolt_path"`
	PostgresDSN Secret `koanf:"postgres_dsn"`
	Migrate     bool   `koanf:"migrate"`
}

// MatcherConfig holds overlap thresholds for the vendor and pattern matchers.
type MatcherConfig struct {
	VendorMinOverlap      int     `koanf:"vendor_min_overlap"`
	PatternMinOverlap     int     `koanf:"pattern_min_overlap"`
	HighConfidenceRate    float64 `koanf:"high_confidence_rate"`
	HighConfidenceSamples int     `koanf:"high_confidence_samples"`
}

// LegalConfig configures the statute passage corpus.
type LegalConfig struct {
	Enabled          bool   `koanf:"enabled"`
	Path             string `koanf:"path"`
	Collection       string `koanf:"collection"`
	TopK             int    `koanf:"top_k"`
	EmbeddingBaseURL string `koanf:"embedding_base_url"`
	EmbeddingModel   string `koanf:"embedding_model"`
	EmbeddingAPIKey  Secret `koanf:"embedding_api_key"`
}

// ClassifierConfig configures the LLM eligibility classifier.
type ClassifierConfig struct {
	Enabled           bool     `koanf:"enabled"`
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Timeout           Duration `koanf:"timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig configures OpenTelemetry export. Disabled by default.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"` // grpc, http/protobuf
	Insecure        bool     `koanf:"insecure"`
	SampleRate      float64  `koanf:"sample_rate"`
	MetricsEnabled  bool     `koanf:"metrics_enabled"`
	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = "bolt"
	}
	if cfg.History.BoltPath == "" {
		cfg.History.BoltPath = "~/.config/refundmatch/history.db"
	}

	if cfg.Matcher.VendorMinOverlap == 0 {
		cfg.Matcher.VendorMinOverlap = 1
	}
	if cfg.Matcher.PatternMinOverlap == 0 {
		cfg.Matcher.PatternMinOverlap = 2
	}
	if cfg.Matcher.HighConfidenceRate == 0 {
		cfg.Matcher.HighConfidenceRate = 0.80
	}
	if cfg.Matcher.HighConfidenceSamples == 0 {
		cfg.Matcher.HighConfidenceSamples = 10
	}

	if cfg.Legal.Path == "" {
		cfg.Legal.Path = "~/.config/refundmatch/legal"
	}
	if cfg.Legal.Collection == "" {
		cfg.Legal.Collection = "wa_use_tax"
	}
	if cfg.Legal.TopK == 0 {
		cfg.Legal.TopK = 5
	}
	if cfg.Legal.EmbeddingBaseURL == "" {
		cfg.Legal.EmbeddingBaseURL = "http://localhost:8080/v1"
	}
	if cfg.Legal.EmbeddingModel == "" {
		cfg.Legal.EmbeddingModel = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Classifier.BaseURL == "" {
		cfg.Classifier.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gpt-4o-mini"
	}
	if cfg.Classifier.RequestsPerSecond == 0 {
		cfg.Classifier.RequestsPerSecond = 2
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = Duration(60 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.History.Backend {
	case "memory", "bolt":
	case "postgres":
		if !c.History.PostgresDSN.IsSet() {
			return errors.New("history.postgres_dsn required for postgres backend")
		}
	default:
		return fmt.Errorf("invalid history backend %q (must be memory, bolt or postgres)", c.History.Backend)
	}

	if c.Matcher.VendorMinOverlap < 1 {
		return fmt.Errorf("matcher.vendor_min_overlap must be >= 1, got %d", c.Matcher.VendorMinOverlap)
	}
	if c.Matcher.PatternMinOverlap < 1 {
		return fmt.Errorf("matcher.pattern_min_overlap must be >= 1, got %d", c.Matcher.PatternMinOverlap)
	}
	if c.Matcher.HighConfidenceRate < 0 || c.Matcher.HighConfidenceRate > 1 {
		return fmt.Errorf("matcher.high_confidence_rate must be between 0 and 1, got %v", c.Matcher.HighConfidenceRate)
	}

	if c.Legal.Enabled && c.Legal.TopK < 1 {
		return fmt.Errorf("legal.top_k must be >= 1, got %d", c.Legal.TopK)
	}
	if c.Classifier.Enabled && c.Classifier.RequestsPerSecond <= 0 {
		return errors.New("classifier.requests_per_second must be positive")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
		return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
	}

	return nil
}
