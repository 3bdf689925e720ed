// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override; the only place for credentials)
//  2. Config file (~/.streamharvest/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Sinks: per-sink enable flags and connection parameters
//   - Chunking: token budget and overlap
//   - Retrieval: RRF weights, timeout budgets, cache TTL and bypass window
//   - Ingestion: retry policy, rate limits, feature flags
//
// Validation is fail-fast: Load returns sentinel errors checkable with
// errors.Is(). Sensitive values (the Postgres password) are never logged.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sink names used in configuration, per-sink statuses, and RRF weights.
const (
	SinkSemantic  = "semantic"
	SinkKeyword   = "keyword"
	SinkAnalytics = "analytics"
)

// Policy modes for the result enforcer.
const (
	PolicyModeFilter    = "filter"
	PolicyModeRedact    = "redact"
	PolicyModeAuditOnly = "audit_only"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidChunking indicates invalid chunking parameters.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidWeights indicates invalid RRF weight configuration.
	ErrInvalidWeights = errors.New("invalid RRF weights")

	// ErrInvalidTimeouts indicates invalid timeout budgets.
	ErrInvalidTimeouts = errors.New("invalid timeout configuration")

	// ErrInvalidRetry indicates invalid retry policy settings.
	ErrInvalidRetry = errors.New("invalid retry configuration")

	// ErrNoSinksEnabled indicates that every sink is disabled.
	ErrNoSinksEnabled = errors.New("no sinks enabled")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidPostgres indicates invalid PostgreSQL connection settings.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidKeywordIndex indicates an invalid keyword index path.
	ErrInvalidKeywordIndex = errors.New("invalid keyword index path")

	// ErrInvalidPolicyMode indicates an unknown policy mode.
	ErrInvalidPolicyMode = errors.New("invalid policy mode")

	// ErrInvalidCache indicates invalid cache settings.
	ErrInvalidCache = errors.New("invalid cache configuration")
)

// DefaultGeminiEmbedderModel is the default embedder backing the semantic sink.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// Config stores the full RAG core configuration.
// SECURITY: the Postgres password is sensitive; never log this struct whole.
type Config struct {
	// Sink enable flags
	SemanticEnabled  bool `mapstructure:"semantic_enabled"`
	KeywordEnabled   bool `mapstructure:"keyword_enabled"`
	AnalyticsEnabled bool `mapstructure:"analytics_enabled"`

	// Embedder configuration (semantic sink)
	EmbedderModel string `mapstructure:"embedder_model"`

	// PostgreSQL connection (semantic + analytics sinks, reference ledger)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Keyword sink (SQLite FTS5) index location
	KeywordIndexPath string `mapstructure:"keyword_index_path"`

	// Chunking
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`

	// RRF fusion
	RRFK            int     `mapstructure:"rrf_k"`
	SemanticWeight  float64 `mapstructure:"semantic_weight"`
	KeywordWeight   float64 `mapstructure:"keyword_weight"`
	AnalyticsWeight float64 `mapstructure:"analytics_weight"`

	// Timeout budgets
	SearchSourceTimeout  time.Duration `mapstructure:"search_source_timeout"`
	SearchOverallTimeout time.Duration `mapstructure:"search_overall_timeout"`
	IndexSinkTimeout     time.Duration `mapstructure:"index_sink_timeout"`
	IngestOverallTimeout time.Duration `mapstructure:"ingest_overall_timeout"`

	// Cache
	CacheTTL                time.Duration `mapstructure:"cache_ttl"`
	CacheBypassRecentWindow time.Duration `mapstructure:"cache_bypass_recent_window"`

	// Ingestion retry policy (transient sink errors only)
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`

	// Per-sink index rate limit, requests per second. 0 disables limiting.
	IndexRateLimit float64 `mapstructure:"index_rate_limit"`

	// Feature flags
	RAGRequired         bool     `mapstructure:"rag_required"`
	WriteReferences     bool     `mapstructure:"write_references"`
	PersistArtifactType []string `mapstructure:"persist_artifact_types"`

	// Policy enforcement
	PolicyMode          string   `mapstructure:"policy_mode"`
	AllowedChannels     []string `mapstructure:"allowed_channels"`
	EntitlementDateFrom string   `mapstructure:"entitlement_date_from"` // RFC 3339 date, empty = unrestricted
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".streamharvest")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has the highest priority for PostgreSQL settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Sinks: all enabled by default
	v.SetDefault("semantic_enabled", true)
	v.SetDefault("keyword_enabled", true)
	v.SetDefault("analytics_enabled", true)

	// Embedder
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// PostgreSQL, aimed at a local development database
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "streamharvest")
	v.SetDefault("postgres_password", "streamharvest_dev_password")
	v.SetDefault("postgres_db_name", "streamharvest")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Keyword index
	v.SetDefault("keyword_index_path", filepath.Join("data", "keyword.db"))

	// Chunking
	v.SetDefault("max_tokens", 1000)
	v.SetDefault("overlap_tokens", 100)

	// RRF fusion
	v.SetDefault("rrf_k", 60)
	v.SetDefault("semantic_weight", 0.6)
	v.SetDefault("keyword_weight", 0.4)
	v.SetDefault("analytics_weight", 0.2)

	// Timeout budgets
	v.SetDefault("search_source_timeout", 500*time.Millisecond)
	v.SetDefault("search_overall_timeout", 2*time.Second)
	v.SetDefault("index_sink_timeout", 10*time.Second)
	v.SetDefault("ingest_overall_timeout", 30*time.Second)

	// Cache
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("cache_bypass_recent_window", 24*time.Hour)

	// Retry
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay", 200*time.Millisecond)

	// Rate limiting
	v.SetDefault("index_rate_limit", 10.0)

	// Feature flags
	v.SetDefault("rag_required", false)
	v.SetDefault("write_references", false)
	v.SetDefault("persist_artifact_types", []string{"strategy_artifact"})

	// Policy
	v.SetDefault("policy_mode", PolicyModeRedact)
	v.SetDefault("allowed_channels", []string{})
	v.SetDefault("entitlement_date_from", "")
}

// bindEnvVariables binds sensitive environment variables explicitly.
// Credentials are supplied only through the environment, never as call
// parameters or config-file defaults in production.
func bindEnvVariables(v *viper.Viper) {
	bindings := map[string]string{
		"postgres_password": "STREAMHARVEST_POSTGRES_PASSWORD",
		"postgres_host":     "STREAMHARVEST_POSTGRES_HOST",
		"postgres_user":     "STREAMHARVEST_POSTGRES_USER",
		"embedder_model":    "STREAMHARVEST_EMBEDDER_MODEL",
	}

	for key, envVar := range bindings {
		if err := v.BindEnv(key, envVar); err != nil {
			// BindEnv only errors on an empty key, which cannot happen here.
			slog.Warn("failed to bind environment variable", "key", key, "env", envVar)
		}
	}
}

// EnabledSinks returns the names of enabled sinks in declaration order
// (semantic, keyword, analytics). The order is the deterministic tie-break
// order used by fusion.
func (c *Config) EnabledSinks() []string {
	var names []string
	if c.SemanticEnabled {
		names = append(names, SinkSemantic)
	}
	if c.KeywordEnabled {
		names = append(names, SinkKeyword)
	}
	if c.AnalyticsEnabled {
		names = append(names, SinkAnalytics)
	}
	return names
}

// SinkWeight returns the configured RRF weight for a sink name.
// Unknown names weigh zero.
func (c *Config) SinkWeight(name string) float64 {
	switch name {
	case SinkSemantic:
		return c.SemanticWeight
	case SinkKeyword:
		return c.KeywordWeight
	case SinkAnalytics:
		return c.AnalyticsWeight
	}
	return 0
}

// NeedsPostgres reports whether any enabled component requires a PostgreSQL
// connection.
func (c *Config) NeedsPostgres() bool {
	return c.SemanticEnabled || c.AnalyticsEnabled || c.WriteReferences
}
