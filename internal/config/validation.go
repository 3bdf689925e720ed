package config

import (
	"fmt"
	"os"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. At least one sink must be enabled.
	if !c.SemanticEnabled && !c.KeywordEnabled && !c.AnalyticsEnabled {
		return fmt.Errorf("%w: enable at least one of semantic, keyword, analytics", ErrNoSinksEnabled)
	}

	// 2. Semantic sink needs an embedder and its API key.
	if c.SemanticEnabled {
		if c.EmbedderModel == "" {
			return fmt.Errorf("%w: embedder_model cannot be empty with semantic sink enabled", ErrMissingAPIKey)
		}
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for the semantic sink",
				ErrMissingAPIKey)
		}
	}

	// 3. PostgreSQL settings, required by semantic/analytics sinks and the ledger.
	if c.NeedsPostgres() {
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
		}
		if c.PostgresPassword == "" {
			return fmt.Errorf("%w: password must be set (STREAMHARVEST_POSTGRES_PASSWORD)", ErrInvalidPostgres)
		}
	}

	// 4. Keyword index path.
	if c.KeywordEnabled && c.KeywordIndexPath == "" {
		return fmt.Errorf("%w: keyword_index_path cannot be empty with keyword sink enabled", ErrInvalidKeywordIndex)
	}

	// 5. Chunking: overlap must be strictly less than the token budget.
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidChunking, c.MaxTokens)
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.MaxTokens {
		return fmt.Errorf("%w: overlap_tokens must be in [0, max_tokens), got %d with max_tokens %d",
			ErrInvalidChunking, c.OverlapTokens, c.MaxTokens)
	}

	// 6. RRF weights: non-negative, and at least one enabled sink must carry
	// a positive weight so fused scores are meaningful.
	if c.RRFK <= 0 {
		return fmt.Errorf("%w: rrf_k must be positive, got %d", ErrInvalidWeights, c.RRFK)
	}
	if c.SemanticWeight < 0 || c.KeywordWeight < 0 || c.AnalyticsWeight < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidWeights)
	}
	var positive bool
	for _, name := range c.EnabledSinks() {
		if c.SinkWeight(name) > 0 {
			positive = true
			break
		}
	}
	if !positive {
		return fmt.Errorf("%w: at least one enabled sink needs a positive weight", ErrInvalidWeights)
	}

	// 7. Timeout budgets.
	if c.SearchSourceTimeout <= 0 || c.SearchOverallTimeout <= 0 ||
		c.IndexSinkTimeout <= 0 || c.IngestOverallTimeout <= 0 {
		return fmt.Errorf("%w: all timeouts must be positive", ErrInvalidTimeouts)
	}
	if c.SearchSourceTimeout > c.SearchOverallTimeout {
		return fmt.Errorf("%w: search_source_timeout (%s) exceeds search_overall_timeout (%s)",
			ErrInvalidTimeouts, c.SearchSourceTimeout, c.SearchOverallTimeout)
	}
	if c.IndexSinkTimeout > c.IngestOverallTimeout {
		return fmt.Errorf("%w: index_sink_timeout (%s) exceeds ingest_overall_timeout (%s)",
			ErrInvalidTimeouts, c.IndexSinkTimeout, c.IngestOverallTimeout)
	}

	// 8. Cache.
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl must be positive, got %s", ErrInvalidCache, c.CacheTTL)
	}
	if c.CacheBypassRecentWindow < 0 {
		return fmt.Errorf("%w: cache_bypass_recent_window must be non-negative", ErrInvalidCache)
	}

	// 9. Retry policy.
	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 10 {
		return fmt.Errorf("%w: retry_max_attempts must be between 1 and 10, got %d",
			ErrInvalidRetry, c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("%w: retry_base_delay must be positive", ErrInvalidRetry)
	}
	if c.IndexRateLimit < 0 {
		return fmt.Errorf("%w: index_rate_limit must be non-negative", ErrInvalidRetry)
	}

	// 10. Policy mode.
	switch c.PolicyMode {
	case PolicyModeFilter, PolicyModeRedact, PolicyModeAuditOnly:
	default:
		return fmt.Errorf("%w: %q, must be one of: filter, redact, audit_only",
			ErrInvalidPolicyMode, c.PolicyMode)
	}
	if c.EntitlementDateFrom != "" {
		if _, err := time.Parse("2006-01-02", c.EntitlementDateFrom); err != nil {
			return fmt.Errorf("%w: entitlement_date_from must be YYYY-MM-DD: %v",
				ErrInvalidPolicyMode, err)
		}
	}

	return nil
}
