package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamharvest/streamharvest/internal/config"
	"github.com/streamharvest/streamharvest/internal/database"
	"github.com/streamharvest/streamharvest/internal/ingest"
	"github.com/streamharvest/streamharvest/internal/ledger"
	"github.com/streamharvest/streamharvest/internal/policy"
	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/retrieve"
	"github.com/streamharvest/streamharvest/internal/retry"
	"github.com/streamharvest/streamharvest/internal/sink"
	"github.com/streamharvest/streamharvest/internal/sink/analytics"
	"github.com/streamharvest/streamharvest/internal/sink/keyword"
	"github.com/streamharvest/streamharvest/internal/sink/semantic"
)

// app holds the wired pipeline for one CLI invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool        *pgxpool.Pool
	keywordSink *keyword.Sink
	sinks       []sink.Sink

	orchestrator *ingest.Orchestrator
	retriever    *retrieve.Retriever
	cache        *retrieve.Cache
}

// newApp validates cfg and constructs the enabled sinks, the orchestrator
// and the retriever. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.NeedsPostgres() {
		pool, err := database.Open(ctx, cfg.PostgresConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		a.pool = pool
	}

	// Sinks are built in declaration order; fusion tie-breaking relies on it.
	for _, name := range cfg.EnabledSinks() {
		switch name {
		case config.SinkSemantic:
			g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
			embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
			if embedder == nil {
				a.close()
				return nil, fmt.Errorf("embedder %q not available", cfg.EmbedderModel)
			}
			a.sinks = append(a.sinks, semantic.New(a.pool, embedder, logger))

		case config.SinkKeyword:
			ks, err := keyword.Open(cfg.KeywordIndexPath, logger)
			if err != nil {
				a.close()
				return nil, fmt.Errorf("opening keyword index: %w", err)
			}
			a.keywordSink = ks
			a.sinks = append(a.sinks, ks)

		case config.SinkAnalytics:
			a.sinks = append(a.sinks, analytics.New(a.pool, logger))
		}
	}

	var refs ingest.ReferenceWriter
	if a.pool != nil {
		refs = ledger.New(a.pool, "streamharvest-cli", logger)
	}

	persistTypes := make([]rag.DocType, 0, len(cfg.PersistArtifactType))
	for _, t := range cfg.PersistArtifactType {
		persistTypes = append(persistTypes, rag.DocType(t))
	}

	chunker, err := rag.NewChunker(cfg.MaxTokens, cfg.OverlapTokens)
	if err != nil {
		a.close()
		return nil, err
	}

	a.orchestrator = ingest.New(chunker, a.sinks, refs, ingest.Config{
		SinkTimeout:     cfg.IndexSinkTimeout,
		OverallTimeout:  cfg.IngestOverallTimeout,
		Retry:           retry.Policy{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay},
		RateLimit:       cfg.IndexRateLimit,
		RAGRequired:     cfg.RAGRequired,
		WriteReferences: cfg.WriteReferences,
		PersistTypes:    persistTypes,
	}, logger)

	a.cache = retrieve.NewCache(cfg.CacheTTL, cfg.CacheBypassRecentWindow)

	enforcer := policy.New(
		policy.Mode(cfg.PolicyMode),
		cfg.AllowedChannels,
		parseEntitlementDate(cfg.EntitlementDateFrom),
		logger,
	)

	a.retriever = retrieve.New(a.sinks, retrieve.NewRouter(), a.cache, enforcer, retrieve.Config{
		RRFK: cfg.RRFK,
		Weights: map[string]float64{
			config.SinkSemantic:  cfg.SemanticWeight,
			config.SinkKeyword:   cfg.KeywordWeight,
			config.SinkAnalytics: cfg.AnalyticsWeight,
		},
		SourceTimeout:  cfg.SearchSourceTimeout,
		OverallTimeout: cfg.SearchOverallTimeout,
	}, logger)

	return a, nil
}

func (a *app) close() {
	if a.keywordSink != nil {
		if err := a.keywordSink.Close(); err != nil {
			a.logger.Warn("closing keyword index", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// parseEntitlementDate parses the validated YYYY-MM-DD entitlement bound.
// Empty means unrestricted.
func parseEntitlementDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
