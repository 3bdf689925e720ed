// Package retrieve implements the hybrid retriever: parallel fan-out to the
// routed sinks, Reciprocal Rank Fusion of their ranked lists, policy
// enforcement over the fused results, and a TTL result cache.
//
// The retriever degrades rather than fails: a sink that errors or times out
// is recorded in the trace and excluded from fusion. Only invalid input
// produces a Go error.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/sink"
)

// Enforcer applies content policy to fused results. Implementations never
// fail; they return the (possibly reduced or redacted) item set.
type Enforcer interface {
	Enforce(items []rag.ResultItem) []rag.ResultItem
}

// Config carries the retriever's fusion and timeout tunables.
type Config struct {
	// RRFK is the rank-smoothing constant k in weight/(k+rank).
	RRFK int

	// Weights maps sink name to its fusion weight.
	Weights map[string]float64

	// SourceTimeout bounds each individual sink query.
	SourceTimeout time.Duration

	// OverallTimeout bounds the whole search call.
	OverallTimeout time.Duration

	// DefaultTopK is used when the caller passes topK <= 0.
	DefaultTopK int
}

// Retriever fans a query out to the routed sinks and fuses their results.
// Safe for concurrent use.
type Retriever struct {
	sinks  []sink.Sink
	router *Router
	cache  *Cache
	policy Enforcer
	cfg    Config
	logger *slog.Logger
}

// New creates a Retriever over the enabled sinks, in their declaration
// order. cache and policy may be nil to disable those stages.
func New(sinks []sink.Sink, router *Router, cache *Cache, policy Enforcer, cfg Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	return &Retriever{
		sinks:  sinks,
		router: router,
		cache:  cache,
		policy: policy,
		cfg:    cfg,
		logger: logger.With("component", "retrieve"),
	}
}

// Search runs the full hybrid retrieval pipeline for one query.
//
// The returned result always carries a populated trace. The error is non-nil
// only for invalid input; backend failures appear in the trace instead.
func (r *Retriever) Search(ctx context.Context, query string, filters rag.Filters, topK int) (*rag.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", rag.ErrConfiguration)
	}
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}

	trace := rag.RetrievalTrace{
		TraceID:              uuid.NewString(),
		Query:                query,
		Filters:              filters,
		PerSourceLatencyMS:   make(map[string]int64),
		PerSourceResultCount: make(map[string]int),
		PerSourceError:       make(map[string]string),
	}

	var cacheKey string
	useCache := r.cache != nil && !r.cache.Bypass(filters)
	if useCache {
		cacheKey = r.cache.Key(query, filters, topK)
		if items, ok := r.cache.Get(cacheKey); ok {
			trace.CacheHit = true
			trace.FusedResultCount = len(items)
			trace.Coverage = 1
			return &rag.SearchResult{Items: items, Trace: trace}, nil
		}
	}

	active := r.sinks
	if r.router != nil {
		var reason string
		active, reason = r.router.Route(query, filters, r.sinks)
		r.logger.Debug("routed query", "trace_id", trace.TraceID, "reason", reason, "sinks", len(active))
	}
	if len(active) == 0 {
		trace.Error = "no sinks available for this query"
		return &rag.SearchResult{Trace: trace}, nil
	}

	lists, succeeded := r.fanOut(ctx, active, query, filters, topK, &trace)
	trace.Coverage = float64(succeeded) / float64(len(active))

	if succeeded == 0 {
		trace.Error = "all sources failed"
		r.logger.Warn("search failed on all sources",
			"trace_id", trace.TraceID, "errors", trace.PerSourceError)
		return &rag.SearchResult{Trace: trace}, nil
	}

	items := fuse(lists, r.cfg.Weights, r.cfg.RRFK, topK)
	if r.policy != nil {
		items = r.policy.Enforce(items)
	}
	trace.FusedResultCount = len(items)

	if useCache {
		r.cache.Set(cacheKey, items)
	}

	return &rag.SearchResult{Items: items, Trace: trace}, nil
}

// fanOut queries the active sinks concurrently, each under its own source
// timeout inside the overall budget, and returns the successful ranked lists
// in sink declaration order.
func (r *Retriever) fanOut(ctx context.Context, active []sink.Sink, query string, filters rag.Filters, topK int, trace *rag.RetrievalTrace) ([]sourceList, int) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OverallTimeout)
	defer cancel()

	results := make([]sourceList, len(active))
	failed := make([]bool, len(active))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range active {
		g.Go(func() error {
			srcCtx, srcCancel := context.WithTimeout(gctx, r.cfg.SourceTimeout)
			defer srcCancel()

			start := time.Now()
			outcome := s.Search(srcCtx, query, filters, topK)
			latency := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			trace.PerSourceLatencyMS[s.Name()] = latency.Milliseconds()
			if outcome.Err != nil {
				trace.PerSourceError[s.Name()] = outcome.Err.Error()
				failed[i] = true
				return nil // degraded, not fatal
			}
			trace.PerSourceResultCount[s.Name()] = len(outcome.Items)
			results[i] = sourceList{Source: s.Name(), Items: outcome.Items}
			return nil
		})
	}
	_ = g.Wait()

	lists := make([]sourceList, 0, len(active))
	succeeded := 0
	for i := range results {
		if failed[i] {
			continue
		}
		succeeded++
		lists = append(lists, sourceList{Source: active[i].Name(), Items: results[i].Items})
	}
	return lists, succeeded
}
