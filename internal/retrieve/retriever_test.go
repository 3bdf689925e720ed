package retrieve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamharvest/streamharvest/internal/log"
	"github.com/streamharvest/streamharvest/internal/policy"
	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/sink"
)

// searchSink is a scriptable Sink for retriever tests.
type searchSink struct {
	name  string
	items []rag.ResultItem
	err   error
	delay time.Duration
	calls int
}

func (s *searchSink) Name() string { return s.name }

func (s *searchSink) Index(context.Context, []rag.Chunk, rag.DocMeta) sink.IndexOutcome {
	return sink.IndexOutcome{Status: rag.SinkStatusIndexed}
}

func (s *searchSink) Search(ctx context.Context, _ string, _ rag.Filters, _ int) sink.SearchOutcome {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return sink.SearchError(sink.Transient(ctx.Err()), s.delay)
		}
	}
	if s.err != nil {
		return sink.SearchError(s.err, 0)
	}
	return sink.SearchOutcome{Items: s.items}
}

func retrieverConfig() Config {
	return Config{
		RRFK:           60,
		Weights:        map[string]float64{"semantic": 0.6, "keyword": 0.4, "analytics": 0.2},
		SourceTimeout:  200 * time.Millisecond,
		OverallTimeout: time.Second,
		DefaultTopK:    10,
	}
}

func newTestRetriever(sinks []sink.Sink, cache *Cache, policy Enforcer) *Retriever {
	return New(sinks, nil, cache, policy, retrieverConfig(), log.NewNop())
}

func TestSearchFusesAcrossSinks(t *testing.T) {
	semantic := &searchSink{name: "semantic", items: []rag.ResultItem{item("a", "d1"), item("b", "d2")}}
	keyword := &searchSink{name: "keyword", items: []rag.ResultItem{item("b", "d2"), item("c", "d3")}}
	r := newTestRetriever([]sink.Sink{semantic, keyword}, nil, nil)

	res, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(res.Items))
	}
	if res.Items[0].ContentHash != "b" {
		t.Errorf("top item = %s, want b (both sources)", res.Items[0].ContentHash)
	}
	if res.Trace.Coverage != 1 {
		t.Errorf("coverage = %v, want 1", res.Trace.Coverage)
	}
	if res.Trace.PerSourceResultCount["semantic"] != 2 {
		t.Errorf("semantic count = %d", res.Trace.PerSourceResultCount["semantic"])
	}
	if res.Trace.TraceID == "" {
		t.Error("missing trace id")
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	r := newTestRetriever(nil, nil, nil)
	if _, err := r.Search(context.Background(), "", rag.Filters{}, 10); !errors.Is(err, rag.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestSearchDegradedMode(t *testing.T) {
	good := &searchSink{name: "keyword", items: []rag.ResultItem{item("a", "d1")}}
	bad := &searchSink{name: "semantic", err: sink.Transient(errors.New("embedder down"))}
	r := newTestRetriever([]sink.Sink{bad, good}, nil, nil)

	res, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v (degraded mode must not error)", err)
	}
	if len(res.Items) != 1 || res.Items[0].ContentHash != "a" {
		t.Errorf("items = %+v, want the keyword hit", res.Items)
	}
	if res.Trace.Coverage != 0.5 {
		t.Errorf("coverage = %v, want 0.5", res.Trace.Coverage)
	}
	if res.Trace.PerSourceError["semantic"] == "" {
		t.Error("expected the semantic failure in the trace")
	}
}

func TestSearchAllSourcesFail(t *testing.T) {
	a := &searchSink{name: "semantic", err: sink.Transient(errors.New("down"))}
	b := &searchSink{name: "keyword", err: sink.Permanent(errors.New("corrupt index"))}
	r := newTestRetriever([]sink.Sink{a, b}, nil, nil)

	res, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v (all-fail must still not error)", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("items = %+v, want none", res.Items)
	}
	if res.Trace.Error == "" {
		t.Error("expected a trace-level error")
	}
	if res.Trace.Coverage != 0 {
		t.Errorf("coverage = %v, want 0", res.Trace.Coverage)
	}
}

func TestSearchSlowSinkTimesOutWithinBudget(t *testing.T) {
	slow := &searchSink{name: "semantic", delay: 5 * time.Second}
	fast := &searchSink{name: "keyword", items: []rag.ResultItem{item("a", "d1")}}
	r := newTestRetriever([]sink.Sink{slow, fast}, nil, nil)

	start := time.Now()
	res, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("Search took %v, slow sink exceeded the source timeout", elapsed)
	}
	if len(res.Items) != 1 {
		t.Errorf("items = %+v, want the fast sink's hit", res.Items)
	}
	if res.Trace.PerSourceError["semantic"] == "" {
		t.Error("expected a timeout error for the slow sink in the trace")
	}
}

func TestSearchCacheHitSkipsSinks(t *testing.T) {
	s := &searchSink{name: "keyword", items: []rag.ResultItem{item("a", "d1")}}
	cache := NewCache(time.Minute, 24*time.Hour)
	r := newTestRetriever([]sink.Sink{s}, cache, nil)

	first, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if first.Trace.CacheHit {
		t.Error("first call must be a miss")
	}

	second, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !second.Trace.CacheHit {
		t.Error("second call must be a hit")
	}
	if s.calls != 1 {
		t.Errorf("sink called %d times, want 1", s.calls)
	}
	if len(second.Items) != len(first.Items) || second.Items[0].ContentHash != first.Items[0].ContentHash {
		t.Error("cached items differ from the original results")
	}
}

func TestSearchFailedCallIsNotCached(t *testing.T) {
	s := &searchSink{name: "keyword", err: sink.Transient(errors.New("down"))}
	cache := NewCache(time.Minute, 24*time.Hour)
	r := newTestRetriever([]sink.Sink{s}, cache, nil)

	if _, err := r.Search(context.Background(), "growth", rag.Filters{}, 10); err != nil {
		t.Fatalf("Search: %v", err)
	}

	s.err = nil
	s.items = []rag.ResultItem{item("a", "d1")}
	res, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Trace.CacheHit {
		t.Error("empty failed result must not have been cached")
	}
	if len(res.Items) != 1 {
		t.Errorf("items = %+v", res.Items)
	}
}

func TestSearchAuthorizationDropsBlockedChannels(t *testing.T) {
	published := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	allowed := item("a", "d1")
	allowed.ChannelID = "ch-allowed"
	allowed.PublishedAt = &published
	blocked := item("b", "d2")
	blocked.ChannelID = "ch-blocked"
	blocked.PublishedAt = &published

	s := &searchSink{name: "keyword", items: []rag.ResultItem{allowed, blocked}}
	enforcer := policy.New(policy.ModeFilter, []string{"ch-allowed"}, time.Time{}, log.NewNop())
	r := newTestRetriever([]sink.Sink{s}, nil, enforcer)

	res, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("items = %d, want 1 after authorization", len(res.Items))
	}
	if res.Items[0].ContentHash != "a" {
		t.Errorf("surviving item = %s, want the allowed channel's", res.Items[0].ContentHash)
	}
	if res.Items[0].ChannelID != "ch-allowed" {
		t.Errorf("channel_id after fusion = %q, want ch-allowed", res.Items[0].ChannelID)
	}
}

func TestSearchEntitlementWindowEndToEnd(t *testing.T) {
	entitledFrom := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	before := entitledFrom.AddDate(0, -2, 0)
	after := entitledFrom.AddDate(0, 2, 0)

	old := item("old", "d1")
	old.PublishedAt = &before
	recent := item("new", "d2")
	recent.PublishedAt = &after

	s := &searchSink{name: "keyword", items: []rag.ResultItem{old, recent}}
	enforcer := policy.New(policy.ModeAuditOnly, nil, entitledFrom, log.NewNop())
	r := newTestRetriever([]sink.Sink{s}, nil, enforcer)

	res, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ContentHash != "new" {
		t.Errorf("items = %+v, want only content inside the entitlement window", res.Items)
	}
}

// dropAll is an Enforcer that removes everything, for wiring verification.
type dropAll struct{}

func (dropAll) Enforce([]rag.ResultItem) []rag.ResultItem { return nil }

func TestSearchAppliesPolicy(t *testing.T) {
	s := &searchSink{name: "keyword", items: []rag.ResultItem{item("a", "d1")}}
	r := newTestRetriever([]sink.Sink{s}, nil, dropAll{})

	res, err := r.Search(context.Background(), "growth", rag.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("items = %+v, want none after policy", res.Items)
	}
	if res.Trace.FusedResultCount != 0 {
		t.Errorf("fused count = %d, want 0 post-policy", res.Trace.FusedResultCount)
	}
}
