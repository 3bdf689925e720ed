package retrieve

import (
	"strings"

	"github.com/streamharvest/streamharvest/internal/config"
	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/sink"
)

// Router picks which of the enabled sinks a query should hit, based on the
// shape of the query and its filters. Routing only ever narrows the set; it
// never adds a sink that is not enabled.
type Router struct{}

// NewRouter creates a Router.
func NewRouter() *Router { return &Router{} }

// conceptualMarkers suggest an open-ended question best served by semantic
// similarity alone.
var conceptualMarkers = []string{
	"how ", "why ", "what is", "what are", "explain", "compare",
	"similar to", "overview of", "themes", "strategy for", "ideas for",
}

// factualMarkers suggest a lookup of specific recorded facts where lexical
// match and structured filters beat embeddings.
var factualMarkers = []string{
	"when did", "which video", "exact", "list ", "how many",
	"titled", "called", "published",
}

// Route returns the subset of enabled sinks to query, plus a short reason
// recorded in the trace.
func (r *Router) Route(query string, filters rag.Filters, enabled []sink.Sink) ([]sink.Sink, string) {
	q := strings.ToLower(strings.TrimSpace(query))

	strongFilters := filters.HasDateRange() &&
		(filters.ChannelID != "" || filters.VideoID != "")

	switch {
	case strongFilters:
		if narrowed := pick(enabled, config.SinkKeyword, config.SinkAnalytics); len(narrowed) > 0 {
			return narrowed, "strong filters: keyword+analytics"
		}
	case !filters.IsZero() && matchesAny(q, factualMarkers):
		if narrowed := pick(enabled, config.SinkKeyword, config.SinkAnalytics); len(narrowed) > 0 {
			return narrowed, "factual query with filters: keyword+analytics"
		}
	case filters.IsZero() && matchesAny(q, conceptualMarkers):
		if narrowed := pick(enabled, config.SinkSemantic); len(narrowed) > 0 {
			return narrowed, "conceptual query: semantic only"
		}
	}

	return enabled, "default: all enabled sinks"
}

func matchesAny(q string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(q, m) {
			return true
		}
	}
	return false
}

// pick filters enabled down to the named sinks, preserving order.
func pick(enabled []sink.Sink, names ...string) []sink.Sink {
	var out []sink.Sink
	for _, s := range enabled {
		for _, n := range names {
			if s.Name() == n {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
