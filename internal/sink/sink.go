// Package sink defines the uniform capability interface the three retrieval
// backends implement, and the structured outcomes they return.
//
// Adapters never let an error escape their boundary: every failure, including
// timeouts, is converted into an outcome with StatusError and a message. This
// is what makes the degraded-mode contract of the retriever possible, since
// one slow or broken backend can be dropped from fusion without special-casing.
package sink

import (
	"context"
	"time"

	"github.com/streamharvest/streamharvest/internal/rag"
)

// Sink is the uniform adapter interface for a retrieval backend.
//
// Implementations must be safe for concurrent use: adapters are stateless per
// call aside from a long-lived client/connection object.
type Sink interface {
	// Name returns the stable sink name used in statuses, weights and traces.
	Name() string

	// Index writes chunks to the backend. Idempotent: re-indexing an
	// already-present content hash must not create duplicates.
	Index(ctx context.Context, chunks []rag.Chunk, meta rag.DocMeta) IndexOutcome

	// Search queries the backend. The context carries the per-source
	// timeout; on expiry the adapter returns an error outcome rather than
	// blocking.
	Search(ctx context.Context, query string, filters rag.Filters, topK int) SearchOutcome
}

// IndexOutcome is the structured result of an Index call.
type IndexOutcome struct {
	Status  rag.SinkStatus
	Indexed int           // chunks written
	Skipped int           // chunks already present (dedup hits)
	Latency time.Duration
	Err     error // classified; nil unless Status is error
}

// SearchOutcome is the structured result of a Search call.
type SearchOutcome struct {
	Items   []rag.ResultItem // ranked best-first; Sources/RankPerSource unset (fusion fills them)
	Latency time.Duration
	Err     error // classified; nil on success
}

// IndexError builds an error outcome for an index call.
func IndexError(err error, latency time.Duration) IndexOutcome {
	return IndexOutcome{Status: rag.SinkStatusError, Latency: latency, Err: err}
}

// SearchError builds an error outcome for a search call.
func SearchError(err error, latency time.Duration) SearchOutcome {
	return SearchOutcome{Err: err, Latency: latency}
}
