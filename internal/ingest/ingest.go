// Package ingest implements the ingestion orchestrator: it chunks and hashes
// a document, fans the chunk set out to every enabled sink in parallel, and
// aggregates per-sink outcomes into a single IngestionResult.
//
// Sink failures never surface as raw errors. Each sink gets an independent
// retry budget for transient failures, and one sink's slowness or failure
// cannot block or fail the others. Whether a degraded ingestion is an error
// for the caller is decided by the rag_required flag alone.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/retry"
	"github.com/streamharvest/streamharvest/internal/sink"
)

// ReferenceWriter is the best-effort ledger dependency. Implementations
// always return; false means the write did not land.
type ReferenceWriter interface {
	Upsert(ctx context.Context, ref rag.RAGReference) bool
}

// Config carries the orchestrator's tunables, injected at construction.
type Config struct {
	// SinkTimeout bounds each individual index attempt.
	SinkTimeout time.Duration

	// OverallTimeout bounds the whole fan-out including retries.
	OverallTimeout time.Duration

	// Retry is the shared backoff policy for transient sink errors.
	Retry retry.Policy

	// RateLimit is the per-sink index rate in requests per second.
	// Zero disables limiting.
	RateLimit float64

	// RAGRequired, when set, turns an all-sinks-failed ingestion into an
	// error returned to the caller. Default false: log and continue.
	RAGRequired bool

	// WriteReferences enables the best-effort ledger write for every
	// document.
	WriteReferences bool

	// PersistTypes lists document types whose references are written even
	// when WriteReferences is off.
	PersistTypes []rag.DocType
}

// Orchestrator fans documents out to the configured sinks.
// Safe for concurrent use.
type Orchestrator struct {
	chunker  *rag.Chunker
	sinks    []sink.Sink
	refs     ReferenceWriter
	cfg      Config
	limiters map[string]*rate.Limiter
	logger   *slog.Logger
}

// New creates an Orchestrator. refs may be nil when reference writing is
// disabled entirely.
func New(chunker *rag.Chunker, sinks []sink.Sink, refs ReferenceWriter, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	limiters := make(map[string]*rate.Limiter, len(sinks))
	if cfg.RateLimit > 0 {
		for _, s := range sinks {
			limiters[s.Name()] = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
		}
	}

	return &Orchestrator{
		chunker:  chunker,
		sinks:    sinks,
		refs:     refs,
		cfg:      cfg,
		limiters: limiters,
		logger:   logger.With("component", "ingest"),
	}
}

// Ingest chunks, hashes and indexes one document across all sinks.
//
// The returned result is always populated. The error is non-nil only for
// invalid input, or when every sink failed and RAGRequired is set.
func (o *Orchestrator) Ingest(ctx context.Context, doc rag.Document) (*rag.IngestionResult, error) {
	start := time.Now()

	if doc.ID == "" {
		return nil, fmt.Errorf("%w: document id is required", rag.ErrConfiguration)
	}
	if !rag.ValidDocType(doc.Type) {
		return nil, fmt.Errorf("%w: unknown doc_type %q", rag.ErrConfiguration, doc.Type)
	}

	chunks := o.buildChunks(doc)
	hashes := make([]string, len(chunks))
	totalTokens := 0
	for i, c := range chunks {
		hashes[i] = c.ContentSHA256
		totalTokens += c.TokenCount
	}

	result := &rag.IngestionResult{
		DocID:         doc.ID,
		ChunkCount:    len(chunks),
		TotalTokens:   totalTokens,
		ContentHashes: hashes,
		PerSinkStatus: make(map[string]rag.SinkStatus, len(o.sinks)),
		SinkErrors:    make(map[string]string),
	}

	if len(chunks) == 0 {
		// Nothing to index; an empty document is not an error.
		for _, s := range o.sinks {
			result.PerSinkStatus[s.Name()] = rag.SinkStatusSkipped
		}
		result.OverallStatus = rag.OverallSuccess
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	meta := rag.DocMeta{
		DocID:     doc.ID,
		Type:      doc.Type,
		Title:     doc.Title,
		SourceRef: doc.SourceRef,
		Metadata:  doc.Metadata,
		Tags:      doc.Tags,
	}

	o.fanOut(ctx, chunks, meta, result)
	result.OverallStatus = overallStatus(result.PerSinkStatus)
	result.DurationMS = time.Since(start).Milliseconds()

	o.writeReference(ctx, doc, result)

	if result.OverallStatus == rag.OverallError {
		if o.cfg.RAGRequired {
			return result, fmt.Errorf("ingest %s: %w", doc.ID, rag.ErrAllSinksFailed)
		}
		o.logger.Warn("ingestion failed on all sinks, continuing",
			"doc_id", doc.ID, "errors", result.SinkErrors)
	} else if result.OverallStatus == rag.OverallPartial {
		o.logger.Warn("ingestion partially failed",
			"doc_id", doc.ID, "statuses", result.PerSinkStatus)
	}

	return result, nil
}

// buildChunks splits and hashes the document text, assigning deterministic
// chunk IDs so repeated ingestion of the same document reproduces them.
func (o *Orchestrator) buildChunks(doc rag.Document) []rag.Chunk {
	pieces := o.chunker.Chunk(doc.Text)
	chunks := make([]rag.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = rag.Chunk{
			ID:            fmt.Sprintf("%s:%04d", doc.ID, p.Position),
			ParentDocID:   doc.ID,
			Text:          p.Text,
			TokenCount:    p.TokenCount,
			ContentSHA256: rag.HashText(p.Text),
			Position:      p.Position,
		}
	}
	return chunks
}

// fanOut indexes the chunk set on every sink concurrently, each with its own
// retry budget, recording outcomes into result.
func (o *Orchestrator) fanOut(ctx context.Context, chunks []rag.Chunk, meta rag.DocMeta, result *rag.IngestionResult) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.OverallTimeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range o.sinks {
		g.Go(func() error {
			status, errMsg := o.indexOne(gctx, s, chunks, meta)

			mu.Lock()
			result.PerSinkStatus[s.Name()] = status
			if errMsg != "" {
				result.SinkErrors[s.Name()] = errMsg
			}
			mu.Unlock()
			return nil // sink failures are recorded, never propagated
		})
	}

	_ = g.Wait()
}

// indexOne runs a single sink's index path: rate limit, per-attempt timeout,
// shared retry policy for transient errors.
func (o *Orchestrator) indexOne(ctx context.Context, s sink.Sink, chunks []rag.Chunk, meta rag.DocMeta) (rag.SinkStatus, string) {
	if limiter, ok := o.limiters[s.Name()]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return rag.SinkStatusError, fmt.Sprintf("rate limiter: %v", err)
		}
	}

	var outcome sink.IndexOutcome
	err := o.cfg.Retry.Do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.SinkTimeout)
		defer cancel()

		outcome = s.Index(attemptCtx, chunks, meta)
		if outcome.Err == nil {
			return nil
		}
		if !sink.IsTransient(outcome.Err) {
			return retry.Permanent(outcome.Err)
		}
		return outcome.Err
	})
	if err != nil {
		o.logger.Warn("sink index failed", "sink", s.Name(), "doc_id", meta.DocID,
			"latency", outcome.Latency, "error", err)
		return rag.SinkStatusError, err.Error()
	}

	o.logger.Debug("sink index succeeded", "sink", s.Name(), "doc_id", meta.DocID,
		"status", outcome.Status, "latency", outcome.Latency)
	return outcome.Status, ""
}

// writeReference performs the best-effort ledger write when enabled for this
// document. Failures are already swallowed inside the writer; this method
// only decides whether to attempt the write at all.
func (o *Orchestrator) writeReference(ctx context.Context, doc rag.Document, result *rag.IngestionResult) {
	if o.refs == nil || !o.shouldPersistReference(doc.Type) {
		return
	}

	ref := rag.RAGReference{
		RefID:          rag.RefID(doc.Type, doc.SourceRef),
		Type:           doc.Type,
		SourceRef:      doc.SourceRef,
		ContentHashes:  result.ContentHashes,
		ChunkCount:     result.ChunkCount,
		IndexingStatus: result.OverallStatus,
		SinkStatuses:   result.PerSinkStatus,
	}

	if !o.refs.Upsert(ctx, ref) {
		o.logger.Debug("reference write did not land", "ref_id", ref.RefID)
	}
}

func (o *Orchestrator) shouldPersistReference(t rag.DocType) bool {
	if o.cfg.WriteReferences {
		return true
	}
	for _, pt := range o.cfg.PersistTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// overallStatus applies the aggregation invariant: success iff all sinks
// succeeded, error iff all failed, partial otherwise.
func overallStatus(statuses map[string]rag.SinkStatus) rag.OverallStatus {
	if len(statuses) == 0 {
		return rag.OverallSuccess
	}

	succeeded, failed := 0, 0
	for _, s := range statuses {
		if s.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}

	switch {
	case failed == 0:
		return rag.OverallSuccess
	case succeeded == 0:
		return rag.OverallError
	default:
		return rag.OverallPartial
	}
}
