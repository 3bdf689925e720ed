// Package ledger writes best-effort RAG reference records: lightweight audit
// pointers recording which sinks hold which content. The writer never
// returns an error and never panics; every failure is logged and reported as
// false. Nothing in ingestion or retrieval may depend on its success.
package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamharvest/streamharvest/internal/rag"
)

// Writer upserts RAGReference rows keyed by the deterministic ref_id.
type Writer struct {
	pool   *pgxpool.Pool
	agent  string
	logger *slog.Logger
}

// New creates a ledger writer. agent names the calling pipeline component
// recorded in created_by_agent. pool may be nil; every write then reports
// false, which keeps the disabled/misconfigured case on the same non-raising
// path as a write failure.
func New(pool *pgxpool.Pool, agent string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{pool: pool, agent: agent, logger: logger.With("component", "ledger")}
}

// Upsert writes ref, creating or updating the row for its ref_id.
// Always returns; true means the write landed.
func (w *Writer) Upsert(ctx context.Context, ref rag.RAGReference) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("reference write panicked", "ref_id", ref.RefID, "panic", r)
			ok = false
		}
	}()

	if w.pool == nil {
		w.logger.Debug("reference write skipped: no store configured", "ref_id", ref.RefID)
		return false
	}

	statuses, err := json.Marshal(ref.SinkStatuses)
	if err != nil {
		w.logger.Warn("reference write failed: marshaling sink statuses",
			"ref_id", ref.RefID, "error", err)
		return false
	}
	hashes, err := json.Marshal(ref.ContentHashes)
	if err != nil {
		w.logger.Warn("reference write failed: marshaling content hashes",
			"ref_id", ref.RefID, "error", err)
		return false
	}

	now := time.Now()
	_, err = w.pool.Exec(ctx, `
		INSERT INTO rag_references
			(ref_id, type, source_ref, created_by_agent, content_hashes,
			 chunk_count, indexing_status, sink_statuses, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (ref_id) DO UPDATE SET
			content_hashes = EXCLUDED.content_hashes,
			chunk_count = EXCLUDED.chunk_count,
			indexing_status = EXCLUDED.indexing_status,
			sink_statuses = EXCLUDED.sink_statuses,
			last_updated_at = EXCLUDED.last_updated_at`,
		ref.RefID, string(ref.Type), ref.SourceRef, w.agent, hashes,
		ref.ChunkCount, string(ref.IndexingStatus), statuses, now,
	)
	if err != nil {
		w.logger.Warn("reference write failed", "ref_id", ref.RefID, "error", err)
		return false
	}

	w.logger.Debug("reference written", "ref_id", ref.RefID, "status", ref.IndexingStatus)
	return true
}
