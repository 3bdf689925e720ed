// Package semantic implements the vector-store sink backed by PostgreSQL
// with the pgvector extension. Chunks are embedded with a genkit ai.Embedder
// and ranked at query time by cosine similarity.
package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/streamharvest/streamharvest/internal/config"
	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/sink"
)

// Sink is the semantic vector-store adapter.
// Safe for concurrent use; the pool and embedder are shared across calls.
type Sink struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

var _ sink.Sink = (*Sink)(nil)

// New creates a semantic sink over an existing connection pool.
func New(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		pool:     pool,
		embedder: embedder,
		logger:   logger.With("sink", config.SinkSemantic),
	}
}

// Name implements sink.Sink.
func (*Sink) Name() string { return config.SinkSemantic }

// Index embeds and upserts chunks. Chunks whose content hash is already
// present are skipped without re-embedding; the upsert keys on content_hash
// so re-ingestion never duplicates rows.
func (s *Sink) Index(ctx context.Context, chunks []rag.Chunk, meta rag.DocMeta) sink.IndexOutcome {
	start := time.Now()
	if len(chunks) == 0 {
		return sink.IndexOutcome{Status: rag.SinkStatusSkipped}
	}

	existing, err := s.existingHashes(ctx, chunks)
	if err != nil {
		return sink.IndexError(classify(err), time.Since(start))
	}

	metadataJSON, err := json.Marshal(buildMetadata(meta))
	if err != nil {
		return sink.IndexError(sink.Permanent(fmt.Errorf("marshaling metadata: %w", err)), time.Since(start))
	}

	indexed, skipped := 0, 0
	for _, chunk := range chunks {
		if existing[chunk.ContentSHA256] {
			skipped++
			continue
		}

		embedding, err := s.embed(ctx, chunk.Text)
		if err != nil {
			return sink.IndexError(err, time.Since(start))
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO semantic_chunks
				(chunk_id, doc_id, content_hash, text, metadata, channel_id, video_id, published_at, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (content_hash) DO UPDATE SET
				chunk_id = EXCLUDED.chunk_id,
				doc_id = EXCLUDED.doc_id,
				metadata = EXCLUDED.metadata`,
			chunk.ID, chunk.ParentDocID, chunk.ContentSHA256, chunk.Text, metadataJSON,
			meta.Metadata["channel_id"], meta.Metadata["video_id"],
			publishedAt(meta), embedding,
		)
		if err != nil {
			return sink.IndexError(classify(err), time.Since(start))
		}
		indexed++
	}

	s.logger.Debug("indexed chunks", "doc_id", meta.DocID, "indexed", indexed, "skipped", skipped)

	status := rag.SinkStatusUpserted
	if indexed == 0 {
		status = rag.SinkStatusSkipped
	}
	return sink.IndexOutcome{Status: status, Indexed: indexed, Skipped: skipped, Latency: time.Since(start)}
}

// Search embeds the query and runs a cosine-distance scan with optional
// structured filters. Ranked items come back best-first.
func (s *Sink) Search(ctx context.Context, query string, filters rag.Filters, topK int) sink.SearchOutcome {
	start := time.Now()

	embedding, err := s.embed(ctx, query)
	if err != nil {
		return sink.SearchError(err, time.Since(start))
	}

	sql := `
		SELECT chunk_id, doc_id, content_hash, text, channel_id, published_at,
			1 - (embedding <=> $1) AS similarity
		FROM semantic_chunks`
	args := []any{embedding}
	where := ""
	next := 2

	appendFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, next)
		args = append(args, value)
		next++
	}

	if filters.ChannelID != "" {
		appendFilter("channel_id = $%d", filters.ChannelID)
	}
	if filters.VideoID != "" {
		appendFilter("video_id = $%d", filters.VideoID)
	}
	if !filters.DateFrom.IsZero() {
		appendFilter("published_at >= $%d", filters.DateFrom)
	}
	if !filters.DateTo.IsZero() {
		appendFilter("published_at <= $%d", filters.DateTo)
	}

	sql += where + fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", next)
	args = append(args, topK)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return sink.SearchError(classify(err), time.Since(start))
	}
	defer rows.Close()

	var items []rag.ResultItem
	for rows.Next() {
		var item rag.ResultItem
		var channelID *string
		var similarity float64
		if err := rows.Scan(&item.ChunkID, &item.DocID, &item.ContentHash,
			&item.TextSnippet, &channelID, &item.PublishedAt, &similarity); err != nil {
			return sink.SearchError(classify(err), time.Since(start))
		}
		if channelID != nil {
			item.ChannelID = *channelID
		}
		item.Score = similarity
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return sink.SearchError(classify(err), time.Since(start))
	}

	return sink.SearchOutcome{Items: items, Latency: time.Since(start)}
}

// existingHashes returns the set of content hashes already indexed.
func (s *Sink) existingHashes(ctx context.Context, chunks []rag.Chunk) (map[string]bool, error) {
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		hashes[i] = c.ContentSHA256
	}

	rows, err := s.pool.Query(ctx,
		"SELECT content_hash FROM semantic_chunks WHERE content_hash = ANY($1)", hashes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		existing[h] = true
	}
	return existing, rows.Err()
}

// embed generates an embedding for text, converting failures into
// classified sink errors.
func (s *Sink) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, sink.Transient(fmt.Errorf("embedding timeout: %w", err))
		}
		return nil, sink.Transient(fmt.Errorf("embed failed: %w", err))
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, sink.Permanent(errors.New("empty embedding returned"))
	}

	v := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &v, nil
}

// buildMetadata flattens document metadata for the JSONB column.
func buildMetadata(meta rag.DocMeta) map[string]string {
	out := make(map[string]string, len(meta.Metadata)+3)
	for k, v := range meta.Metadata {
		out[k] = v
	}
	out["doc_type"] = string(meta.Type)
	out["source_ref"] = meta.SourceRef
	if meta.Title != "" {
		out["title"] = meta.Title
	}
	return out
}

// publishedAt parses the published_at metadata value, if present.
// Returns nil (SQL NULL) when absent or unparseable.
func publishedAt(meta rag.DocMeta) any {
	raw, ok := meta.Metadata["published_at"]
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return t
}

// classify maps database errors to the sink error taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return sink.Transient(err)
	case errors.Is(err, pgx.ErrNoRows):
		return sink.Permanent(err)
	default:
		return sink.Transient(err)
	}
}
