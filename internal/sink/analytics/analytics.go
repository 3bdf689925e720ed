// Package analytics implements the SQL analytics sink: a PostgreSQL table of
// content metadata rows with a short preview snippet. Full text is
// deliberately not duplicated here; it lives in the semantic and keyword
// stores. Searches are parameterized metadata queries ordered by recency.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamharvest/streamharvest/internal/config"
	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/sink"
)

// PreviewLength caps the stored preview snippet, in bytes of normalized text.
const PreviewLength = 240

// Sink is the SQL analytics adapter.
// Safe for concurrent use; the pool is shared across calls.
type Sink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ sink.Sink = (*Sink)(nil)

// New creates an analytics sink over an existing connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{pool: pool, logger: logger.With("sink", config.SinkAnalytics)}
}

// Name implements sink.Sink.
func (*Sink) Name() string { return config.SinkAnalytics }

// Index inserts one metadata row per chunk using existence-check-then-insert
// keyed on content hash.
func (s *Sink) Index(ctx context.Context, chunks []rag.Chunk, meta rag.DocMeta) sink.IndexOutcome {
	start := time.Now()
	if len(chunks) == 0 {
		return sink.IndexOutcome{Status: rag.SinkStatusSkipped}
	}

	indexed, skipped := 0, 0
	for _, chunk := range chunks {
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM content_records WHERE content_hash = $1)",
			chunk.ContentSHA256).Scan(&exists)
		if err != nil {
			return sink.IndexError(classify(err), time.Since(start))
		}
		if exists {
			skipped++
			continue
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO content_records
				(doc_id, chunk_id, content_hash, doc_type, channel_id, video_id,
				 published_at, duration_seconds, preview, token_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (content_hash) DO NOTHING`,
			chunk.ParentDocID, chunk.ID, chunk.ContentSHA256, string(meta.Type),
			meta.Metadata["channel_id"], meta.Metadata["video_id"],
			publishedAt(meta), durationSeconds(meta),
			preview(chunk.Text), chunk.TokenCount,
		)
		if err != nil {
			return sink.IndexError(classify(err), time.Since(start))
		}
		indexed++
	}

	s.logger.Debug("recorded chunks", "doc_id", meta.DocID, "indexed", indexed, "skipped", skipped)

	status := rag.SinkStatusIndexed
	if indexed == 0 {
		status = rag.SinkStatusSkipped
	}
	return sink.IndexOutcome{Status: status, Indexed: indexed, Skipped: skipped, Latency: time.Since(start)}
}

// Search runs a parameterized metadata query. Without structured filters the
// analytics store has nothing to rank on, so it returns no items rather than
// an unscoped table scan. With filters, matching rows come back newest-first
// with the preview as snippet.
func (s *Sink) Search(ctx context.Context, _ string, filters rag.Filters, topK int) sink.SearchOutcome {
	start := time.Now()

	if filters.IsZero() {
		return sink.SearchOutcome{Latency: time.Since(start)}
	}

	q := `
		SELECT chunk_id, doc_id, content_hash, preview, channel_id, published_at
		FROM content_records
		WHERE TRUE`
	var args []any
	next := 1

	appendFilter := func(clause string, value any) {
		q += fmt.Sprintf(" AND "+clause, next)
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
	if filters.MinDuration > 0 {
		appendFilter("duration_seconds >= $%d", filters.MinDuration)
	}
	if filters.MaxDuration > 0 {
		appendFilter("duration_seconds <= $%d", filters.MaxDuration)
	}

	q += fmt.Sprintf(" ORDER BY published_at DESC NULLS LAST, created_at DESC LIMIT $%d", next)
	args = append(args, topK)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return sink.SearchError(classify(err), time.Since(start))
	}
	defer rows.Close()

	var items []rag.ResultItem
	for rows.Next() {
		var item rag.ResultItem
		var channelID *string
		if err := rows.Scan(&item.ChunkID, &item.DocID, &item.ContentHash,
			&item.TextSnippet, &channelID, &item.PublishedAt); err != nil {
			return sink.SearchError(classify(err), time.Since(start))
		}
		if channelID != nil {
			item.ChannelID = *channelID
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return sink.SearchError(classify(err), time.Since(start))
	}

	return sink.SearchOutcome{Items: items, Latency: time.Since(start)}
}

// preview truncates normalized text to the stored snippet budget. The cut
// backs up to a rune boundary so the stored value stays valid UTF-8, which
// Postgres text columns require.
func preview(text string) string {
	t := rag.NormalizeText(text)
	if len(t) <= PreviewLength {
		return t
	}
	cut := PreviewLength
	for cut > 0 && !utf8.RuneStart(t[cut]) {
		cut--
	}
	return t[:cut]
}

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

func durationSeconds(meta rag.DocMeta) any {
	raw, ok := meta.Metadata["duration_seconds"]
	if !ok {
		return nil
	}
	var d int
	if _, err := fmt.Sscanf(raw, "%d", &d); err != nil {
		return nil
	}
	return d
}

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
