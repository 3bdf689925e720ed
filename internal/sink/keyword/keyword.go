// Package keyword implements the BM25 keyword sink backed by SQLite FTS5.
// It owns a local index file and supports faceted filtering by channel,
// video, publication date and duration.
package keyword

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/streamharvest/streamharvest/internal/config"
	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/sink"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash TEXT NOT NULL UNIQUE,
	chunk_id TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	channel_id TEXT NOT NULL DEFAULT '',
	video_id TEXT NOT NULL DEFAULT '',
	published_at INTEGER,
	duration_seconds INTEGER,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	text,
	content='chunks',
	content_rowid='id'
);

CREATE INDEX IF NOT EXISTS idx_chunks_channel ON chunks(channel_id);
CREATE INDEX IF NOT EXISTS idx_chunks_published ON chunks(published_at);
`

// Sink is the keyword/BM25 adapter. Safe for concurrent use; database/sql
// manages the connection pool.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ sink.Sink = (*Sink)(nil)

// Open opens (creating if necessary) the keyword index at path and prepares
// the schema.
func Open(path string, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening keyword index: %w", err)
	}

	// WAL keeps concurrent readers off the writer's lock.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing keyword schema: %w", err)
	}

	return &Sink{db: db, logger: logger.With("sink", config.SinkKeyword)}, nil
}

// Close closes the underlying index file.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Name implements sink.Sink.
func (*Sink) Name() string { return config.SinkKeyword }

// Index inserts chunks using existence-check-then-insert keyed on content
// hash, keeping the FTS shadow table in sync within the same transaction.
func (s *Sink) Index(ctx context.Context, chunks []rag.Chunk, meta rag.DocMeta) sink.IndexOutcome {
	start := time.Now()
	if len(chunks) == 0 {
		return sink.IndexOutcome{Status: rag.SinkStatusSkipped}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sink.IndexError(classify(err), time.Since(start))
	}
	defer func() { _ = tx.Rollback() }()

	published := publishedAtUnix(meta)
	duration := durationSeconds(meta)
	now := time.Now().Unix()

	indexed, skipped := 0, 0
	for _, chunk := range chunks {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM chunks WHERE content_hash = ?", chunk.ContentSHA256).Scan(&exists)
		switch {
		case err == nil:
			skipped++
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return sink.IndexError(classify(err), time.Since(start))
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO chunks
				(content_hash, chunk_id, doc_id, channel_id, video_id, published_at, duration_seconds, text, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ContentSHA256, chunk.ID, chunk.ParentDocID,
			meta.Metadata["channel_id"], meta.Metadata["video_id"],
			published, duration, chunk.Text, now,
		)
		if err != nil {
			return sink.IndexError(classify(err), time.Since(start))
		}

		rowID, err := res.LastInsertId()
		if err != nil {
			return sink.IndexError(classify(err), time.Since(start))
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunks_fts(rowid, text) VALUES (?, ?)", rowID, chunk.Text); err != nil {
			return sink.IndexError(classify(err), time.Since(start))
		}
		indexed++
	}

	if err := tx.Commit(); err != nil {
		return sink.IndexError(classify(err), time.Since(start))
	}

	s.logger.Debug("indexed chunks", "doc_id", meta.DocID, "indexed", indexed, "skipped", skipped)

	status := rag.SinkStatusIndexed
	if indexed == 0 {
		status = rag.SinkStatusSkipped
	}
	return sink.IndexOutcome{Status: status, Indexed: indexed, Skipped: skipped, Latency: time.Since(start)}
}

// Search runs an FTS5 MATCH ranked by bm25 with optional faceted filters.
// bm25 scores are lower-is-better; items are returned best-first and carry
// the negated score so larger remains better for callers.
func (s *Sink) Search(ctx context.Context, query string, filters rag.Filters, topK int) sink.SearchOutcome {
	start := time.Now()

	match := buildMatchQuery(query)
	if match == "" {
		return sink.SearchOutcome{Latency: time.Since(start)}
	}

	q := `
		SELECT c.chunk_id, c.doc_id, c.content_hash, c.text,
			c.channel_id, c.published_at, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?`
	args := []any{match}

	if filters.ChannelID != "" {
		q += " AND c.channel_id = ?"
		args = append(args, filters.ChannelID)
	}
	if filters.VideoID != "" {
		q += " AND c.video_id = ?"
		args = append(args, filters.VideoID)
	}
	if !filters.DateFrom.IsZero() {
		q += " AND c.published_at >= ?"
		args = append(args, filters.DateFrom.Unix())
	}
	if !filters.DateTo.IsZero() {
		q += " AND c.published_at <= ?"
		args = append(args, filters.DateTo.Unix())
	}
	if filters.MinDuration > 0 {
		q += " AND c.duration_seconds >= ?"
		args = append(args, filters.MinDuration)
	}
	if filters.MaxDuration > 0 {
		q += " AND c.duration_seconds <= ?"
		args = append(args, filters.MaxDuration)
	}

	q += " ORDER BY bm25(chunks_fts) LIMIT ?"
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return sink.SearchError(classify(err), time.Since(start))
	}
	defer rows.Close()

	var items []rag.ResultItem
	for rows.Next() {
		var item rag.ResultItem
		var channelID sql.NullString
		var published sql.NullInt64
		var score float64
		if err := rows.Scan(&item.ChunkID, &item.DocID, &item.ContentHash,
			&item.TextSnippet, &channelID, &published, &score); err != nil {
			return sink.SearchError(classify(err), time.Since(start))
		}
		item.ChannelID = channelID.String
		if published.Valid && published.Int64 > 0 {
			t := time.Unix(published.Int64, 0).UTC()
			item.PublishedAt = &t
		}
		item.Score = -score
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return sink.SearchError(classify(err), time.Since(start))
	}

	return sink.SearchOutcome{Items: items, Latency: time.Since(start)}
}

// buildMatchQuery quotes each term for FTS5 so user input cannot inject
// MATCH syntax (NEAR, column filters, boolean operators).
func buildMatchQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func publishedAtUnix(meta rag.DocMeta) any {
	raw, ok := meta.Metadata["published_at"]
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return t.Unix()
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
	case errors.Is(err, sql.ErrNoRows):
		return sink.Permanent(err)
	default:
		return sink.Transient(err)
	}
}
