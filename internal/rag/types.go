package rag

import "time"

// DocType categorizes an ingestible document.
type DocType string

// Known document types.
const (
	DocTypeTranscript       DocType = "transcript"
	DocTypeSummary          DocType = "summary"
	DocTypeGenericDocument  DocType = "generic_document"
	DocTypeLinkedInPost     DocType = "linkedin_post"
	DocTypeStrategyArtifact DocType = "strategy_artifact"
)

// ValidDocType reports whether t is one of the known document types.
func ValidDocType(t DocType) bool {
	switch t {
	case DocTypeTranscript, DocTypeSummary, DocTypeGenericDocument,
		DocTypeLinkedInPost, DocTypeStrategyArtifact:
		return true
	}
	return false
}

// Document is the unit of ingestion handed to the core by the calling
// pipeline. The core consumes it once per Ingest call and does not retain it.
type Document struct {
	ID        string            `json:"doc_id"`
	Type      DocType           `json:"doc_type"`
	Text      string            `json:"text"`
	Title     string            `json:"title,omitempty"`
	SourceRef string            `json:"source_ref"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
}

// Chunk is a token-bounded slice of a parent document. Chunks are immutable
// once created and exist only for the duration of a single ingest call; they
// are persisted solely through the sink adapters.
type Chunk struct {
	ID            string `json:"chunk_id"`
	ParentDocID   string `json:"parent_doc_id"`
	Text          string `json:"text"`
	TokenCount    int    `json:"token_count"`
	ContentSHA256 string `json:"content_sha256"`
	Position      int    `json:"position"`
}

// DocMeta carries the document-level metadata sinks need at index time.
type DocMeta struct {
	DocID     string            `json:"doc_id"`
	Type      DocType           `json:"doc_type"`
	Title     string            `json:"title,omitempty"`
	SourceRef string            `json:"source_ref"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
}

// SinkStatus is the per-sink outcome of an index operation.
type SinkStatus string

// Per-sink index statuses. Indexed, Streamed and Upserted all mean success;
// adapters report the verb that matches their backend.
const (
	SinkStatusIndexed  SinkStatus = "indexed"
	SinkStatusStreamed SinkStatus = "streamed"
	SinkStatusUpserted SinkStatus = "upserted"
	SinkStatusSkipped  SinkStatus = "skipped"
	SinkStatusError    SinkStatus = "error"
)

// Succeeded reports whether the status counts as a successful index outcome.
// Skipped counts: the content is already present in the sink.
func (s SinkStatus) Succeeded() bool {
	switch s {
	case SinkStatusIndexed, SinkStatusStreamed, SinkStatusUpserted, SinkStatusSkipped:
		return true
	}
	return false
}

// OverallStatus summarizes an ingestion across all enabled sinks.
type OverallStatus string

// Overall ingestion statuses.
const (
	OverallSuccess OverallStatus = "success"
	OverallPartial OverallStatus = "partial"
	OverallError   OverallStatus = "error"
)

// IngestionResult is the immutable outcome of a single Ingest call.
//
// Invariant: OverallStatus is success iff every enabled sink succeeded,
// partial iff at least one succeeded and at least one failed, and error iff
// all enabled sinks failed.
type IngestionResult struct {
	DocID         string                `json:"doc_id"`
	ChunkCount    int                   `json:"chunk_count"`
	TotalTokens   int                   `json:"total_tokens"`
	ContentHashes []string              `json:"content_hashes"`
	PerSinkStatus map[string]SinkStatus `json:"per_sink_status"`
	SinkErrors    map[string]string     `json:"sink_errors,omitempty"`
	OverallStatus OverallStatus         `json:"overall_status"`
	DurationMS    int64                 `json:"duration_ms"`
}

// Filters restricts a search to structured attributes of the source content.
// Zero values mean "no constraint".
type Filters struct {
	ChannelID   string    `json:"channel_id,omitempty"`
	VideoID     string    `json:"video_id,omitempty"`
	DateFrom    time.Time `json:"date_from,omitempty"`
	DateTo      time.Time `json:"date_to,omitempty"`
	MinDuration int       `json:"min_duration,omitempty"`
	MaxDuration int       `json:"max_duration,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f Filters) IsZero() bool {
	return f.ChannelID == "" && f.VideoID == "" &&
		f.DateFrom.IsZero() && f.DateTo.IsZero() &&
		f.MinDuration == 0 && f.MaxDuration == 0
}

// HasDateRange reports whether at least one bound of the date range is set.
func (f Filters) HasDateRange() bool {
	return !f.DateFrom.IsZero() || !f.DateTo.IsZero()
}

// ResultItem is one fused, deduplicated search hit.
//
// Score is the fused RRF score and determines final ordering. Sources lists
// every sink that returned this content hash; RankPerSource preserves the
// 1-based original rank in each of them for provenance.
type ResultItem struct {
	ContentHash   string         `json:"content_hash"`
	DocID         string         `json:"doc_id"`
	ChunkID       string         `json:"chunk_id"`
	TextSnippet   string         `json:"text_snippet"`
	ChannelID     string         `json:"channel_id,omitempty"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
	Score         float64        `json:"score"`
	Sources       []string       `json:"sources"`
	RankPerSource map[string]int `json:"rank_per_source"`
}

// RetrievalTrace is the write-once observability record of a search call.
type RetrievalTrace struct {
	TraceID              string            `json:"trace_id"`
	Query                string            `json:"query"`
	Filters              Filters           `json:"filters"`
	PerSourceLatencyMS   map[string]int64  `json:"per_source_latency_ms"`
	PerSourceResultCount map[string]int    `json:"per_source_result_count"`
	PerSourceError       map[string]string `json:"per_source_error,omitempty"`
	Coverage             float64           `json:"coverage"`
	FusedResultCount     int               `json:"fused_result_count"`
	Error                string            `json:"error,omitempty"`
	CacheHit             bool              `json:"cache_hit,omitempty"`
}

// SearchResult pairs the fused items with their trace.
type SearchResult struct {
	Items []ResultItem   `json:"results"`
	Trace RetrievalTrace `json:"trace"`
}

// RAGReference is the optional best-effort audit pointer mapping a piece of
// source content to the sinks that hold it. Writes are fire-and-forget; see
// the ledger package.
type RAGReference struct {
	RefID          string                `json:"ref_id"`
	Type           DocType               `json:"type"`
	SourceRef      string                `json:"source_ref"`
	CreatedByAgent string                `json:"created_by_agent"`
	ContentHashes  []string              `json:"content_hashes"`
	ChunkCount     int                   `json:"chunk_count"`
	IndexingStatus OverallStatus         `json:"indexing_status"`
	SinkStatuses   map[string]SinkStatus `json:"sink_statuses"`
	CreatedAt      time.Time             `json:"created_at"`
	LastUpdatedAt  time.Time             `json:"last_updated_at"`
}

// RefID derives the deterministic ledger key for a document.
func RefID(t DocType, sourceRef string) string {
	return string(t) + "_" + sourceRef
}
