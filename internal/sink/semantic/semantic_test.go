package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamharvest/streamharvest/internal/log"
	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/sink"
	"github.com/streamharvest/streamharvest/internal/testutil"
)

func TestBuildMetadata(t *testing.T) {
	meta := rag.DocMeta{
		DocID:     "doc-1",
		Type:      rag.DocTypeTranscript,
		Title:     "Q2 growth review",
		SourceRef: "video-abc",
		Metadata:  map[string]string{"channel_id": "ch1", "language": "en"},
	}

	got := buildMetadata(meta)
	if got["doc_type"] != "transcript" {
		t.Errorf("doc_type = %q", got["doc_type"])
	}
	if got["source_ref"] != "video-abc" {
		t.Errorf("source_ref = %q", got["source_ref"])
	}
	if got["title"] != "Q2 growth review" {
		t.Errorf("title = %q", got["title"])
	}
	if got["channel_id"] != "ch1" || got["language"] != "en" {
		t.Errorf("document metadata not carried over: %v", got)
	}
}

func TestBuildMetadataOmitsEmptyTitle(t *testing.T) {
	got := buildMetadata(rag.DocMeta{DocID: "d", Type: rag.DocTypeSummary, SourceRef: "v"})
	if _, ok := got["title"]; ok {
		t.Error("empty title should be omitted")
	}
}

func TestPublishedAt(t *testing.T) {
	valid := rag.DocMeta{Metadata: map[string]string{"published_at": "2025-03-01T10:00:00Z"}}
	got := publishedAt(valid)
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("got %T, want time.Time", got)
	}
	if ts.Year() != 2025 || ts.Month() != 3 {
		t.Errorf("parsed %v", ts)
	}

	if got := publishedAt(rag.DocMeta{}); got != nil {
		t.Errorf("missing published_at: got %v, want nil", got)
	}
	malformed := rag.DocMeta{Metadata: map[string]string{"published_at": "yesterday"}}
	if got := publishedAt(malformed); got != nil {
		t.Errorf("malformed published_at: got %v, want nil", got)
	}
}

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
	if !sink.IsTransient(classify(context.DeadlineExceeded)) {
		t.Error("deadline should classify transient")
	}
	if err := classify(errors.New("connection refused")); !sink.IsTransient(err) {
		t.Error("unclassified database errors should default to transient")
	}
}

func TestEmbedWrapsFailures(t *testing.T) {
	s := New(nil, &testutil.MockEmbedder{EmbedErr: errors.New("quota exceeded")}, log.NewNop())

	_, err := s.embed(context.Background(), "some text")
	if err == nil {
		t.Fatal("expected error")
	}
	if !sink.IsTransient(err) {
		t.Error("embedder failures should be retryable")
	}
}

func TestEmbedDeterministic(t *testing.T) {
	s := New(nil, &testutil.MockEmbedder{}, log.NewNop())

	a, err := s.embed(context.Background(), "identical text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := s.embed(context.Background(), "identical text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if a.String() != b.String() {
		t.Error("identical text produced different embeddings")
	}
}
