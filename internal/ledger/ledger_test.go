package ledger

import (
	"context"
	"testing"

	"github.com/streamharvest/streamharvest/internal/log"
	"github.com/streamharvest/streamharvest/internal/rag"
)

func TestUpsertWithoutStoreNeverRaises(t *testing.T) {
	w := New(nil, "test-agent", log.NewNop())

	ok := w.Upsert(context.Background(), rag.RAGReference{
		RefID:          rag.RefID(rag.DocTypeTranscript, "yt:v1"),
		Type:           rag.DocTypeTranscript,
		SourceRef:      "yt:v1",
		ContentHashes:  []string{rag.HashText("chunk")},
		ChunkCount:     1,
		IndexingStatus: rag.OverallSuccess,
		SinkStatuses:   map[string]rag.SinkStatus{"keyword": rag.SinkStatusIndexed},
	})
	if ok {
		t.Error("Upsert without a store must report false")
	}
}

func TestUpsertNilLoggerDefaults(t *testing.T) {
	// Constructing with a nil logger must not panic on use.
	w := New(nil, "test-agent", nil)
	if w.Upsert(context.Background(), rag.RAGReference{RefID: "transcript_x"}) {
		t.Error("expected false without a store")
	}
}
