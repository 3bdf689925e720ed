package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streamharvest/streamharvest/internal/log"
	"github.com/streamharvest/streamharvest/internal/rag"
	"github.com/streamharvest/streamharvest/internal/retry"
	"github.com/streamharvest/streamharvest/internal/sink"
)

// fakeSink is a scriptable Sink for orchestrator tests.
type fakeSink struct {
	name    string
	status  rag.SinkStatus
	err     error
	failFor int32 // fail this many calls, then succeed
	delay   time.Duration

	mu     sync.Mutex
	calls  int
	chunks []rag.Chunk
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Index(ctx context.Context, chunks []rag.Chunk, _ rag.DocMeta) sink.IndexOutcome {
	f.mu.Lock()
	f.calls++
	f.chunks = chunks
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return sink.IndexError(ctx.Err(), f.delay)
		}
	}
	if atomic.AddInt32(&f.failFor, -1) >= 0 {
		return sink.IndexError(f.err, time.Millisecond)
	}
	status := f.status
	if status == "" {
		status = rag.SinkStatusIndexed
	}
	return sink.IndexOutcome{Status: status, Indexed: len(chunks)}
}

func (f *fakeSink) Search(context.Context, string, rag.Filters, int) sink.SearchOutcome {
	return sink.SearchOutcome{}
}

func (f *fakeSink) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// alwaysFail returns a sink whose every call fails with err.
func alwaysFail(name string, err error) *fakeSink {
	return &fakeSink{name: name, err: err, failFor: 1 << 20}
}

func testConfig() Config {
	return Config{
		SinkTimeout:    time.Second,
		OverallTimeout: 5 * time.Second,
		Retry:          retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}
}

func testDoc(text string) rag.Document {
	return rag.Document{
		ID:        "doc-1",
		Type:      rag.DocTypeTranscript,
		Text:      text,
		SourceRef: "video-abc",
	}
}

func newTestOrchestrator(t *testing.T, sinks []sink.Sink, cfg Config, refs ReferenceWriter) *Orchestrator {
	t.Helper()
	chunker, err := rag.NewChunker(10, 2)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	return New(chunker, sinks, refs, cfg, log.NewNop())
}

func TestIngestAllSinksSucceed(t *testing.T) {
	a := &fakeSink{name: "semantic", status: rag.SinkStatusUpserted}
	b := &fakeSink{name: "keyword"}
	o := newTestOrchestrator(t, []sink.Sink{a, b}, testConfig(), nil)

	res, err := o.Ingest(context.Background(), testDoc(strings.Repeat("word ", 25)))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.OverallStatus != rag.OverallSuccess {
		t.Errorf("overall = %s, want success", res.OverallStatus)
	}
	if res.PerSinkStatus["semantic"] != rag.SinkStatusUpserted {
		t.Errorf("semantic status = %s", res.PerSinkStatus["semantic"])
	}
	if res.ChunkCount == 0 || len(res.ContentHashes) != res.ChunkCount {
		t.Errorf("chunk_count=%d hashes=%d", res.ChunkCount, len(res.ContentHashes))
	}
	if len(a.chunks) != res.ChunkCount {
		t.Errorf("sink received %d chunks, want %d", len(a.chunks), res.ChunkCount)
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	a := &fakeSink{name: "semantic"}
	o := newTestOrchestrator(t, []sink.Sink{a}, testConfig(), nil)

	res, err := o.Ingest(context.Background(), testDoc("   \n\t  "))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunkCount != 0 {
		t.Errorf("chunk_count = %d, want 0", res.ChunkCount)
	}
	if res.OverallStatus != rag.OverallSuccess {
		t.Errorf("overall = %s, want success", res.OverallStatus)
	}
	if res.PerSinkStatus["semantic"] != rag.SinkStatusSkipped {
		t.Errorf("status = %s, want skipped", res.PerSinkStatus["semantic"])
	}
	if a.callCount() != 0 {
		t.Errorf("sink called %d times for empty document", a.callCount())
	}
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	o := newTestOrchestrator(t, nil, testConfig(), nil)

	doc := testDoc("hello")
	doc.ID = ""
	if _, err := o.Ingest(context.Background(), doc); !errors.Is(err, rag.ErrConfiguration) {
		t.Errorf("missing id: err = %v, want ErrConfiguration", err)
	}

	doc = testDoc("hello")
	doc.Type = "mixtape"
	if _, err := o.Ingest(context.Background(), doc); !errors.Is(err, rag.ErrConfiguration) {
		t.Errorf("bad type: err = %v, want ErrConfiguration", err)
	}
}

func TestIngestPartialFailure(t *testing.T) {
	good := &fakeSink{name: "keyword"}
	bad := alwaysFail("semantic", sink.Permanent(errors.New("schema mismatch")))
	o := newTestOrchestrator(t, []sink.Sink{bad, good}, testConfig(), nil)

	res, err := o.Ingest(context.Background(), testDoc("some searchable text"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.OverallStatus != rag.OverallPartial {
		t.Errorf("overall = %s, want partial", res.OverallStatus)
	}
	if res.PerSinkStatus["semantic"] != rag.SinkStatusError {
		t.Errorf("semantic status = %s, want error", res.PerSinkStatus["semantic"])
	}
	if res.SinkErrors["semantic"] == "" {
		t.Error("expected an error message for the failed sink")
	}
}

func TestIngestAllFailNotRequired(t *testing.T) {
	bad := alwaysFail("semantic", sink.Permanent(errors.New("down")))
	o := newTestOrchestrator(t, []sink.Sink{bad}, testConfig(), nil)

	res, err := o.Ingest(context.Background(), testDoc("text"))
	if err != nil {
		t.Fatalf("Ingest: %v (rag_required is off)", err)
	}
	if res.OverallStatus != rag.OverallError {
		t.Errorf("overall = %s, want error", res.OverallStatus)
	}
}

func TestIngestAllFailRequired(t *testing.T) {
	bad := alwaysFail("semantic", sink.Permanent(errors.New("down")))
	cfg := testConfig()
	cfg.RAGRequired = true
	o := newTestOrchestrator(t, []sink.Sink{bad}, cfg, nil)

	res, err := o.Ingest(context.Background(), testDoc("text"))
	if !errors.Is(err, rag.ErrAllSinksFailed) {
		t.Fatalf("err = %v, want ErrAllSinksFailed", err)
	}
	if res == nil || res.OverallStatus != rag.OverallError {
		t.Errorf("result should still carry the error status, got %+v", res)
	}
}

func TestIngestRetriesTransientErrors(t *testing.T) {
	flaky := &fakeSink{name: "keyword", err: sink.Transient(errors.New("busy")), failFor: 2}
	o := newTestOrchestrator(t, []sink.Sink{flaky}, testConfig(), nil)

	res, err := o.Ingest(context.Background(), testDoc("text"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if got := flaky.callCount(); got != 3 {
		t.Errorf("sink called %d times, want 3 (2 failures + success)", got)
	}
	if res.OverallStatus != rag.OverallSuccess {
		t.Errorf("overall = %s, want success after retries", res.OverallStatus)
	}
}

func TestIngestDoesNotRetryPermanentErrors(t *testing.T) {
	bad := alwaysFail("semantic", sink.Permanent(errors.New("bad schema")))
	o := newTestOrchestrator(t, []sink.Sink{bad}, testConfig(), nil)

	if _, err := o.Ingest(context.Background(), testDoc("text")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if got := bad.callCount(); got != 1 {
		t.Errorf("sink called %d times, want 1 for a permanent error", got)
	}
}

func TestIngestOneSlowSinkDoesNotBlockOthers(t *testing.T) {
	cfg := testConfig()
	cfg.SinkTimeout = 50 * time.Millisecond
	cfg.Retry = retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}

	slow := &fakeSink{name: "semantic", delay: 5 * time.Second}
	fast := &fakeSink{name: "keyword"}
	o := newTestOrchestrator(t, []sink.Sink{slow, fast}, cfg, nil)

	start := time.Now()
	res, err := o.Ingest(context.Background(), testDoc("text"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Ingest took %v, slow sink blocked the call", elapsed)
	}
	if res.PerSinkStatus["keyword"] != rag.SinkStatusIndexed {
		t.Errorf("keyword status = %s, want indexed", res.PerSinkStatus["keyword"])
	}
	if res.PerSinkStatus["semantic"] != rag.SinkStatusError {
		t.Errorf("semantic status = %s, want error after timeout", res.PerSinkStatus["semantic"])
	}
}

// recordingRefs captures the last reference handed to the ledger.
type recordingRefs struct {
	mu   sync.Mutex
	last *rag.RAGReference
}

func (r *recordingRefs) Upsert(_ context.Context, ref rag.RAGReference) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &ref
	return true
}

func (r *recordingRefs) lastRef() *rag.RAGReference {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func TestIngestWritesReferenceWhenEnabled(t *testing.T) {
	refs := &recordingRefs{}
	cfg := testConfig()
	cfg.WriteReferences = true
	o := newTestOrchestrator(t, []sink.Sink{&fakeSink{name: "keyword"}}, cfg, refs)

	res, err := o.Ingest(context.Background(), testDoc("text"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	ref := refs.lastRef()
	if ref == nil {
		t.Fatal("no reference written")
	}
	if ref.RefID != rag.RefID(rag.DocTypeTranscript, "video-abc") {
		t.Errorf("ref_id = %q", ref.RefID)
	}
	if ref.IndexingStatus != res.OverallStatus {
		t.Errorf("ref status = %s, result %s", ref.IndexingStatus, res.OverallStatus)
	}
}

func TestIngestPersistsConfiguredTypesOnly(t *testing.T) {
	refs := &recordingRefs{}
	cfg := testConfig()
	cfg.PersistTypes = []rag.DocType{rag.DocTypeStrategyArtifact}
	o := newTestOrchestrator(t, []sink.Sink{&fakeSink{name: "keyword"}}, cfg, refs)

	if _, err := o.Ingest(context.Background(), testDoc("text")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if refs.lastRef() != nil {
		t.Error("transcript reference written although only strategy_artifact is persisted")
	}

	doc := testDoc("text")
	doc.Type = rag.DocTypeStrategyArtifact
	if _, err := o.Ingest(context.Background(), doc); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if refs.lastRef() == nil {
		t.Error("strategy_artifact reference was not written")
	}
}

func TestIngestDeterministicChunkIDsAndHashes(t *testing.T) {
	a := &fakeSink{name: "keyword"}
	o := newTestOrchestrator(t, []sink.Sink{a}, testConfig(), nil)

	doc := testDoc(strings.Repeat("alpha beta gamma ", 10))
	first, err := o.Ingest(context.Background(), doc)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	second, err := o.Ingest(context.Background(), doc)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(first.ContentHashes) != len(second.ContentHashes) {
		t.Fatalf("hash counts differ: %d vs %d", len(first.ContentHashes), len(second.ContentHashes))
	}
	for i := range first.ContentHashes {
		if first.ContentHashes[i] != second.ContentHashes[i] {
			t.Errorf("hash %d differs across runs", i)
		}
	}
	for i, c := range a.chunks {
		if c.ID != "doc-1:"+pad4(i) {
			t.Errorf("chunk id = %q, want doc-1:%s", c.ID, pad4(i))
		}
	}
}

func pad4(n int) string {
	s := []byte{'0', '0', '0', '0'}
	for i := 3; i >= 0 && n > 0; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}
	return string(s)
}
