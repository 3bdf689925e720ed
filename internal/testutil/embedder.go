package testutil

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockEmbedderDim is the vector width MockEmbedder produces, matching the
// semantic_chunks embedding column.
const MockEmbedderDim = 768

// MockEmbedder implements ai.Embedder without network access. Vectors are
// derived from the input text, so identical text always embeds identically
// and similarity queries behave deterministically in tests.
type MockEmbedder struct {
	Delay    time.Duration // simulated latency
	EmbedErr error         // returned instead of embeddings when set

	CallCount     int
	LastInputText string
}

func (m *MockEmbedder) Name() string { return "mock-embedder" }

func (m *MockEmbedder) Register(api.Registry) {}

func (m *MockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.CallCount++

	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.LastInputText = req.Input[0].Content[0].Text
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		var text string
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		embeddings[i] = &ai.Embedding{Embedding: DeterministicVector(text)}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// DeterministicVector expands a SHA-256 digest of text into a fixed-width
// pseudo-embedding in [-1, 1).
func DeterministicVector(text string) []float32 {
	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, MockEmbedderDim)
	for i := range vec {
		b := seed[i%len(seed)]
		// Mix the position in so the vector is not periodic.
		v := float32(int(b)^(i*31)%256) / 128.0
		vec[i] = v - 1
	}
	return vec
}
