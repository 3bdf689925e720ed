package rag

import (
	"fmt"
	"strings"
)

// Default chunking parameters.
const (
	DefaultMaxTokens     = 1000
	DefaultOverlapTokens = 100
)

// ChunkPiece is the raw output of the Chunker before the ingestion
// orchestrator attaches IDs and hashes.
type ChunkPiece struct {
	Text       string
	TokenCount int
	Position   int
}

// Chunker splits text into token-bounded pieces with a configurable overlap
// between consecutive pieces to preserve context across boundaries.
//
// Tokens are whitespace-delimited words. This is a deliberate approximation:
// it is deterministic, model-independent, and cheap, and determinism is what
// the idempotent-hashing contract depends on.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// NewChunker creates a Chunker. maxTokens must be positive and overlapTokens
// must be non-negative and strictly less than maxTokens.
func NewChunker(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive, got %d", ErrConfiguration, maxTokens)
	}
	if overlapTokens < 0 {
		return nil, fmt.Errorf("%w: overlap_tokens must be non-negative, got %d", ErrConfiguration, overlapTokens)
	}
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap_tokens (%d) must be less than max_tokens (%d)",
			ErrConfiguration, overlapTokens, maxTokens)
	}

	return &Chunker{
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
	}, nil
}

// Chunk splits text into overlapping token-bounded pieces.
//
// Empty or whitespace-only input yields no pieces. Input at or under the
// token budget yields exactly one piece with no overlap applied. Consecutive
// pieces share the trailing overlapTokens tokens of the previous piece.
func (c *Chunker) Chunk(text string) []ChunkPiece {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	if len(tokens) <= c.maxTokens {
		return []ChunkPiece{{
			Text:       strings.Join(tokens, " "),
			TokenCount: len(tokens),
			Position:   0,
		}}
	}

	step := c.maxTokens - c.overlapTokens
	estimated := (len(tokens)-c.overlapTokens+step-1)/step + 1
	pieces := make([]ChunkPiece, 0, estimated)

	position := 0
	for start := 0; start < len(tokens); start += step {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		pieces = append(pieces, ChunkPiece{
			Text:       strings.Join(tokens[start:end], " "),
			TokenCount: end - start,
			Position:   position,
		})
		position++

		if end == len(tokens) {
			break
		}
	}

	return pieces
}

// CountTokens returns the token count Chunk would assign to text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
