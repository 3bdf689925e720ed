// Package rag defines the shared data model of the hybrid retrieval core:
// ingestible documents, token-bounded chunks, ingestion and search results,
// and the retrieval trace used for observability.
//
// The package also provides the two leaf components every ingestion path
// depends on:
//
//   - Chunker: deterministic token-budget splitting with overlap
//   - HashText/HashDocument: SHA-256 digests over normalized text
//
// Both are pure: the same input and configuration always produce the same
// chunk boundaries and hashes, which is what makes re-ingestion idempotent
// across the sink adapters.
package rag
