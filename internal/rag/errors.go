package rag

import "errors"

var (
	// ErrConfiguration indicates invalid chunking, weight, or sink
	// configuration. Fatal at startup or first use; never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrAllSinksFailed indicates that every active sink failed during a
	// call. This is the only condition the core surfaces as a hard error,
	// and for ingestion only when rag_required is set.
	ErrAllSinksFailed = errors.New("all sinks failed")
)
