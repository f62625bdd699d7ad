package rag

import "errors"

// Failure classes surfaced by the retriever and pipeline. All are wrapped
// with %w so callers can classify with errors.Is.
var (
	// ErrRetrieval covers embedding-provider failures while resolving a query.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrIndex covers vector-index failures.
	ErrIndex = errors.New("index query failed")

	// ErrGeneration covers a failed answer call; the whole query is aborted.
	ErrGeneration = errors.New("generation failed")

	// ErrSummarize covers a failed summary call after a successful answer.
	// The query result is still returned alongside this error.
	ErrSummarize = errors.New("summarization failed")
)
