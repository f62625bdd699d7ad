package rag

import (
	"localanswer/rag/interfaces"
	"localanswer/rag/types"
)

// Aliases so callers outside the core only need the rag package.
type (
	Embedder  = interfaces.Embedder
	Index     = interfaces.Index
	Generator = interfaces.Generator

	Passage      = types.Passage
	Source       = types.Source
	HistoryEntry = types.HistoryEntry
	QueryResult  = types.QueryResult
)
