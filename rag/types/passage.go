package types

// Passage is a single retrieved chunk of source text, scored against a query.
type Passage struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`

	// Similarity is derived from the index distance as 1 - distance.
	// For cosine distance this lands in [-1, 1]; distances above 1 produce
	// negative values and are kept as-is, never clamped.
	Similarity float64 `json:"similarity"`

	// Rank is the 1-based position within the result set of the query that
	// produced this passage. It is recomputed per query, never persisted.
	Rank int `json:"rank"`
}

// Document is an entry to be stored in a vector index at ingestion time.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Match is a raw nearest-neighbor hit as returned by a vector index,
// nearest first, carrying the index's native distance.
type Match struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float64
}

// Source is the user-facing projection of a passage backing an answer.
type Source struct {
	Source  string  `json:"source"`
	Page    string  `json:"page"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// HistoryEntry is one completed question/answer exchange. Answer holds the
// generated text without the citation block.
type HistoryEntry struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Summary  string   `json:"summary,omitempty"`
}

// QueryResult is the externally visible outcome of one question. Answer
// includes the citation block when any sources exist. Summary is empty when
// summarization was not requested or no answer was produced.
type QueryResult struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Sources  []Source       `json:"sources"`
	Summary  string         `json:"summary,omitempty"`
	History  []HistoryEntry `json:"history"`
}
