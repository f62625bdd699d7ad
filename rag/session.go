package rag

import (
	"sync"

	"localanswer/rag/types"
)

// Session holds the conversational record for one interactive session. It is
// owned by the caller and passed into each Query call, so a single pipeline
// can serve many sessions. Appends are serialized; the history itself is
// never fed back into later prompts.
type Session struct {
	mu      sync.Mutex
	history []types.HistoryEntry
}

func NewSession() *Session {
	return &Session{}
}

// Append records a completed exchange. The pipeline is the usual writer;
// it is exported so callers can seed or restore a session.
func (s *Session) Append(entry types.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
}

// History returns a snapshot of the session record in call order.
func (s *Session) History() []types.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Len reports the number of recorded exchanges.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
