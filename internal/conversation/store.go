// Package conversation holds per-chat message history for the lifetime of
// the process.
package conversation

import (
	"sync"

	"github.com/haasonsaas/mcpbot/pkg/models"
)

// DefaultWindow is the number of most recent turns submitted to the agent.
const DefaultWindow = 5

// Store is an in-memory, concurrency-safe map from conversation to its
// ordered history. Histories are never trimmed; only reads are windowed.
type Store struct {
	mu      sync.RWMutex
	entries map[models.ConversationID][]models.Turn
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: map[models.ConversationID][]models.Turn{}}
}

// GetOrCreate returns a copy of the history for id, creating an empty
// history on first access.
func (s *Store) GetOrCreate(id models.ConversationID) []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.entries[id]
	if !ok {
		s.entries[id] = []models.Turn{}
		return []models.Turn{}
	}
	return cloneTurns(turns)
}

// Append adds turn to the end of the history for id, creating it if needed.
func (s *Store) Append(id models.ConversationID, turn models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = append(s.entries[id], turn)
}

// Recent returns up to the last n turns for id in chronological order.
// It does not modify the history.
func (s *Store) Recent(id models.ConversationID, n int) []models.Turn {
	if n <= 0 {
		return []models.Turn{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.entries[id]
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return cloneTurns(turns)
}

// Len returns the number of turns stored for id.
func (s *Store) Len(id models.ConversationID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[id])
}

// Reset drops the history for id. The next access starts empty.
func (s *Store) Reset(id models.ConversationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Conversations returns the number of conversations with a history entry.
func (s *Store) Conversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneTurns(turns []models.Turn) []models.Turn {
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}
