package orchestrator

import (
	"sync"

	"github.com/familyassistant/core/internal/providers"
)

// HistoryStore persists the provider-message window for a conversation
// between turns. ConversationID corresponds to an A2A task's ContextID
// (or, for a bare one-shot message, its TaskID).
type HistoryStore interface {
	Get(conversationID string) []providers.Message
	Append(conversationID string, msgs ...providers.Message)
}

// MemoryHistoryStore is an in-process HistoryStore. It's the default for a
// single-process A2A server; a durable backend can be swapped in by
// implementing HistoryStore against Postgres the way store/pg persists
// everything else.
type MemoryHistoryStore struct {
	mu   sync.Mutex
	byID map[string][]providers.Message
}

// NewMemoryHistoryStore returns an empty in-memory HistoryStore.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{byID: make(map[string][]providers.Message)}
}

func (s *MemoryHistoryStore) Get(conversationID string) []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.byID[conversationID]
	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (s *MemoryHistoryStore) Append(conversationID string, msgs ...providers.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[conversationID] = append(s.byID[conversationID], msgs...)
}
