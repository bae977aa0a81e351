package orchestrator

import (
	"context"
	"log/slog"

	"github.com/familyassistant/core/internal/providers"
	"github.com/familyassistant/core/internal/store"
)

// StoreHistoryStore adapts the durable, append-only §3.1 message log
// (store.MessageHistoryStore) to HistoryStore, so a Turn's conversation
// window survives a process restart instead of living only in memory.
type StoreHistoryStore struct {
	messages      store.MessageHistoryStore
	interfaceType string
	maxMessages   int
}

// NewStoreHistoryStore wraps messages. interfaceType tags every row written
// (store.Message.InterfaceType), and maxMessages bounds how much history
// Get loads per turn (0 = unlimited, per HistoryConfig.MaxHistoryMessages).
func NewStoreHistoryStore(messages store.MessageHistoryStore, interfaceType string, maxMessages int) *StoreHistoryStore {
	return &StoreHistoryStore{messages: messages, interfaceType: interfaceType, maxMessages: maxMessages}
}

func (s *StoreHistoryStore) Get(conversationID string) []providers.Message {
	ctx := context.Background()
	rows, err := s.messages.List(ctx, store.HistoryFilter{
		ConversationID: conversationID,
		MaxMessages:    s.maxMessages,
	})
	if err != nil {
		slog.Error("orchestrator: load history failed", "conversation_id", conversationID, "error", err)
		return nil
	}

	out := make([]providers.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, storeRowToMessage(row))
	}
	return out
}

func (s *StoreHistoryStore) Append(conversationID string, msgs ...providers.Message) {
	if len(msgs) == 0 {
		return
	}
	ctx := context.Background()
	rows := make([]*store.Message, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, s.messageToStoreRow(conversationID, m))
	}
	if err := s.messages.AppendBatch(ctx, rows); err != nil {
		slog.Error("orchestrator: append history failed", "conversation_id", conversationID, "error", err)
	}
}

func storeRowToMessage(row store.Message) providers.Message {
	m := providers.Message{Role: string(row.Role), Content: row.Content}
	if row.ToolCallID != nil {
		m.ToolCallID = *row.ToolCallID
	}
	for _, tc := range row.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, providers.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return m
}

func (s *StoreHistoryStore) messageToStoreRow(conversationID string, m providers.Message) *store.Message {
	row := &store.Message{
		InterfaceType:  s.interfaceType,
		ConversationID: conversationID,
		Role:           store.MessageRole(m.Role),
		Content:        m.Content,
	}
	if m.Role == "tool" {
		id := m.ToolCallID
		row.ToolCallID = &id
	}
	for _, tc := range m.ToolCalls {
		row.ToolCalls = append(row.ToolCalls, store.ToolCallRecord{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return row
}
