package store

import (
	"context"
	"time"
)

// ToolCallRecord is the structured shape stored on an assistant message's
// tool_calls column (§3.1). It round-trips bytes-identically through the
// storage layer — callers must not mutate Arguments after persisting.
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// AttachmentRef is an attachment id plus the role it plays on the message it
// is attached to (e.g. "inline", "reply").
type AttachmentRef struct {
	AttachmentID string `json:"attachment_id"`
	Role         string `json:"role,omitempty"`
}

// Message is one row of the append-only message_history log (§3.1).
type Message struct {
	InternalID          int64           `json:"internal_id"`
	InterfaceType        string          `json:"interface_type"`
	ConversationID       string          `json:"conversation_id"`
	InterfaceMessageID   *string         `json:"interface_message_id,omitempty"`
	TurnID               *string         `json:"turn_id,omitempty"`
	ThreadRootID         *int64          `json:"thread_root_id,omitempty"`
	Timestamp            time.Time       `json:"timestamp"`
	Role                 MessageRole     `json:"role"`
	Content              string          `json:"content"`
	ToolCalls            []ToolCallRecord `json:"tool_calls,omitempty"`
	ToolCallID           *string         `json:"tool_call_id,omitempty"`
	ReasoningInfo        map[string]any  `json:"reasoning_info,omitempty"`
	ErrorTraceback       *string         `json:"error_traceback,omitempty"`
	Attachments          []AttachmentRef `json:"attachments,omitempty"`
}

// Validate enforces the §3.1 invariants before a row is persisted.
func (m *Message) Validate() error {
	if (m.Role == RoleTool) != (m.ToolCallID != nil) {
		return ErrInvalidMessage("tool_call_id must be present iff role=tool")
	}
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return ErrInvalidMessage("tool_calls only valid on role=assistant")
	}
	return nil
}

// ErrInvalidMessage is a message-shape invariant violation.
type ErrInvalidMessage string

func (e ErrInvalidMessage) Error() string { return "invalid message: " + string(e) }

// HistoryFilter narrows a message history read.
type HistoryFilter struct {
	ConversationID string
	MaxMessages    int           // 0 = unlimited
	MaxAge         time.Duration // 0 = unlimited
}

// MessageHistoryStore is the append-only log described in §3.1.
type MessageHistoryStore interface {
	// Append writes msg, assigning InternalID and Timestamp, validating
	// invariants and that ThreadRootID (if set) references an existing row.
	Append(ctx context.Context, msg *Message) error

	// AppendBatch writes multiple rows sharing a causal order and TurnID in
	// one transaction, preserving the order of ms.
	AppendBatch(ctx context.Context, ms []*Message) error

	// List returns the conversation's history matching filter, oldest first.
	List(ctx context.Context, filter HistoryFilter) ([]Message, error)

	// Get fetches a single row by InternalID.
	Get(ctx context.Context, internalID int64) (*Message, error)
}
