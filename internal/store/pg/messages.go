package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/familyassistant/core/internal/store"
)

// MessageHistoryStore is the Postgres-backed append-only message_history log.
type MessageHistoryStore struct {
	db *sql.DB
}

func NewMessageHistoryStore(db *sql.DB) *MessageHistoryStore {
	return &MessageHistoryStore{db: db}
}

func (s *MessageHistoryStore) Append(ctx context.Context, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	msg.Timestamp = store.Now()
	return s.insert(ctx, s.db, msg)
}

func (s *MessageHistoryStore) AppendBatch(ctx context.Context, ms []*store.Message) error {
	if len(ms) == 0 {
		return nil
	}
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := store.Now()
	for _, m := range ms {
		m.Timestamp = now
		if err := s.insert(ctx, tx, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *MessageHistoryStore) insert(ctx context.Context, ex execer, m *store.Message) error {
	if m.ThreadRootID != nil {
		var exists bool
		if err := ex.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM message_history WHERE internal_id = $1)`, *m.ThreadRootID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check thread_root_id: %w", err)
		}
		if !exists {
			return store.ErrInvalidMessage("thread_root_id does not reference an existing row")
		}
	}

	return ex.QueryRowContext(ctx,
		`INSERT INTO message_history
		 (interface_type, conversation_id, interface_message_id, turn_id, thread_root_id,
		  timestamp, role, content, tool_calls, tool_call_id, reasoning_info, error_traceback, attachments)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 RETURNING internal_id`,
		m.InterfaceType, m.ConversationID, m.InterfaceMessageID, m.TurnID, m.ThreadRootID,
		m.Timestamp, m.Role, m.Content, jsonOrNull(m.ToolCalls), m.ToolCallID,
		jsonOrNull(m.ReasoningInfo), m.ErrorTraceback, jsonOrNull(m.Attachments),
	).Scan(&m.InternalID)
}

func (s *MessageHistoryStore) List(ctx context.Context, filter store.HistoryFilter) ([]store.Message, error) {
	q := `SELECT internal_id, interface_type, conversation_id, interface_message_id, turn_id, thread_root_id,
	      timestamp, role, content, tool_calls, tool_call_id, reasoning_info, error_traceback, attachments
	      FROM message_history WHERE conversation_id = $1`
	args := []any{filter.ConversationID}
	n := 2
	if filter.MaxAge > 0 {
		q += fmt.Sprintf(" AND timestamp >= $%d", n)
		args = append(args, store.Now().Add(-filter.MaxAge))
		n++
	}
	q += " ORDER BY internal_id"
	if filter.MaxMessages > 0 {
		q += fmt.Sprintf(" DESC LIMIT $%d", n)
		args = append(args, filter.MaxMessages)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if filter.MaxMessages > 0 {
		// re-sort ascending since the LIMIT clause above ordered DESC to keep
		// the most recent N rows
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, rows.Err()
}

func (s *MessageHistoryStore) Get(ctx context.Context, internalID int64) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT internal_id, interface_type, conversation_id, interface_message_id, turn_id, thread_root_id,
		 timestamp, role, content, tool_calls, tool_call_id, reasoning_info, error_traceback, attachments
		 FROM message_history WHERE internal_id = $1`, internalID)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("message %d not found", internalID)
		}
		return nil, err
	}
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (store.Message, error) {
	var m store.Message
	var toolCalls, reasoning, attachments []byte
	if err := row.Scan(
		&m.InternalID, &m.InterfaceType, &m.ConversationID, &m.InterfaceMessageID, &m.TurnID, &m.ThreadRootID,
		&m.Timestamp, &m.Role, &m.Content, &toolCalls, &m.ToolCallID, &reasoning, &m.ErrorTraceback, &attachments,
	); err != nil {
		return store.Message{}, err
	}
	if err := decodeJSONInto(toolCalls, &m.ToolCalls); err != nil {
		return store.Message{}, err
	}
	if err := decodeJSONInto(reasoning, &m.ReasoningInfo); err != nil {
		return store.Message{}, err
	}
	if err := decodeJSONInto(attachments, &m.Attachments); err != nil {
		return store.Message{}, err
	}
	return m, nil
}
