package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/familyassistant/core/internal/store"
)

// AttachmentStore is the Postgres-backed metadata half of the attachment
// registry (§4.7). ClaimUnlinked follows the same conditional-UPDATE +
// RowsAffected claim pattern as the task queue's Dequeue.
type AttachmentStore struct {
	db *sql.DB
}

func NewAttachmentStore(db *sql.DB) *AttachmentStore {
	return &AttachmentStore{db: db}
}

const attachmentColumns = `attachment_id, source_type, source_id, mime_type, description, size,
	content_url, storage_path, conversation_id, message_id, created_at, accessed_at, metadata`

func scanAttachment(row rowScanner) (store.Attachment, error) {
	var a store.Attachment
	var description, contentURL, storagePath *string
	var metadata []byte
	if err := row.Scan(
		&a.AttachmentID, &a.SourceType, &a.SourceID, &a.MimeType, &description, &a.Size,
		&contentURL, &storagePath, &a.ConversationID, &a.MessageID, &a.CreatedAt, &a.AccessedAt, &metadata,
	); err != nil {
		return store.Attachment{}, err
	}
	a.Description = derefStr(description)
	a.ContentURL = derefStr(contentURL)
	a.StoragePath = derefStr(storagePath)
	if err := decodeJSONInto(metadata, &a.Metadata); err != nil {
		return store.Attachment{}, err
	}
	return a, nil
}

func (s *AttachmentStore) Insert(ctx context.Context, a *store.Attachment) error {
	if a.AttachmentID == "" {
		a.AttachmentID = store.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = store.Now()
	}
	a.AccessedAt = a.CreatedAt
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (attachment_id, source_type, source_id, mime_type, description, size,
		 content_url, storage_path, conversation_id, message_id, created_at, accessed_at, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.AttachmentID, a.SourceType, a.SourceID, a.MimeType, nilStr(a.Description), a.Size,
		nilStr(a.ContentURL), nilStr(a.StoragePath), a.ConversationID, a.MessageID, a.CreatedAt, a.AccessedAt,
		jsonOrNull(a.Metadata),
	)
	return err
}

func (s *AttachmentStore) Get(ctx context.Context, id string) (*store.Attachment, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE attachments SET accessed_at = $1 WHERE attachment_id = $2`, store.Now(), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrAttachmentNotFound
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+attachmentColumns+" FROM attachments WHERE attachment_id = $1", id)
	a, err := scanAttachment(row)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AttachmentStore) List(ctx context.Context, filter store.AttachmentFilter) ([]store.Attachment, error) {
	q := "SELECT " + attachmentColumns + " FROM attachments WHERE conversation_id = $1"
	args := []any{filter.ConversationID}
	if filter.SourceType != "" {
		q += " AND source_type = $2"
		args = append(args, filter.SourceType)
	}
	q += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AttachmentStore) Delete(ctx context.Context, id string, conversationID, ownerSourceID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM attachments WHERE attachment_id = $1
		 AND (conversation_id = $2 OR (conversation_id IS NULL AND source_id = $3))`,
		id, conversationID, ownerSourceID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *AttachmentStore) ClaimUnlinked(ctx context.Context, id, conversationID, requiredSourceID string) (*store.Attachment, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attachments SET conversation_id = $1, accessed_at = $2
		 WHERE attachment_id = $3 AND conversation_id IS NULL AND source_id = $4`,
		conversationID, store.Now(), id, requiredSourceID,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+attachmentColumns+" FROM attachments WHERE attachment_id = $1", id)
	a, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *AttachmentStore) UpdateConversation(ctx context.Context, id, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attachments SET conversation_id = $1 WHERE attachment_id = $2`, conversationID, id)
	return err
}

func (s *AttachmentStore) LinkMessage(ctx context.Context, id string, messageID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attachments SET message_id = $1 WHERE attachment_id = $2`, messageID, id)
	return err
}

func (s *AttachmentStore) ReferencedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT attachment_id FROM attachments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
