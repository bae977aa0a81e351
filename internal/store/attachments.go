package store

import (
	"context"
	"errors"
	"time"
)

// ErrAttachmentNotFound is returned when an attachment id has no matching row.
var ErrAttachmentNotFound = errors.New("store: attachment not found")

// Attachment is a metadata row tracked by the registry (§3.4).
type Attachment struct {
	AttachmentID   string               `json:"attachment_id"`
	SourceType     AttachmentSourceType `json:"source_type"`
	SourceID       string               `json:"source_id"`
	MimeType       string               `json:"mime_type"`
	Description    string               `json:"description,omitempty"`
	Size           int64                `json:"size"`
	ContentURL     string               `json:"content_url,omitempty"`
	StoragePath    string               `json:"storage_path,omitempty"`
	ConversationID *string              `json:"conversation_id,omitempty"`
	MessageID      *int64               `json:"message_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	AccessedAt     time.Time            `json:"accessed_at"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
}

// AttachmentFilter narrows ListAttachments.
type AttachmentFilter struct {
	ConversationID string
	SourceType     AttachmentSourceType // "" = any
	Limit          int
}

// AttachmentStore is the metadata half of the attachment registry (§4.7).
// Blob content lives in a separate content-addressed store (internal/attachments.BlobStore).
type AttachmentStore interface {
	Insert(ctx context.Context, a *Attachment) error

	// Get fetches metadata and bumps AccessedAt.
	Get(ctx context.Context, id string) (*Attachment, error)

	List(ctx context.Context, filter AttachmentFilter) ([]Attachment, error)

	// Delete removes the row iff authorized: either the caller's
	// conversationID matches the row's, or the row is unlinked (nil
	// ConversationID) and ownerSourceID matches SourceID. Returns
	// (deleted=false, nil) if not authorized or not found — never an error
	// for "not mine", to avoid leaking existence (TOCTOU-safe).
	Delete(ctx context.Context, id string, conversationID, ownerSourceID string) (deleted bool, err error)

	// ClaimUnlinked atomically assigns conversationID iff the row is still
	// unlinked (ConversationID nil) and SourceID == requiredSourceID.
	// Returns (nil, nil) if the row was already claimed or owned by someone
	// else — exactly one concurrent caller observes a non-nil result (§8).
	ClaimUnlinked(ctx context.Context, id, conversationID, requiredSourceID string) (*Attachment, error)

	// UpdateConversation unconditionally links id to conversationID.
	UpdateConversation(ctx context.Context, id, conversationID string) error

	// LinkMessage sets MessageID on an already-linked attachment.
	LinkMessage(ctx context.Context, id string, messageID int64) error

	// ReferencedIDs returns the full set of attachment ids present in
	// metadata, for orphan-sweep comparison against the blob store.
	ReferencedIDs(ctx context.Context) (map[string]bool, error)
}
