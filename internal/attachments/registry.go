package attachments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/familyassistant/core/internal/store"
)

// Registry mediates attachment metadata (store.AttachmentStore) and blob
// content (BlobStore), and resolves visibility-grant label matching
// (Open Question 4: a grant matches iff every one of the attachment's
// required labels is present in the caller's grant set — AND-semantics).
type Registry struct {
	meta  store.AttachmentStore
	blobs *BlobStore
}

func NewRegistry(meta store.AttachmentStore, blobs *BlobStore) *Registry {
	return &Registry{meta: meta, blobs: blobs}
}

// Store writes content to the blob store and an accompanying metadata
// row, returning the new attachment.
func (r *Registry) Store(ctx context.Context, sourceType store.AttachmentSourceType, sourceID, mimeType, description string, content []byte, conversationID *string, metadata map[string]any) (*store.Attachment, error) {
	blobID, err := r.blobs.Put(content)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	a := &store.Attachment{
		AttachmentID:   store.NewID(),
		SourceType:     sourceType,
		SourceID:       sourceID,
		MimeType:       mimeType,
		Description:    description,
		Size:           int64(len(content)),
		StoragePath:    blobID,
		ConversationID: conversationID,
		Metadata:       metadata,
		CreatedAt:      store.Now(),
		AccessedAt:     store.Now(),
	}
	if err := r.meta.Insert(ctx, a); err != nil {
		return nil, fmt.Errorf("insert attachment metadata: %w", err)
	}
	return a, nil
}

// Get returns metadata and content together.
func (r *Registry) Get(ctx context.Context, id string) (*store.Attachment, []byte, error) {
	a, err := r.meta.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	content, err := r.blobs.Get(a.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read blob for attachment %s: %w", id, err)
	}
	return a, content, nil
}

// ClaimUnlinked delegates to the store's atomic claim — exactly one
// concurrent caller observes a non-nil result (§8 property).
func (r *Registry) ClaimUnlinked(ctx context.Context, id, conversationID, requiredSourceID string) (*store.Attachment, error) {
	return r.meta.ClaimUnlinked(ctx, id, conversationID, requiredSourceID)
}

// ListForConversation lists the attachments already linked to a
// conversation. It applies no attachment_selection_threshold filtering,
// and no caller in the orchestrator applies one either.
func (r *Registry) ListForConversation(ctx context.Context, conversationID string, limit int) ([]store.Attachment, error) {
	return r.meta.List(ctx, store.AttachmentFilter{ConversationID: conversationID, Limit: limit})
}

// Delete removes the metadata row (TOCTOU-safe: never errors for "not
// mine", only reports whether it actually deleted). The blob itself is
// reclaimed later by SweepOrphans, not deleted inline, since another row
// may still reference the same content-addressed blob.
func (r *Registry) Delete(ctx context.Context, id, conversationID, ownerSourceID string) (bool, error) {
	return r.meta.Delete(ctx, id, conversationID, ownerSourceID)
}

// GrantAllows reports whether grantLabels (the caller's visibility
// grant) covers requiredLabels (the attachment or note's own labels):
// every element of requiredLabels must be present in grantLabels. An
// attachment with no labels is always visible.
func GrantAllows(grantLabels, requiredLabels []string) bool {
	if len(requiredLabels) == 0 {
		return true
	}
	grants := make(map[string]bool, len(grantLabels))
	for _, g := range grantLabels {
		grants[g] = true
	}
	for _, need := range requiredLabels {
		if !grants[need] {
			return false
		}
	}
	return true
}

// SweepOrphans deletes any blob not referenced by a metadata row's
// Metadata (via ReferencedIDs), matching the teacher's periodic cleanup
// pattern for unreferenced local files.
func (r *Registry) SweepOrphans(ctx context.Context, blobIDs []string) (removed int, err error) {
	referenced, err := r.meta.ReferencedIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list referenced ids: %w", err)
	}
	for _, id := range blobIDs {
		if referenced[id] {
			continue
		}
		if err := r.blobs.Delete(id); err != nil {
			slog.Warn("attachments: failed to sweep orphaned blob", "id", id, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
