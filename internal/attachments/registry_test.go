package attachments

import (
	"bytes"
	"context"
	"testing"

	"github.com/familyassistant/core/internal/store"
)

type fakeAttachmentStore struct {
	rows map[string]*store.Attachment
}

func newFakeAttachmentStore() *fakeAttachmentStore {
	return &fakeAttachmentStore{rows: make(map[string]*store.Attachment)}
}

func (f *fakeAttachmentStore) Insert(ctx context.Context, a *store.Attachment) error {
	cp := *a
	f.rows[a.AttachmentID] = &cp
	return nil
}

func (f *fakeAttachmentStore) Get(ctx context.Context, id string) (*store.Attachment, error) {
	a, ok := f.rows[id]
	if !ok {
		return nil, store.ErrAttachmentNotFound
	}
	return a, nil
}

func (f *fakeAttachmentStore) List(ctx context.Context, filter store.AttachmentFilter) ([]store.Attachment, error) {
	var out []store.Attachment
	for _, a := range f.rows {
		if filter.ConversationID != "" && (a.ConversationID == nil || *a.ConversationID != filter.ConversationID) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeAttachmentStore) Delete(ctx context.Context, id string, conversationID, ownerSourceID string) (bool, error) {
	a, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	authorized := (a.ConversationID != nil && *a.ConversationID == conversationID) ||
		(a.ConversationID == nil && a.SourceID == ownerSourceID)
	if !authorized {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

func (f *fakeAttachmentStore) ClaimUnlinked(ctx context.Context, id, conversationID, requiredSourceID string) (*store.Attachment, error) {
	a, ok := f.rows[id]
	if !ok || a.ConversationID != nil || a.SourceID != requiredSourceID {
		return nil, nil
	}
	cid := conversationID
	a.ConversationID = &cid
	return a, nil
}

func (f *fakeAttachmentStore) UpdateConversation(ctx context.Context, id, conversationID string) error {
	a, ok := f.rows[id]
	if !ok {
		return store.ErrAttachmentNotFound
	}
	cid := conversationID
	a.ConversationID = &cid
	return nil
}

func (f *fakeAttachmentStore) LinkMessage(ctx context.Context, id string, messageID int64) error {
	a, ok := f.rows[id]
	if !ok {
		return store.ErrAttachmentNotFound
	}
	a.MessageID = &messageID
	return nil
}

func (f *fakeAttachmentStore) ReferencedIDs(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, a := range f.rows {
		out[a.StoragePath] = true
	}
	return out, nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeAttachmentStore) {
	t.Helper()
	blobs, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}
	meta := newFakeAttachmentStore()
	return NewRegistry(meta, blobs), meta
}

func TestRegistry_StoreAndGet(t *testing.T) {
	r, _ := newTestRegistry(t)
	content := []byte("attachment bytes")

	a, err := r.Store(context.Background(), store.AttachmentSourceUser, "src-1", "text/plain", "a note", content, nil, nil)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if a.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", a.Size, len(content))
	}

	got, gotContent, err := r.Get(context.Background(), a.AttachmentID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AttachmentID != a.AttachmentID {
		t.Errorf("AttachmentID mismatch")
	}
	if !bytes.Equal(gotContent, content) {
		t.Errorf("content = %q, want %q", gotContent, content)
	}
}

func TestRegistry_ClaimUnlinked(t *testing.T) {
	r, _ := newTestRegistry(t)
	a, err := r.Store(context.Background(), store.AttachmentSourceTool, "tool-x", "text/plain", "", []byte("data"), nil, nil)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	claimed, err := r.ClaimUnlinked(context.Background(), a.AttachmentID, "conv-1", "tool-x")
	if err != nil {
		t.Fatalf("ClaimUnlinked() error = %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a non-nil claim")
	}

	// A second claim with the wrong source id must fail.
	second, err := r.ClaimUnlinked(context.Background(), a.AttachmentID, "conv-2", "tool-x")
	if err != nil {
		t.Fatalf("second ClaimUnlinked() error = %v", err)
	}
	if second != nil {
		t.Error("expected second claim on an already-linked attachment to return nil")
	}
}

func TestRegistry_DeleteUnauthorized(t *testing.T) {
	r, _ := newTestRegistry(t)
	a, err := r.Store(context.Background(), store.AttachmentSourceUser, "owner-1", "text/plain", "", []byte("data"), nil, nil)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	deleted, err := r.Delete(context.Background(), a.AttachmentID, "", "someone-else")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted {
		t.Error("expected Delete to refuse an unauthorized caller")
	}

	deleted, err = r.Delete(context.Background(), a.AttachmentID, "", "owner-1")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("expected Delete to succeed for the owning source id")
	}
}

func TestGrantAllows(t *testing.T) {
	tests := []struct {
		name     string
		grants   []string
		required []string
		want     bool
	}{
		{"no required labels always visible", []string{"parent"}, nil, true},
		{"subset satisfied", []string{"parent", "admin"}, []string{"parent"}, true},
		{"all required present", []string{"parent", "admin"}, []string{"parent", "admin"}, true},
		{"missing one required label", []string{"parent"}, []string{"parent", "admin"}, false},
		{"no grants with required labels", nil, []string{"parent"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GrantAllows(tt.grants, tt.required); got != tt.want {
				t.Errorf("GrantAllows(%v, %v) = %v, want %v", tt.grants, tt.required, got, tt.want)
			}
		})
	}
}

func TestRegistry_SweepOrphans(t *testing.T) {
	r, _ := newTestRegistry(t)
	kept, err := r.Store(context.Background(), store.AttachmentSourceUser, "s1", "text/plain", "", []byte("keep me"), nil, nil)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	orphanID, err := r.blobs.Put([]byte("orphaned content"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	removed, err := r.SweepOrphans(context.Background(), []string{kept.StoragePath, orphanID})
	if err != nil {
		t.Fatalf("SweepOrphans() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if r.blobs.Exists(orphanID) {
		t.Error("expected orphaned blob to be removed")
	}
	if !r.blobs.Exists(kept.StoragePath) {
		t.Error("expected referenced blob to survive the sweep")
	}
}
