package attachments

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestBlobStore_PutGetRoundtrip(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}

	content := []byte("hello, attachments")
	id, err := b.Put(content)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if len(id) != 64 {
		t.Fatalf("expected a 64-char hex sha256 id, got %q (%d chars)", id, len(id))
	}

	got, err := b.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Get() = %q, want %q", got, content)
	}
}

func TestBlobStore_PutIsIdempotent(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}

	content := []byte("same content twice")
	id1, err := b.Put(content)
	if err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	id2, err := b.Put(content)
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("content-addressed ids differ: %q vs %q", id1, id2)
	}
}

func TestBlobStore_Reader(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}

	content := []byte("streamed content")
	id, err := b.Put(content)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, err := b.Reader(id)
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Reader content = %q, want %q", got, content)
	}
}

func TestBlobStore_DeleteAndExists(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}

	id, err := b.Put([]byte("to be deleted"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !b.Exists(id) {
		t.Fatal("expected blob to exist after Put")
	}

	if err := b.Delete(id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if b.Exists(id) {
		t.Error("expected blob to be gone after Delete")
	}

	// Deleting again is a no-op, not an error.
	if err := b.Delete(id); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestBlobStore_InvalidID(t *testing.T) {
	b, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}

	for _, id := range []string{"", "ab", "../../etc/passwd", "zzzz", "has/slash0000000000000000000000000000000000000000000000000000"} {
		if _, err := b.Get(id); err != ErrInvalidID {
			t.Errorf("Get(%q) error = %v, want ErrInvalidID", id, err)
		}
		if b.Exists(id) {
			t.Errorf("Exists(%q) = true, want false for invalid id", id)
		}
	}
}

func TestBlobStore_ShardsByPrefix(t *testing.T) {
	root := t.TempDir()
	b, err := NewBlobStore(root)
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}

	id, err := b.Put([]byte("shard test"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	expected := filepath.Join(root, id[:2], id[2:4], id)
	if _, err := os.Stat(expected); err != nil {
		t.Errorf("expected blob at sharded path %s, stat error = %v", expected, err)
	}
}
