// Package attachments implements the §4.7 attachment registry: a
// content-addressed blob store for binary artifacts plus a Registry that
// mediates visibility/conversation scoping on top of
// store.AttachmentStore. Path handling follows the sanitization
// conventions of the teacher's internal/tools/filesystem.go (reject any
// path component containing "..", always resolve within a fixed root).
package attachments

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidID = errors.New("attachments: invalid blob id")

// BlobStore is a content-addressed directory store: a blob's id is the
// hex sha256 of its content, sharded two levels deep to keep any one
// directory from growing unbounded.
type BlobStore struct {
	root string
}

func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Put writes content and returns its content-addressed id. Writes to a
// temp file first and renames into place so a concurrent Get never
// observes a partially-written blob, then fsyncs the containing
// directory so the rename itself is durable.
func (b *BlobStore) Put(content []byte) (string, error) {
	sum := sha256.Sum256(content)
	id := hex.EncodeToString(sum[:])

	path, err := b.pathFor(id)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return id, nil // already stored, content-addressed so this is a no-op
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create blob shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("fsync temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename temp blob: %w", err)
	}
	if dirFile, err := os.Open(dir); err == nil {
		dirFile.Sync()
		dirFile.Close()
	}
	return id, nil
}

// Get reads a blob's full content by id.
func (b *BlobStore) Get(id string) ([]byte, error) {
	path, err := b.pathFor(id)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Reader opens a streaming reader for a blob, for large attachments the
// caller doesn't want to fully buffer.
func (b *BlobStore) Reader(id string) (io.ReadCloser, error) {
	path, err := b.pathFor(id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes a blob by id. Used by the orphan sweep once no
// attachment row references the id any longer.
func (b *BlobStore) Delete(id string) error {
	path, err := b.pathFor(id)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether a blob with the given id is present.
func (b *BlobStore) Exists(id string) bool {
	path, err := b.pathFor(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (b *BlobStore) pathFor(id string) (string, error) {
	if len(id) < 4 || strings.ContainsAny(id, "./\\") {
		return "", ErrInvalidID
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", ErrInvalidID
		}
	}
	return filepath.Join(b.root, id[:2], id[2:4], id), nil
}
