// Package storage provides the object-storage boundary for receipt
// attachments. The interface keeps a remote backend swappable; the shipped
// implementation writes to local disk and serves files through the static
// file handler.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// ReceiptStore uploads a receipt and returns the public URL it will be
// reachable under.
type ReceiptStore interface {
	Save(ctx context.Context, originalName, contentType string, r io.Reader) (string, error)
}

// extByType maps the accepted receipt content types to stored extensions.
// Anything outside this map is rejected before reaching the store.
var extByType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// AllowedContentType reports whether ct is an accepted receipt type.
func AllowedContentType(ct string) bool {
	_, ok := extByType[ct]
	return ok
}

// DiskStore stores receipts under a local directory.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates the backing directory if needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating receipt dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: baseURL}, nil
}

// Save writes the receipt under a fresh UUID name. The original filename is
// discarded; only its content type decides the extension.
func (s *DiskStore) Save(ctx context.Context, originalName, contentType string, r io.Reader) (string, error) {
	ext, ok := extByType[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported receipt content type %q", contentType)
	}

	name := uuid.NewString() + ext
	dst := filepath.Join(s.dir, name)

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("creating receipt file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("writing receipt: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("closing receipt: %w", err)
	}

	return path.Join(s.baseURL, name), nil
}
