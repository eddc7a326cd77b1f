package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lucerna/catalog-engine/internal/domain"
)

// BlobStore persists binary artifacts (uploaded PDFs, product image crops)
// and resolves the opaque refs stored alongside database rows.
type BlobStore interface {
	Save(prefix, name string, data []byte) (ref string, err error)
	Open(ref string) (io.ReadCloser, error)
	Path(ref string) (string, error)
	Delete(ref string) error
}

// Blob prefixes.
const (
	BlobPrefixPDF   = "pdfs"
	BlobPrefixImage = "images"
)

// FSStore is a filesystem BlobStore rooted at a single directory. Refs are
// slash-separated paths relative to the root.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, domain.ConfigError("blob root is required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.IOError("failed to create blob root", err)
	}
	return &FSStore{root: root}, nil
}

// Save writes data under prefix with a uuid-prefixed file name and returns
// the ref.
func (s *FSStore) Save(prefix, name string, data []byte) (string, error) {
	dir := filepath.Join(s.root, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.IOError("failed to create blob directory", err)
	}
	fileName := fmt.Sprintf("%s_%s", uuid.New().String(), sanitizeName(name))
	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0o644); err != nil {
		return "", domain.IOError("failed to write blob", err)
	}
	return prefix + "/" + fileName, nil
}

// Open returns a reader over the blob behind ref.
func (s *FSStore) Open(ref string) (io.ReadCloser, error) {
	path, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.IOError("failed to open blob", err)
	}
	return f, nil
}

// Path resolves ref to an absolute file path, rejecting refs that escape the
// root.
func (s *FSStore) Path(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", domain.ValidationError(fmt.Sprintf("invalid blob ref %q", ref), nil)
	}
	return filepath.Join(s.root, clean), nil
}

// Delete removes the blob behind ref. Missing blobs are not an error.
func (s *FSStore) Delete(ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return domain.IOError("failed to delete blob", err)
	}
	return nil
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "blob"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
