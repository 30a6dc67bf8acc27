package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// FileBlobStore writes one file per blob under a private directory. Item ids
// are uuids, but the name is sanitized anyway so a bad id cannot escape dir.
type FileBlobStore struct{ dir string }

func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FileBlobStore{dir: dir}, nil
}

func (f *FileBlobStore) path(itemID string) string {
	name := strings.ReplaceAll(itemID, string(os.PathSeparator), "_")
	return filepath.Join(f.dir, filepath.Base(name)+".blob")
}

func (f *FileBlobStore) Put(_ context.Context, itemID string, data []byte) error {
	return os.WriteFile(f.path(itemID), data, 0600)
}

func (f *FileBlobStore) Get(_ context.Context, itemID string) ([]byte, error) {
	b, err := os.ReadFile(f.path(itemID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *FileBlobStore) Delete(_ context.Context, itemID string) error {
	err := os.Remove(f.path(itemID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
