package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FS keeps blobs as flat files in a single directory.
type FS struct {
	root string
}

// NewFS creates the directory if needed and returns a store rooted at it.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", root, err)
	}
	return &FS{root: root}, nil
}

func (fs *FS) path(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(fs.root, key), nil
}

func (fs *FS) Put(_ context.Context, key string, r io.Reader) (int64, error) {
	fullPath, err := fs.path(key)
	if err != nil {
		return 0, err
	}

	// O_EXCL so an existing blob is never overwritten
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create blob %s: %w", key, err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		_ = os.Remove(fullPath)
		return 0, fmt.Errorf("write blob %s: %w", key, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fullPath)
		return 0, fmt.Errorf("close blob %s: %w", key, err)
	}

	return n, nil
}

func (fs *FS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := fs.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return f, nil
}

func (fs *FS) Delete(_ context.Context, key string) error {
	fullPath, err := fs.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}
