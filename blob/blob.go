// Package blob stores raw file contents under server generated keys.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotExist is returned by Open when no blob is stored under the key.
var ErrNotExist = errors.New("blob does not exist")

// Store is a write-once blob store. Delete returns nil if the blob is already gone.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "\x00")
}
