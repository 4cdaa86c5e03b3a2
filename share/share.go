// Package share implements the share lifecycle: creating shares from
// uploads, owner settings, the unlock gate that hands out download tokens,
// and the sweeper that purges expired shares.
package share

import (
	"context"
	"errors"
	"io"

	"github.com/liondadev/quick-file-share/store"
	"github.com/liondadev/quick-file-share/types"
)

var (
	ErrNotFound        = errors.New("share not found")
	ErrExpired         = errors.New("link expired")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("unsupported")
)

// Store is the persistence the share package needs.
type Store interface {
	CreateShare(ctx context.Context, share *types.Share, files []types.File) error
	ShareByPublicId(ctx context.Context, publicId string) (*types.Share, error)
	ShareById(ctx context.Context, id int64) (*types.Share, error)
	UpdateShareSettings(ctx context.Context, publicId string, ownerId int64, upd store.SettingsUpdate) (*types.Share, error)
	ExpiredShares(ctx context.Context, before int64) ([]types.Share, error)
	DeleteShare(ctx context.Context, shareId int64) error
	FileById(ctx context.Context, id int64) (*types.File, error)
}

type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// Signer mints and checks download tokens.
type Signer interface {
	Issue(fileId int64) (string, error)
	Validate(ctx context.Context, token string) (int64, error)
	Revoke(ctx context.Context, fileIds ...int64) error
}

// Auditor receives audit events. Record must not block for long; it is
// called inline on the request path.
type Auditor interface {
	Record(ctx context.Context, event string, details map[string]any)
}

// Upload is one file handed to Manager.CreateShare.
type Upload struct {
	Filename string
	MimeType string
	Body     io.Reader
}

// Status is what a recipient sees for a share: whether it still needs a
// password, and otherwise a download token per file.
type Status struct {
	Locked bool
	Files  []FileToken
}

type FileToken struct {
	FileId   int64
	Filename string
	Token    string
}

func fileIds(files []types.File) []int64 {
	ids := make([]int64, len(files))
	for i, f := range files {
		ids[i] = f.Id
	}
	return ids
}
