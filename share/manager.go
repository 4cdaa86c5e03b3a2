package share

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liondadev/quick-file-share/blob"
	"github.com/liondadev/quick-file-share/credential"
	"github.com/liondadev/quick-file-share/store"
	"github.com/liondadev/quick-file-share/types"
)

const (
	DefaultExpiry    = 30 * time.Minute
	MaxExpiryMinutes = 1440

	defaultMimeType = "application/octet-stream"
)

type Options struct {
	// BaseURL is the public address share links are built on.
	BaseURL string
	// RevokeOnChange revokes outstanding download tokens when a share's
	// password changes or the share is swept.
	RevokeOnChange bool

	Logger *slog.Logger
	Now    func() time.Time
}

type Manager struct {
	store  Store
	blobs  blob.Store
	hasher Hasher
	signer Signer
	audit  Auditor

	base           *url.URL
	revokeOnChange bool
	logger         *slog.Logger
	now            func() time.Time
}

func NewManager(st Store, blobs blob.Store, hasher Hasher, signer Signer, auditor Auditor, opts Options) (*Manager, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	m := &Manager{
		store:          st,
		blobs:          blobs,
		hasher:         hasher,
		signer:         signer,
		audit:          auditor,
		base:           base,
		revokeOnChange: opts.RevokeOnChange,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// ShareLink is the client facing link to a share's download page.
func (m *Manager) ShareLink(publicId string) string {
	return m.base.JoinPath("download", publicId).String()
}

// Created is the result of CreateShare.
type Created struct {
	Share *types.Share
	Link  string
}

// displayName strips any directory a client put in front of the filename.
func displayName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "unnamed"
	}
	return name
}

// CreateShare stores every upload under a fresh locator and records a new
// share for them, expiring DefaultExpiry from now.
func (m *Manager) CreateShare(ctx context.Context, owner *types.User, uploads []Upload) (*Created, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", ErrInvalidArgument)
	}

	files := make([]types.File, 0, len(uploads))
	for _, up := range uploads {
		locator := uuid.NewString()
		size, err := m.blobs.Put(ctx, locator, up.Body)
		if err != nil {
			m.discardBlobs(files)
			return nil, fmt.Errorf("store %q: %w", up.Filename, err)
		}

		mime := up.MimeType
		if mime == "" {
			mime = defaultMimeType
		}
		files = append(files, types.File{
			Filename: displayName(up.Filename),
			Locator:  locator,
			MimeType: mime,
			Size:     size,
		})
	}

	now := m.now()
	share := &types.Share{
		PublicId:  uuid.NewString(),
		OwnerId:   owner.Id,
		CreatedAt: now.Unix(),
		ExpiresAt: sql.NullInt64{Int64: now.Add(DefaultExpiry).Unix(), Valid: true},
		IsShared:  true,
	}
	if err := m.store.CreateShare(ctx, share, files); err != nil {
		m.discardBlobs(files)
		return nil, fmt.Errorf("create share: %w", err)
	}

	names := make([]string, len(share.Files))
	for i, f := range share.Files {
		names[i] = f.Filename
	}
	m.audit.Record(ctx, "upload", map[string]any{
		"username": owner.Username,
		"share_id": share.PublicId,
		"files":    names,
	})

	return &Created{Share: share, Link: m.ShareLink(share.PublicId)}, nil
}

// discardBlobs removes blobs written for a share that never got recorded.
func (m *Manager) discardBlobs(files []types.File) {
	// the request context may already be cancelled here
	ctx := context.Background()
	for _, f := range files {
		if err := m.blobs.Delete(ctx, f.Locator); err != nil {
			m.logger.Error("failed to remove orphaned blob", "locator", f.Locator, "error", err)
		}
	}
}

// Settings is an owner's change to a share. Nil fields are left alone.
type Settings struct {
	// Password set to "" removes the password.
	Password       *string
	ExpiresMinutes *int
}

// UpdateSettings applies the owner's settings to the share. Shares that don't
// exist and shares owned by someone else both give ErrNotFound.
func (m *Manager) UpdateSettings(ctx context.Context, publicId string, ownerId int64, s Settings) (*types.Share, error) {
	var upd store.SettingsUpdate

	if s.ExpiresMinutes != nil {
		minutes := *s.ExpiresMinutes
		if minutes < 0 || minutes > MaxExpiryMinutes {
			return nil, fmt.Errorf("%w: expires_minutes must be between 0 and %d", ErrInvalidArgument, MaxExpiryMinutes)
		}
		at := m.now().Add(time.Duration(minutes) * time.Minute).Unix()
		upd.ExpiresAt = &at
	}

	if s.Password != nil {
		if len(*s.Password) > credential.MaxSecretBytes {
			return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidArgument, credential.MaxSecretBytes)
		}

		hash := sql.NullString{}
		if *s.Password != "" {
			hashed, err := m.hasher.Hash(*s.Password)
			if err != nil {
				return nil, err
			}
			hash = sql.NullString{String: hashed, Valid: true}
		}
		upd.PasswordHash = &hash
	}

	share, err := m.store.UpdateShareSettings(ctx, publicId, ownerId, upd)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("update %s: %w", publicId, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if m.revokeOnChange && s.Password != nil {
		if err := m.signer.Revoke(ctx, fileIds(share.Files)...); err != nil {
			m.logger.Error("failed to revoke download tokens", "share", publicId, "error", err)
		}
	}

	return share, nil
}

// GetLiveShare returns the share if it exists and hasn't expired.
func (m *Manager) GetLiveShare(ctx context.Context, publicId string) (*types.Share, error) {
	share, err := m.store.ShareByPublicId(ctx, publicId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", publicId, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !share.IsShared {
		return nil, fmt.Errorf("%s: %w", publicId, ErrNotFound)
	}
	if share.ExpiredAt(m.now()) {
		return nil, fmt.Errorf("%s: %w", publicId, ErrExpired)
	}
	return share, nil
}
