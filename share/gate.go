package share

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/liondadev/quick-file-share/blob"
	"github.com/liondadev/quick-file-share/store"
	"github.com/liondadev/quick-file-share/thumbnail"
	"github.com/liondadev/quick-file-share/token"
	"github.com/liondadev/quick-file-share/types"
)

const auditDownload = "download"

// Gate decides who gets download tokens for a share and turns tokens back
// into file contents.
type Gate struct {
	m *Manager
}

func NewGate(m *Manager) *Gate {
	return &Gate{m: m}
}

func (g *Gate) tokens(share *types.Share) (*Status, error) {
	st := &Status{Files: make([]FileToken, 0, len(share.Files))}
	for _, f := range share.Files {
		tok, err := g.m.signer.Issue(f.Id)
		if err != nil {
			return nil, err
		}
		st.Files = append(st.Files, FileToken{FileId: f.Id, Filename: f.Filename, Token: tok})
	}
	return st, nil
}

// CheckStatus reports whether a live share is locked. Open shares get their
// download tokens right away.
func (g *Gate) CheckStatus(ctx context.Context, publicId string) (*Status, error) {
	share, err := g.m.GetLiveShare(ctx, publicId)
	if err != nil {
		return nil, err
	}

	if share.Locked() {
		g.m.audit.Record(ctx, auditDownload, map[string]any{
			"event":     "share_access",
			"public_id": publicId,
			"status":    "locked_waiting_password",
		})
		return &Status{Locked: true, Files: []FileToken{}}, nil
	}

	st, err := g.tokens(share)
	if err != nil {
		return nil, err
	}
	g.m.audit.Record(ctx, auditDownload, map[string]any{
		"event":     "share_access",
		"public_id": publicId,
		"status":    "success",
	})
	return st, nil
}

// Unlock checks password against a locked share and hands out download
// tokens on success. Open shares unlock with any password.
func (g *Gate) Unlock(ctx context.Context, publicId, password string) (*Status, error) {
	share, err := g.m.GetLiveShare(ctx, publicId)
	if err != nil {
		return nil, err
	}

	if share.Locked() && (password == "" || !g.m.hasher.Verify(password, share.PasswordHash.String)) {
		g.m.audit.Record(ctx, auditDownload, map[string]any{
			"event":     "unlock_attempt",
			"public_id": publicId,
			"status":    "failure_incorrect_password",
		})
		return nil, fmt.Errorf("incorrect password for %s: %w", publicId, ErrUnauthorized)
	}

	st, err := g.tokens(share)
	if err != nil {
		return nil, err
	}
	g.m.audit.Record(ctx, auditDownload, map[string]any{
		"event":     "unlock_attempt",
		"public_id": publicId,
		"status":    "success",
	})
	return st, nil
}

func (g *Gate) fileForToken(ctx context.Context, tok string) (*types.File, error) {
	fileId, err := g.m.signer.Validate(ctx, tok)
	if errors.Is(err, token.ErrInvalidToken) {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if err != nil {
		return nil, err
	}

	f, err := g.m.store.FileById(ctx, fileId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("file %d: %w", fileId, ErrNotFound)
	}
	return f, err
}

// Fetch resolves a download token to the file record and its contents. The
// caller closes the reader.
func (g *Gate) Fetch(ctx context.Context, tok string) (*types.File, io.ReadCloser, error) {
	f, err := g.fileForToken(ctx, tok)
	if err != nil {
		return nil, nil, err
	}

	rc, err := g.m.blobs.Open(ctx, f.Locator)
	if errors.Is(err, blob.ErrNotExist) {
		return nil, nil, fmt.Errorf("contents of file %d: %w", f.Id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	g.m.audit.Record(ctx, auditDownload, map[string]any{
		"event":    "file_download",
		"filename": f.Filename,
		"file_id":  f.Id,
	})
	return f, rc, nil
}

// thumbnailKey is where the rendered thumbnail of a blob is cached.
func thumbnailKey(locator string, format thumbnail.Format) string {
	return locator + ".thumbnail." + string(format)
}

// Thumbnail returns a preview image of the file behind a download token,
// rendering and caching it on first use.
func (g *Gate) Thumbnail(ctx context.Context, tok string, format thumbnail.Format) ([]byte, error) {
	f, err := g.fileForToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	if !thumbnail.Supported(f.MimeType) {
		return nil, fmt.Errorf("thumbnail of %s: %w", f.MimeType, ErrUnsupported)
	}

	key := thumbnailKey(f.Locator, format)
	if cached, err := g.m.blobs.Open(ctx, key); err == nil {
		defer cached.Close()
		return io.ReadAll(cached)
	} else if !errors.Is(err, blob.ErrNotExist) {
		return nil, err
	}

	original, err := g.m.blobs.Open(ctx, f.Locator)
	if errors.Is(err, blob.ErrNotExist) {
		return nil, fmt.Errorf("contents of file %d: %w", f.Id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer original.Close()

	thumb, err := thumbnail.Make(f.MimeType, original, format)
	if errors.Is(err, thumbnail.ErrCorrupt) {
		// the mime type came from the uploader and may not match the bytes
		return nil, fmt.Errorf("thumbnail of file %d: %w: %w", f.Id, ErrUnsupported, err)
	}
	if err != nil {
		return nil, fmt.Errorf("thumbnail of file %d: %w", f.Id, err)
	}

	g.cacheThumbnail(ctx, f, key, thumb)
	return thumb, nil
}

// cacheThumbnail stores a rendered thumbnail next to its original. Sweeps only
// touch expired shares, so when the share is still live after the put the
// sweeper will reap the key with it; otherwise the key is removed here.
func (g *Gate) cacheThumbnail(ctx context.Context, f *types.File, key string, thumb []byte) {
	// a concurrent request may have cached it first, either copy is fine
	if _, err := g.m.blobs.Put(ctx, key, bytes.NewReader(thumb)); err != nil {
		g.m.logger.Warn("failed to cache thumbnail", "file", f.Id, "error", err)
		return
	}

	sh, err := g.m.store.ShareById(ctx, f.ShareId)
	if err == nil && !sh.ExpiredAt(g.m.now()) {
		return
	}
	if err := g.m.blobs.Delete(ctx, key); err != nil {
		g.m.logger.Error("failed to drop thumbnail of expired share", "file", f.Id, "key", key, "error", err)
	}
}
