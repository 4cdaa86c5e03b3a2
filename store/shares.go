package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/liondadev/quick-file-share/types"
)

const shareColumns = `"id", "public_id", "owner_id", "created_at", "expires_at", "password_hash", "is_shared"`
const fileColumns = `"id", "share_id", "filename", "locator", "mime", "size"`

// SettingsUpdate holds the share fields an owner can change. Nil fields are left alone.
type SettingsUpdate struct {
	// PasswordHash set to a NullString with Valid=false clears the password.
	PasswordHash *sql.NullString
	ExpiresAt    *int64
}

// CreateShare inserts the share and its files in a single transaction and
// fills in the generated ids.
func (s *Store) CreateShare(ctx context.Context, share *types.Share, files []types.File) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO "shares" ("public_id", "owner_id", "created_at", "expires_at", "password_hash", "is_shared") VALUES ($1, $2, $3, $4, $5, $6)`,
			share.PublicId, share.OwnerId, share.CreatedAt, share.ExpiresAt, share.PasswordHash, share.IsShared)
		if err != nil {
			return fmt.Errorf("insert share: %w", err)
		}
		if share.Id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert share: %w", err)
		}

		share.Files = make([]types.File, 0, len(files))
		for _, f := range files {
			f.ShareId = share.Id
			res, err := tx.ExecContext(ctx, `INSERT INTO "files" ("share_id", "filename", "locator", "mime", "size") VALUES ($1, $2, $3, $4, $5)`,
				f.ShareId, f.Filename, f.Locator, f.MimeType, f.Size)
			if err != nil {
				return fmt.Errorf("insert file %q: %w", f.Filename, err)
			}
			if f.Id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("insert file %q: %w", f.Filename, err)
			}
			share.Files = append(share.Files, f)
		}
		return nil
	})
}

// ShareByPublicId returns the share with its files.
func (s *Store) ShareByPublicId(ctx context.Context, publicId string) (*types.Share, error) {
	var share types.Share
	if err := s.db.GetContext(ctx, &share, `SELECT `+shareColumns+` FROM "shares" WHERE "public_id" = $1`, publicId); err != nil {
		return nil, notFound(err, "share "+publicId)
	}

	if err := s.db.SelectContext(ctx, &share.Files, `SELECT `+fileColumns+` FROM "files" WHERE "share_id" = $1 ORDER BY "id"`, share.Id); err != nil {
		return nil, fmt.Errorf("files of share %s: %w", publicId, err)
	}
	return &share, nil
}

// ShareById returns the share row without its files.
func (s *Store) ShareById(ctx context.Context, id int64) (*types.Share, error) {
	var share types.Share
	if err := s.db.GetContext(ctx, &share, `SELECT `+shareColumns+` FROM "shares" WHERE "id" = $1`, id); err != nil {
		return nil, notFound(err, fmt.Sprintf("share %d", id))
	}
	return &share, nil
}

// UpdateShareSettings applies upd to the share matching both the public id
// and the owner. Shares owned by someone else are reported as ErrNotFound.
// All fields are written by one statement so readers never see half of an update.
func (s *Store) UpdateShareSettings(ctx context.Context, publicId string, ownerId int64, upd SettingsUpdate) (*types.Share, error) {
	var share types.Share
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var sets []string
		var args []any
		if upd.PasswordHash != nil {
			args = append(args, *upd.PasswordHash)
			sets = append(sets, fmt.Sprintf(`"password_hash" = $%d`, len(args)))
		}
		if upd.ExpiresAt != nil {
			args = append(args, *upd.ExpiresAt)
			sets = append(sets, fmt.Sprintf(`"expires_at" = $%d`, len(args)))
		}

		if len(sets) > 0 {
			args = append(args, publicId, ownerId)
			stmt := fmt.Sprintf(`UPDATE "shares" SET %s WHERE "public_id" = $%d AND "owner_id" = $%d`, strings.Join(sets, ", "), len(args)-1, len(args))
			res, err := tx.ExecContext(ctx, stmt, args...)
			if err != nil {
				return fmt.Errorf("update share %s: %w", publicId, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("update share %s: %w", publicId, err)
			}
			if n == 0 {
				return fmt.Errorf("update share %s: %w", publicId, ErrNotFound)
			}
		}

		if err := tx.GetContext(ctx, &share, `SELECT `+shareColumns+` FROM "shares" WHERE "public_id" = $1 AND "owner_id" = $2`, publicId, ownerId); err != nil {
			return notFound(err, "share "+publicId)
		}
		if err := tx.SelectContext(ctx, &share.Files, `SELECT `+fileColumns+` FROM "files" WHERE "share_id" = $1 ORDER BY "id"`, share.Id); err != nil {
			return fmt.Errorf("files of share %s: %w", publicId, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// ExpiredShares returns every share whose expiry is strictly before the given
// unix time, files included.
func (s *Store) ExpiredShares(ctx context.Context, before int64) ([]types.Share, error) {
	var shares []types.Share
	if err := s.db.SelectContext(ctx, &shares, `SELECT `+shareColumns+` FROM "shares" WHERE "expires_at" IS NOT NULL AND "expires_at" < $1 ORDER BY "id"`, before); err != nil {
		return nil, fmt.Errorf("select expired shares: %w", err)
	}
	if len(shares) == 0 {
		return shares, nil
	}

	ids := make([]int64, len(shares))
	byId := make(map[int64]*types.Share, len(shares))
	for i := range shares {
		ids[i] = shares[i].Id
		byId[shares[i].Id] = &shares[i]
	}

	query, args, err := sqlx.In(`SELECT `+fileColumns+` FROM "files" WHERE "share_id" IN (?) ORDER BY "id"`, ids)
	if err != nil {
		return nil, fmt.Errorf("build files query: %w", err)
	}

	var files []types.File
	if err := s.db.SelectContext(ctx, &files, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select files of expired shares: %w", err)
	}
	for _, f := range files {
		if sh, ok := byId[f.ShareId]; ok {
			sh.Files = append(sh.Files, f)
		}
	}

	return shares, nil
}

// DeleteShare removes a share and its file records.
func (s *Store) DeleteShare(ctx context.Context, shareId int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM "files" WHERE "share_id" = $1`, shareId); err != nil {
			return fmt.Errorf("delete files of share %d: %w", shareId, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM "shares" WHERE "id" = $1`, shareId)
		if err != nil {
			return fmt.Errorf("delete share %d: %w", shareId, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("delete share %d: %w", shareId, ErrNotFound)
		}
		return nil
	})
}

func (s *Store) FileById(ctx context.Context, id int64) (*types.File, error) {
	var f types.File
	if err := s.db.GetContext(ctx, &f, `SELECT `+fileColumns+` FROM "files" WHERE "id" = $1`, id); err != nil {
		return nil, notFound(err, fmt.Sprintf("file %d", id))
	}
	return &f, nil
}
