package types

import (
	"database/sql"
	"time"
)

// User is an account that is allowed to upload files and manage shares.
type User struct {
	Id                 int64  `db:"id"`
	Username           string `db:"username"`
	HashedPassword     string `db:"hashed_password"`
	IsActive           bool   `db:"is_active"`
	MustChangePassword bool   `db:"must_change_password"`
}

// Share is a bundle of uploaded files reachable through its public id.
type Share struct {
	Id           int64          `db:"id"`
	PublicId     string         `db:"public_id"`
	OwnerId      int64          `db:"owner_id"`
	CreatedAt    int64          `db:"created_at"`
	ExpiresAt    sql.NullInt64  `db:"expires_at"`
	PasswordHash sql.NullString `db:"password_hash"`
	IsShared     bool           `db:"is_shared"`

	Files []File `db:"-"`
}

// Locked reports whether the share needs a password before tokens are handed out.
func (s *Share) Locked() bool {
	return s.PasswordHash.Valid && s.PasswordHash.String != ""
}

// Expiry returns the expiration instant, or nil when the share never expires.
func (s *Share) Expiry() *time.Time {
	if !s.ExpiresAt.Valid {
		return nil
	}
	t := time.Unix(s.ExpiresAt.Int64, 0).UTC()
	return &t
}

// ExpiredAt reports whether the share is expired at the given instant. A share
// whose expiry equals now is already expired.
func (s *Share) ExpiredAt(now time.Time) bool {
	if !s.ExpiresAt.Valid {
		return false
	}
	return now.Unix() >= s.ExpiresAt.Int64
}

// File is a single uploaded file inside a share. Locator is the blob key and
// is never derived from Filename.
type File struct {
	Id       int64  `db:"id"`
	ShareId  int64  `db:"share_id"`
	Filename string `db:"filename"`
	Locator  string `db:"locator"`
	MimeType string `db:"mime"`
	Size     int64  `db:"size"`
}
