package store

import (
	"context"
	"fmt"

	"github.com/liondadev/quick-file-share/types"
)

// CreateUser inserts the user and sets its id.
func (s *Store) CreateUser(ctx context.Context, u *types.User) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO "users" ("username", "hashed_password", "is_active", "must_change_password") VALUES ($1, $2, $3, $4)`,
		u.Username, u.HashedPassword, u.IsActive, u.MustChangePassword)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %q: %w", u.Username, ErrUsernameTaken)
	}
	if err != nil {
		return fmt.Errorf("create user %q: %w", u.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user %q: %w", u.Username, err)
	}
	u.Id = id
	return nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*types.User, error) {
	var u types.User
	if err := s.db.GetContext(ctx, &u, `SELECT "id", "username", "hashed_password", "is_active", "must_change_password" FROM "users" WHERE "username" = $1`, username); err != nil {
		return nil, notFound(err, "user "+username)
	}
	return &u, nil
}

// SetUserPassword replaces the password hash of a user.
func (s *Store) SetUserPassword(ctx context.Context, userId int64, hash string, mustChange bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE "users" SET "hashed_password" = $1, "must_change_password" = $2 WHERE "id" = $3`, hash, mustChange, userId)
	if err != nil {
		return fmt.Errorf("set password for user %d: %w", userId, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set password for user %d: %w", userId, ErrNotFound)
	}
	return nil
}
