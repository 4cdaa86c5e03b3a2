// Package store persists users, shares and files in sqlite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUsernameTaken = errors.New("username already exists")
)

type Store struct {
	db *sqlx.DB
}

// New wraps an already opened database. Call Migrate before using it.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the sqlite file at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite driver: %w", err)
	}
	// sqlite allows one writer at a time; a single connection keeps
	// transactions from tripping over each other with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var migrations = []string{
	// 001 - users
	`CREATE TABLE IF NOT EXISTS "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "username" TEXT NOT NULL UNIQUE, "hashed_password" TEXT NOT NULL, "is_active" INTEGER NOT NULL DEFAULT 1, "must_change_password" INTEGER NOT NULL DEFAULT 1)`,
	// 002 - shares
	`CREATE TABLE IF NOT EXISTS "shares" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "public_id" TEXT NOT NULL UNIQUE, "owner_id" INTEGER NOT NULL REFERENCES "users" ("id"), "created_at" INTEGER NOT NULL, "expires_at" INTEGER, "password_hash" TEXT, "is_shared" INTEGER NOT NULL DEFAULT 1)`,
	`CREATE INDEX IF NOT EXISTS "idx_shares_expires_at" ON "shares" ("expires_at")`,
	// 003 - files
	`CREATE TABLE IF NOT EXISTS "files" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "share_id" INTEGER NOT NULL REFERENCES "shares" ("id") ON DELETE CASCADE, "filename" TEXT NOT NULL, "locator" TEXT NOT NULL UNIQUE, "mime" TEXT NOT NULL, "size" INTEGER NOT NULL DEFAULT 0)`,
	`CREATE INDEX IF NOT EXISTS "idx_files_share_id" ON "files" ("share_id")`,
}

// Migrate creates all the SQL tables and indexes needed for the service to work.
func (s *Store) Migrate() error {
	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}

// withTx runs fn in a transaction, rolling back when it returns an error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
