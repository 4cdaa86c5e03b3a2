// Package token issues and validates the signed tokens used by the service:
// short-lived download tokens bound to one file, and user access tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeDownload = "download"
	PurposeAccess   = "access"

	DownloadTTL = 60 * time.Minute
)

// ErrInvalidToken covers every reason a token can't be used: bad signature,
// malformed, expired, wrong purpose or revoked.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the claims carried by every token. Type holds the purpose tag.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Revoker records revocation instants per file. Download tokens for a file
// issued before its revocation instant are rejected.
type Revoker interface {
	Revoke(ctx context.Context, fileId int64, at time.Time) error
	RevokedAt(ctx context.Context, fileId int64) (time.Time, bool, error)
}

type Signer struct {
	key       []byte
	now       func() time.Time
	accessTTL time.Duration
	revoker   Revoker
}

type Option func(*Signer)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithAccessTTL sets how long access tokens stay valid.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Signer) { s.accessTTL = d }
}

// WithRevoker enables the revocation list for download tokens.
func WithRevoker(r Revoker) Option {
	return func(s *Signer) { s.revoker = r }
}

// NewSigner creates a signer for the given HS256 key.
func NewSigner(key []byte, opts ...Option) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is empty")
	}

	s := &Signer{
		key:       key,
		now:       time.Now,
		accessTTL: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signer) sign(subject, purpose string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Type: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

func (s *Signer) parse(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Type != purpose {
		return nil, fmt.Errorf("%w: expected %q token, got %q", ErrInvalidToken, purpose, claims.Type)
	}

	return claims, nil
}

// Issue creates a download token for a file, valid for DownloadTTL.
func (s *Signer) Issue(fileId int64) (string, error) {
	return s.sign(strconv.FormatInt(fileId, 10), PurposeDownload, DownloadTTL)
}

// Validate checks a download token and returns the file id bound to it.
func (s *Signer) Validate(ctx context.Context, tokenString string) (int64, error) {
	claims, err := s.parse(tokenString, PurposeDownload)
	if err != nil {
		return 0, err
	}

	fileId, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}

	if s.revoker != nil {
		at, revoked, err := s.revoker.RevokedAt(ctx, fileId)
		if err != nil {
			return 0, fmt.Errorf("check revocation for file %d: %w", fileId, err)
		}
		// tokens minted in the same second as the revocation survive
		if revoked && (claims.IssuedAt == nil || claims.IssuedAt.Time.Before(at.Truncate(time.Second))) {
			return 0, fmt.Errorf("%w: revoked", ErrInvalidToken)
		}
	}

	return fileId, nil
}

// Revoke invalidates every download token issued for the files so far. It's a
// no-op when no revoker is configured.
func (s *Signer) Revoke(ctx context.Context, fileIds ...int64) error {
	if s.revoker == nil {
		return nil
	}

	now := s.now()
	for _, id := range fileIds {
		if err := s.revoker.Revoke(ctx, id, now); err != nil {
			return fmt.Errorf("revoke file %d: %w", id, err)
		}
	}
	return nil
}

// IssueAccess creates an access token for a user.
func (s *Signer) IssueAccess(username string) (string, error) {
	return s.sign(username, PurposeAccess, s.accessTTL)
}

// ValidateAccess checks an access token and returns the username.
func (s *Signer) ValidateAccess(tokenString string) (string, error) {
	claims, err := s.parse(tokenString, PurposeAccess)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
