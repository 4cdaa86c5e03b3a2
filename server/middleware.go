package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/liondadev/quick-file-share/audit"
	"github.com/liondadev/quick-file-share/store"
	"github.com/liondadev/quick-file-share/types"
)

type contextKey string

const AuthenticatedUserContextKey contextKey = "qfs::authenticated_user"

// preHandleClientIP resolves the client address once so audit records and
// the unlock limiter agree on it.
func (s *Server) preHandleClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithClientIP(r.Context(), audit.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || tok == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

// preHandleAuthentication sets the context with the key AuthenticatedUserContextKey to be either the
// authenticated user, or a nil *types.User if the request doesn't carry a valid access token.
func (s *Server) preHandleAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user *types.User

		if tok, ok := bearerToken(r); ok {
			if username, err := s.signer.ValidateAccess(tok); err == nil {
				u, err := s.users.UserByUsername(r.Context(), username)
				switch {
				case err == nil && u.IsActive:
					user = u
				case err != nil && !errors.Is(err, store.ErrNotFound):
					slog.ErrorContext(r.Context(), "failed to load authenticated user", "username", username, "error", err)
				}
			}
		}

		ctx := context.WithValue(r.Context(), AuthenticatedUserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) preHandleRequireAuthentication(next http.Handler) http.Handler {
	return HandlerWithError(func(w http.ResponseWriter, r *http.Request) error {
		v := r.Context().Value(AuthenticatedUserContextKey)
		if v == nil {
			return errors.New("attempted to require authentication when the prehandleauthentication middleware isn't called")
		}

		if user, _ := v.(*types.User); user == nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			return PublicError{http.StatusUnauthorized, "Could not validate credentials"}
		}

		next.ServeHTTP(w, r)

		return nil
	})
}

func authenticatedUser(r *http.Request) *types.User {
	user, ok := r.Context().Value(AuthenticatedUserContextKey).(*types.User)
	if !ok || user == nil {
		panic("user in middleware but not in context key?")
	}
	return user
}
