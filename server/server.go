package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/liondadev/quick-file-share/config"
	"github.com/liondadev/quick-file-share/share"
	"github.com/liondadev/quick-file-share/token"
	"github.com/liondadev/quick-file-share/types"
)

type PublicError struct {
	Code    int
	Message string
}

func (pe PublicError) Error() string {
	return fmt.Sprintf("(%d) %s", pe.Code, pe.Message)
}

// HandlerWithError is a wrapper around a http.Handler that allows you to return an error.
type HandlerWithError func(w http.ResponseWriter, r *http.Request) error

func (h HandlerWithError) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			slog.ErrorContext(r.Context(), "recovered from panic while handling request", "remote", r.RemoteAddr, "uri", r.RequestURI, "panic", err)

			writeJson(w, http.StatusInternalServerError, jMap{
				"error": "Unrecoverable Serverside Panic!",
			})
		}
	}()

	err := h(w, r)
	if err != nil {
		var perr PublicError
		if errors.As(err, &perr) {
			slog.InfoContext(r.Context(), "public error while serving request", "remote", r.RemoteAddr, "uri", r.RequestURI, "error", err)
			writeJson(w, perr.Code, jMap{
				"error": perr.Message,
			})

			return
		}

		slog.ErrorContext(r.Context(), "error while serving request", "remote", r.RemoteAddr, "uri", r.RequestURI, "error", err)
		writeJson(w, http.StatusInternalServerError, jMap{
			"error": "Internal Server Error!",
		})
	}
}

// publicError turns the share package's errors into PublicErrors. messages
// overrides the default message for a status code.
func publicError(err error, messages map[int]string) error {
	var perr PublicError
	switch {
	case errors.Is(err, share.ErrNotFound):
		perr = PublicError{http.StatusNotFound, "Share not found"}
	case errors.Is(err, share.ErrExpired):
		perr = PublicError{http.StatusGone, "Link expired"}
	case errors.Is(err, share.ErrUnauthorized):
		perr = PublicError{http.StatusUnauthorized, "Unauthorized"}
	case errors.Is(err, share.ErrInvalidArgument):
		perr = PublicError{http.StatusBadRequest, err.Error()}
	case errors.Is(err, share.ErrUnsupported):
		perr = PublicError{http.StatusUnsupportedMediaType, "Thumbnails are only available for PNG and JPEG images."}
	default:
		return err
	}

	if msg, ok := messages[perr.Code]; ok {
		perr.Message = msg
	}
	return perr
}

// Users is the account storage the HTTP layer needs for logins.
type Users interface {
	UserByUsername(ctx context.Context, username string) (*types.User, error)
	SetUserPassword(ctx context.Context, userId int64, hash string, mustChange bool) error
}

type Server struct {
	cfg      *config.Config
	users    Users
	hasher   share.Hasher
	signer   *token.Signer
	manager  *share.Manager
	gate     *share.Gate
	validate *validator.Validate
	unlocks  *ipLimiter
	mux      *chi.Mux
}

// New creates a new server instance from the config and its collaborators.
func New(cfg *config.Config, users Users, hasher share.Hasher, signer *token.Signer, manager *share.Manager) *Server {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		cfg:      cfg,
		users:    users,
		hasher:   hasher,
		signer:   signer,
		manager:  manager,
		gate:     share.NewGate(manager),
		validate: validate,
		unlocks:  newIPLimiter(cfg.UnlockPerMinute, time.Now),
	}
}

func (s *Server) SetupHTTP() error {
	mux := chi.NewMux()

	mux.Use(middleware.RequestID)
	mux.Use(s.preHandleClientIP)
	mux.Use(middleware.Compress(5))
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.CleanPath)

	// API Routes
	mux.Handle("GET /", HandlerWithError(s.handleIndex))
	mux.Handle("POST /token", HandlerWithError(s.handleToken))

	authed := mux.With(s.preHandleAuthentication).With(s.preHandleRequireAuthentication)
	authed.Handle("POST /change-password", HandlerWithError(s.handleChangePassword))
	authed.Handle("POST /upload", HandlerWithError(s.handleFileUpload))
	authed.Handle("POST /share/{public_id}", HandlerWithError(s.handleShareSettings))

	// Public Routes
	mux.Handle("GET /public/share/{public_id}", HandlerWithError(s.handleShareStatus))
	mux.Handle("POST /public/share/{public_id}/unlock", HandlerWithError(s.handleShareUnlock))
	mux.Handle("GET /public/file/{token}", HandlerWithError(s.handleFileDownload))
	mux.Handle("GET /public/thumb/{token}", HandlerWithError(s.handleThumbnail))

	// Frontend Routes
	mux.Handle("GET /download/{public_id}", FrontendHandlerWithError(s.handleDownloadPage))

	// Not found handler
	mux.NotFound(FrontendHandlerWithError(s.handleNotFound).ServeHTTP)

	s.mux = mux

	return nil
}

// Handler returns the configured router. SetupHTTP must have been called.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s.mux == nil {
		return errors.New("the http mux hasn't been configured yet, call setuphttp()")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
