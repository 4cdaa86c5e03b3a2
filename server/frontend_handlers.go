package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/liondadev/quick-file-share/server/pages"
	"github.com/liondadev/quick-file-share/share"
)

// FrontendHandlerWithError is almost identical to HandlerWithError, but it handles
// erroneous responses by responding with an error page, not json
type FrontendHandlerWithError func(w http.ResponseWriter, r *http.Request) error

func (h FrontendHandlerWithError) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			slog.ErrorContext(r.Context(), "recovered from panic while handling frontend request", "remote", r.RemoteAddr, "uri", r.RequestURI, "panic", err)
			_ = writeHTML(w, http.StatusInternalServerError, pages.Error("PANIC", "500 - Internal Server Error", "Unrecoverable Server Panic"))
		}
	}()

	start := time.Now()
	err := h(w, r)
	dur := time.Since(start).String()
	if err != nil {
		var perr PublicError
		if errors.As(err, &perr) {
			slog.InfoContext(r.Context(), "public error while serving frontend request", "remote", r.RemoteAddr, "uri", r.RequestURI, "error", err)
			_ = writeHTML(w, perr.Code, pages.Error(dur, strconv.Itoa(perr.Code)+" - "+http.StatusText(perr.Code), perr.Message))

			return
		}

		slog.ErrorContext(r.Context(), "error while serving frontend request", "remote", r.RemoteAddr, "uri", r.RequestURI, "error", err)
		_ = writeHTML(w, http.StatusInternalServerError, pages.Error(dur, "500 - Internal Server Error", "Internal Server Error"))
	}
}

func writeHTML(w http.ResponseWriter, status int, html templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return html.Render(context.Background(), w)
}

// handleNotFound is called when no other handlers match the request. In other words, this is called
// when the page is not found or the route doesn't exist.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) error {
	return PublicError{http.StatusNotFound, "Page not found."}
}

// handleDownloadPage serves the page a share link points to. Missing and
// expired shares get an error page straight away.
func (s *Server) handleDownloadPage(w http.ResponseWriter, r *http.Request) error {
	sh, err := s.manager.GetLiveShare(r.Context(), chi.URLParam(r, "public_id"))
	if errors.Is(err, share.ErrExpired) {
		return PublicError{http.StatusGone, "This link has expired."}
	}
	if err != nil {
		return publicError(err, map[int]string{http.StatusNotFound: "This share doesn't exist."})
	}

	return writeHTML(w, http.StatusOK, pages.Download(sh.PublicId, sh.Expiry()))
}
