package server

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/liondadev/quick-file-share/audit"
	"github.com/liondadev/quick-file-share/share"
	"github.com/liondadev/quick-file-share/thumbnail"
)

type publicFile struct {
	Filename string `json:"filename"`
	Token    string `json:"token"`
}

type publicShareResponse struct {
	Locked bool         `json:"locked"`
	Files  []publicFile `json:"files"`
}

func writeStatus(w http.ResponseWriter, st *share.Status) {
	resp := publicShareResponse{Locked: st.Locked, Files: make([]publicFile, len(st.Files))}
	for i, f := range st.Files {
		resp.Files[i] = publicFile{Filename: f.Filename, Token: f.Token}
	}
	writeJson(w, http.StatusOK, resp)
}

var tokenErrorMessages = map[int]string{
	http.StatusUnauthorized: "Invalid or expired download link",
	http.StatusNotFound:     "File not found",
}

func (s *Server) handleShareStatus(w http.ResponseWriter, r *http.Request) error {
	st, err := s.gate.CheckStatus(r.Context(), chi.URLParam(r, "public_id"))
	if err != nil {
		return publicError(err, nil)
	}

	writeStatus(w, st)
	return nil
}

type unlockRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleShareUnlock(w http.ResponseWriter, r *http.Request) error {
	if !s.unlocks.Allow(audit.ClientIPFrom(r.Context())) {
		w.Header().Set("Retry-After", "60")
		return PublicError{http.StatusTooManyRequests, "Too many unlock attempts, try again later."}
	}

	var req unlockRequest
	if err := s.readJson(r, &req); err != nil {
		return err
	}

	st, err := s.gate.Unlock(r.Context(), chi.URLParam(r, "public_id"), req.Password)
	if err != nil {
		return publicError(err, map[int]string{http.StatusUnauthorized: "Incorrect Password"})
	}

	writeStatus(w, st)
	return nil
}

// handleFileDownload streams the file a download token points at as an attachment.
func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) error {
	f, rc, err := s.gate.Fetch(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		return publicError(err, tokenErrorMessages)
	}
	defer rc.Close()

	setCacheControlHeaders(w)
	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if f.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		// headers are already sent
		slog.WarnContext(r.Context(), "download interrupted", "file", f.Id, "error", err)
	}

	return nil
}

// handleThumbnail serves a 480x270 preview of an image behind a download
// token, as png or, with ?format=gif, as gif.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) error {
	format, err := thumbnail.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return PublicError{http.StatusBadRequest, "Thumbnail format must be 'png' or 'gif'."}
	}

	thumb, err := s.gate.Thumbnail(r.Context(), chi.URLParam(r, "token"), format)
	if err != nil {
		return publicError(err, tokenErrorMessages)
	}

	setCacheControlHeaders(w)
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(thumb)
	return err
}

func setCacheControlHeaders(w http.ResponseWriter) {
	// download tokens are bearer credentials, keep responses out of shared caches
	w.Header().Set("Cache-Control", "private, max-age=1800")
}
