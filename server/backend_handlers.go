package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/liondadev/quick-file-share/credential"
	"github.com/liondadev/quick-file-share/share"
	"github.com/liondadev/quick-file-share/store"
)

const multipartMemory = 32 << 20

// validator's max counts characters, bcrypt's limit is in bytes
var errPasswordTooLong = PublicError{http.StatusBadRequest, fmt.Sprintf("Password must be at most %d bytes.", credential.MaxSecretBytes)}

// handleIndex handles requests to GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) error {
	writeJson(w, http.StatusOK, jMap{"message": "Welcome to File Sharing API."})
	return nil
}

// handleToken exchanges a username and password (form encoded) for an access token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return PublicError{http.StatusBadRequest, "Expected a form with 'username' and 'password'."}
	}

	username, password := r.PostFormValue("username"), r.PostFormValue("password")
	if username == "" || password == "" {
		return PublicError{http.StatusBadRequest, "Expected a form with 'username' and 'password'."}
	}

	badLogin := PublicError{http.StatusUnauthorized, "Incorrect username or password"}

	user, err := s.users.UserByUsername(r.Context(), username)
	if errors.Is(err, store.ErrNotFound) {
		return badLogin
	}
	if err != nil {
		return err
	}
	if !user.IsActive || !s.hasher.Verify(password, user.HashedPassword) {
		return badLogin
	}

	accessToken, err := s.signer.IssueAccess(user.Username)
	if err != nil {
		return err
	}

	writeJson(w, http.StatusOK, jMap{
		"access_token":         accessToken,
		"token_type":           "bearer",
		"must_change_password": user.MustChangePassword,
	})
	return nil
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) error {
	user := authenticatedUser(r)

	var req changePasswordRequest
	if err := s.readJson(r, &req); err != nil {
		return err
	}

	if len(req.NewPassword) > credential.MaxSecretBytes {
		return errPasswordTooLong
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.SetUserPassword(r.Context(), user.Id, hash, false); err != nil {
		return err
	}

	writeJson(w, http.StatusOK, jMap{"message": "Password changed successfully"})
	return nil
}

type uploadedFile struct {
	Id       int64  `json:"id"`
	Filename string `json:"filename"`
}

// handleFileUpload is called when someone uploads one or more files. Every
// part named "files" ends up in the same new share.
func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) error {
	user := authenticatedUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return PublicError{http.StatusRequestEntityTooLarge, "Upload is too large."}
		}
		return PublicError{http.StatusBadRequest, "Expected a multipart form with one or more 'files'."}
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return PublicError{http.StatusBadRequest, "Expected a multipart form with one or more 'files'."}
	}

	uploads := make([]share.Upload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return err
		}
		defer func(f multipart.File) { _ = f.Close() }(f)

		uploads = append(uploads, share.Upload{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Body:     f,
		})
	}

	created, err := s.manager.CreateShare(r.Context(), user, uploads)
	if err != nil {
		return publicError(err, nil)
	}

	files := make([]uploadedFile, len(created.Share.Files))
	for i, f := range created.Share.Files {
		files[i] = uploadedFile{Id: f.Id, Filename: f.Filename}
	}

	writeJson(w, http.StatusOK, jMap{
		"public_id":          created.Share.PublicId,
		"share_link":         created.Link,
		"files":              files,
		"expires_at":         created.Share.Expiry(),
		"password_protected": created.Share.Locked(),
	})
	return nil
}

type shareSettingsRequest struct {
	Password       *string `json:"password" validate:"omitnil,max=72"`
	ExpiresMinutes *int    `json:"expires_minutes"`
}

// handleShareSettings lets the owner of a share set or clear its password and
// restart its expiry countdown.
func (s *Server) handleShareSettings(w http.ResponseWriter, r *http.Request) error {
	user := authenticatedUser(r)

	var req shareSettingsRequest
	if err := s.readJson(r, &req); err != nil {
		return err
	}
	if req.Password != nil && len(*req.Password) > credential.MaxSecretBytes {
		return errPasswordTooLong
	}

	_, err := s.manager.UpdateSettings(r.Context(), chi.URLParam(r, "public_id"), user.Id, share.Settings{
		Password:       req.Password,
		ExpiresMinutes: req.ExpiresMinutes,
	})
	if err != nil {
		return publicError(err, map[int]string{
			http.StatusBadRequest: "Expiration time must be between 0 and 1440 minutes (1 day)",
		})
	}

	writeJson(w, http.StatusOK, jMap{"message": "Share settings updated"})
	return nil
}
