package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

type jMap map[string]any

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

const maxJsonBody = 1 << 20

// readJson decodes the request body into dst and validates it.
func (s *Server) readJson(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJsonBody))
	if err := dec.Decode(dst); err != nil {
		return PublicError{http.StatusBadRequest, "Request body must be valid JSON."}
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}

		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("'%s' failed '%s=%s'", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("'%s' failed '%s'", fe.Field(), fe.Tag()))
			}
		}
		return PublicError{http.StatusBadRequest, "Invalid request: " + strings.Join(msgs, ", ")}
	}

	return nil
}
