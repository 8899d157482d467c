package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/nmiculinic/rzne/internal/repository"
	"github.com/nmiculinic/rzne/internal/service/auth"
	"github.com/nmiculinic/rzne/internal/service/notes"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service and repository errors onto HTTP statuses.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		r.challenge(w, "authentication failed")
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, notes.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "not permitted")
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusBadRequest, "Username exists")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, notes.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, notes.ErrNotFound):
		writeError(w, http.StatusNotFound, "note not found")
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword), errors.Is(err, notes.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflicting write")
	default:
		r.logger.Error("request failed", "error", err, "method", req.Method, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryFields may also be supplied in the query string. Passwords are not among
// them so credentials stay out of URLs and access logs.
var queryFields = map[string]bool{"text": true}

// readField reads a string field from a JSON or form body. Fields in
// queryFields fall back to the query string.
func readField(req *http.Request, field string) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := req.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return "", errors.New("invalid form body")
		}
		if values, ok := req.PostForm[field]; ok && len(values) > 0 {
			return values[0], nil
		}
	default:
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
		if err != nil {
			return "", errors.New("unreadable body")
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			var payload map[string]json.RawMessage
			if err := json.Unmarshal(body, &payload); err != nil {
				return "", errors.New("invalid JSON body")
			}
			if raw, ok := payload[field]; ok {
				var value string
				if err := json.Unmarshal(raw, &value); err != nil {
					return "", fmt.Errorf("%s must be a string", field)
				}
				return value, nil
			}
		}
	}
	if queryFields[field] {
		if values, ok := req.URL.Query()[field]; ok && len(values) > 0 {
			return values[0], nil
		}
	}
	return "", fmt.Errorf("%s is required", field)
}
