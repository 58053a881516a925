package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/platform/obs"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "encode failed", "req_id", obs.RequestID(r.Context()), "method", r.Method, "path", r.URL.Path, "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

type fieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type validationBody struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields"`
}

// writeDomainError maps a domain error to its HTTP status. Anything
// unclassified is logged and reported as a 500 without details.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		body := validationBody{Error: ve.Error(), Fields: make([]fieldError, 0, len(ve.Fields))}
		for _, f := range ve.Fields {
			body.Fields = append(body.Fields, fieldError{Field: f.Field, Reason: f.Reason})
		}
		writeJSON(w, r, http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	default:
		slog.ErrorContext(r.Context(), "request failed", "req_id", obs.RequestID(r.Context()), "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads exactly one JSON object into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}
	return true
}
