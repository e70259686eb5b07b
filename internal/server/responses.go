package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto a status code and JSON error body.
// Server side failures are logged and their details withheld from the client.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &maxBytesErr):
		status, resp.Code = http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, domain.ErrNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		status, resp.Code = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInvalidDocument):
		resp.Code, resp.Error = "malformed", "collection document is malformed"
	case errors.Is(err, domain.ErrMalformed):
		status, resp.Code = http.StatusBadRequest, "malformed"
	case errors.Is(err, domain.ErrIOFailure):
		resp.Code, resp.Error = "io_failure", "collection document could not be read or written"
	default:
		resp.Code, resp.Error = "internal", "internal error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
	}
	s.jsonResponse(w, status, resp)
}
