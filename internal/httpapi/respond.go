package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tsantana84/codex-http/internal/agent"
	"github.com/tsantana84/codex-http/internal/config"
	"github.com/tsantana84/codex-http/internal/coordinator"
)

var (
	errInvalidBody   = errors.New("invalid request body")
	errBodyTooLarge  = errors.New("request body too large")
	errBadPagination = errors.New("invalid pagination")
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusForError maps a domain error to its HTTP status and client message.
// fallback is the message for unexpected failures.
func statusForError(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, coordinator.ErrSessionNotFound), errors.Is(err, coordinator.ErrSessionTerminated):
		return http.StatusNotFound, config.ErrMsgSessionNotFound
	case errors.Is(err, coordinator.ErrEmptyMessage):
		return http.StatusBadRequest, config.ErrMsgMessageRequired
	case errors.Is(err, agent.ErrInvalidApprovalPolicy), errors.Is(err, agent.ErrInvalidImage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, config.ErrMsgInvalidBody
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, config.ErrMsgBodyTooLarge
	case errors.Is(err, errBadPagination):
		return http.StatusBadRequest, config.ErrMsgInvalidPagination
	case errors.Is(err, coordinator.ErrSessionBusy):
		return http.StatusConflict, config.ErrMsgSessionBusy
	default:
		return http.StatusInternalServerError, fallback
	}
}

// writeDomainError writes err as a JSON error and logs unexpected failures
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, message := statusForError(err, fallback)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", coordinator.TraceIDFrom(r.Context()))
	}
	writeError(w, status, message)
}

// decodeJSON reads a JSON body of at most the configured size into dst. An
// empty body leaves dst untouched.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return errInvalidBody
	}
}
