package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tsantana84/codex-http/internal/agent"
	"github.com/tsantana84/codex-http/internal/config"
	"github.com/tsantana84/codex-http/internal/coordinator"
)

type createSessionRequest struct {
	Model                   string         `json:"model"`
	Provider                string         `json:"provider"`
	ApprovalMode            string         `json:"approvalMode"`
	APIKey                  string         `json:"apiKey"`
	Instructions            string         `json:"instructions"`
	AdditionalWritableRoots []string       `json:"additionalWritableRoots"`
	DisableResponseStorage  *bool          `json:"disableResponseStorage"`
	Config                  map[string]any `json:"config"`
}

type createSessionResponse struct {
	SessionID string        `json:"sessionId"`
	Config    sessionConfig `json:"config"`
	CreatedAt time.Time     `json:"createdAt"`
}

type sessionConfig struct {
	Model        string               `json:"model"`
	Provider     string               `json:"provider"`
	ApprovalMode agent.ApprovalPolicy `json:"approvalMode,omitempty"`
}

type sessionSummary struct {
	SessionID    string                   `json:"sessionId"`
	Config       sessionConfig            `json:"config"`
	MessageCount int                      `json:"messageCount"`
	CreatedAt    time.Time                `json:"createdAt"`
	LastActivity time.Time                `json:"lastActivity"`
	State        coordinator.SessionState `json:"state"`
}

type sendMessageRequest struct {
	Message string   `json:"message"`
	Images  []string `json:"images"`
}

func summarize(info coordinator.SessionInfo) sessionSummary {
	return sessionSummary{
		SessionID: info.ID,
		Config: sessionConfig{
			Model:    info.Config.Model,
			Provider: info.Config.Provider,
		},
		MessageCount: info.MessageCount,
		CreatedAt:    info.CreatedAt,
		LastActivity: info.LastActivity,
		State:        info.State,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
		"sessions":  s.sessions.SessionCount(r.Context()),
	}
	if r.URL.Query().Get("deep") == "true" {
		components := make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if check(r.Context()) {
				components[name] = "healthy"
			} else {
				components[name] = "unhealthy"
				resp["status"] = "degraded"
			}
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgCreateSession)
		return
	}

	session, err := s.sessions.CreateSession(r.Context(), coordinator.CreateSessionRequest{
		Model:                   req.Model,
		Provider:                req.Provider,
		APIKey:                  req.APIKey,
		Instructions:            req.Instructions,
		ApprovalMode:            req.ApprovalMode,
		AdditionalWritableRoots: req.AdditionalWritableRoots,
		DisableResponseStorage:  req.DisableResponseStorage,
		Config:                  req.Config,
	})
	if err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgCreateSession)
		return
	}

	cfg := session.Config()
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.ID(),
		Config: sessionConfig{
			Model:        cfg.Model,
			Provider:     cfg.Provider,
			ApprovalMode: cfg.ApprovalMode,
		},
		CreatedAt: session.CreatedAt(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.ListSessions(r.Context())
	sessions := make([]sessionSummary, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, summarize(info))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":   sessions,
		"totalCount": len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, config.ErrMsgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summarize(session.Info()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := s.sessions.GetSession(r.Context(), sessionID); !ok {
		writeError(w, http.StatusNotFound, config.ErrMsgSessionNotFound)
		return
	}

	var req sendMessageRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgProcessMessage)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, config.ErrMsgMessageRequired)
		return
	}

	// a turn survives the client going away; DELETE or cancel stop it
	ctx := context.WithoutCancel(r.Context())
	result, err := s.sessions.SendMessage(ctx, sessionID, req.Message, req.Images)
	if err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgProcessMessage)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgInvalidPagination)
		return
	}
	limit, err := queryInt(r, "limit", config.DefaultHistoryLimit)
	if err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgInvalidPagination)
		return
	}

	page, err := s.sessions.History(r.Context(), chi.URLParam(r, "sessionID"), offset, limit)
	if err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgInternal)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.sessions.CancelTurn(r.Context(), sessionID); err != nil {
		s.writeDomainError(w, r, err, config.ErrMsgInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"status":    "cancelled",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

// queryInt parses a non-negative integer query parameter
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errBadPagination
	}
	return v, nil
}
