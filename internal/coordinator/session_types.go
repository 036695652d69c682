package coordinator

import (
	"time"

	"github.com/tsantana84/codex-http/internal/agent"
)

// SessionState represents the lifecycle state of a session
type SessionState string

const (
	// SessionStateIdle indicates the session accepts a new message
	SessionStateIdle SessionState = "idle"
	// SessionStateRunning indicates a turn is in flight
	SessionStateRunning SessionState = "running"
	// SessionStateTerminated indicates the session was deleted or expired
	SessionStateTerminated SessionState = "terminated"
)

// SessionConfig is the effective configuration of a session
type SessionConfig struct {
	Model                   string               `json:"model"`
	Provider                string               `json:"provider"`
	ApprovalMode            agent.ApprovalPolicy `json:"approvalMode"`
	APIKey                  string               `json:"-"`
	Instructions            string               `json:"instructions,omitempty"`
	AdditionalWritableRoots []string             `json:"additionalWritableRoots,omitempty"`
	DisableResponseStorage  bool                 `json:"disableResponseStorage,omitempty"`
	Extra                   map[string]any       `json:"-"`
}

// CreateSessionRequest holds per-session overrides of the agent defaults.
// Empty fields inherit the defaults.
type CreateSessionRequest struct {
	Model                   string
	Provider                string
	APIKey                  string
	Instructions            string
	ApprovalMode            string
	AdditionalWritableRoots []string
	DisableResponseStorage  *bool
	// Config carries the client's free-form settings through to the engine
	Config map[string]any
}

// SessionInfo is a point-in-time snapshot of a session
type SessionInfo struct {
	ID           string        `json:"sessionId"`
	Config       SessionConfig `json:"config"`
	State        SessionState  `json:"state"`
	MessageCount int           `json:"messageCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
}

// TurnResult is the outcome of one message exchange
type TurnResult struct {
	SessionID         string       `json:"sessionId"`
	Items             []agent.Item `json:"messages"`
	TotalMessageCount int          `json:"totalMessageCount"`
	Cancelled         bool         `json:"cancelled,omitempty"`
}

// HistoryPage is a window of a session's item history
type HistoryPage struct {
	SessionID  string       `json:"sessionId"`
	Messages   []agent.Item `json:"messages"`
	TotalCount int          `json:"totalCount"`
	Offset     int          `json:"offset"`
	Limit      int          `json:"limit"`
}
