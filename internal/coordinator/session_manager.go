package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tsantana84/codex-http/internal/agent"
	"github.com/tsantana84/codex-http/internal/config"
)

// maxIDAttempts bounds retries after a session id collision
const maxIDAttempts = 3

// SessionStore holds live sessions. Implementations must make Create and
// Delete atomic: Create fails with ErrSessionExists on a taken id and Delete
// returns the removed session to exactly one caller.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, bool)
	Delete(ctx context.Context, sessionID string) (*Session, bool)
	List(ctx context.Context) []*Session
	Count(ctx context.Context) int
}

// Enricher rewrites a user message before it reaches the engine
type Enricher interface {
	Enrich(ctx context.Context, text string) string
}

// SessionManager creates, tracks, and removes sessions
type SessionManager struct {
	store    SessionStore
	factory  agent.Factory
	defaults config.AgentConfig
	enricher Enricher
	events   *EventBroker
	audit    *AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// ManagerOption configures a SessionManager
type ManagerOption func(*SessionManager)

// WithEnricher sets the message enrichment stage
func WithEnricher(e Enricher) ManagerOption {
	return func(m *SessionManager) {
		m.enricher = e
	}
}

// WithEventBroker sets the broker that receives session events
func WithEventBroker(b *EventBroker) ManagerOption {
	return func(m *SessionManager) {
		m.events = b
	}
}

// WithAuditLogger sets the turn audit logger
func WithAuditLogger(a *AuditLogger) ManagerOption {
	return func(m *SessionManager) {
		m.audit = a
	}
}

// WithLogger sets the manager logger
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// withClock overrides the time source in tests
func withClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// NewSessionManager creates a session manager. defaults supplies the agent
// configuration for fields a create request leaves empty.
func NewSessionManager(store SessionStore, factory agent.Factory, defaults config.AgentConfig, opts ...ManagerOption) *SessionManager {
	sm := &SessionManager{
		store:    store,
		factory:  factory,
		defaults: defaults,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(sm)
	}
	if sm.audit == nil {
		sm.audit = NewAuditLogger(sm.logger)
	}
	return sm
}

// Events returns the event broker, or nil when none is configured
func (sm *SessionManager) Events() *EventBroker {
	return sm.events
}

// CreateSession builds an engine and registers a new session around it.
// Nothing is registered when the engine cannot be built.
func (sm *SessionManager) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	cfg, err := sm.resolveConfig(req)
	if err != nil {
		return nil, err
	}

	engine, err := sm.factory.NewEngine(ctx, agent.Options{
		Model:                   cfg.Model,
		Provider:                cfg.Provider,
		APIKey:                  cfg.APIKey,
		Instructions:            cfg.Instructions,
		ApprovalPolicy:          cfg.ApprovalMode,
		AdditionalWritableRoots: cfg.AdditionalWritableRoots,
		DisableResponseStorage:  cfg.DisableResponseStorage,
		Config:                  cfg.Extra,
		Confirm:                 agent.ConfirmationFor(cfg.ApprovalMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	var publisher EventPublisher
	if sm.events != nil {
		publisher = sm.events
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		session := newSession(uuid.NewString(), cfg, engine, publisher, sm.logger, sm.now)
		err := sm.store.Create(ctx, session)
		if err == nil {
			sm.logger.InfoContext(ctx, "session created",
				"session_id", session.ID(),
				"model", cfg.Model,
				"provider", cfg.Provider,
				"approval_mode", cfg.ApprovalMode)
			sm.audit.LogSessionEvent(ctx, "session_created", session.ID())
			return session, nil
		}
		if !errors.Is(err, ErrSessionExists) {
			engine.Terminate()
			return nil, fmt.Errorf("failed to register session: %w", err)
		}
	}

	engine.Terminate()
	return nil, errors.New("failed to allocate a unique session id")
}

func (sm *SessionManager) resolveConfig(req CreateSessionRequest) (SessionConfig, error) {
	mode := req.ApprovalMode
	if mode == "" {
		mode = sm.defaults.ApprovalMode
	}
	policy, err := agent.ParseApprovalPolicy(mode)
	if err != nil {
		return SessionConfig{}, err
	}

	cfg := SessionConfig{
		Model:                   firstNonEmpty(req.Model, sm.defaults.Model),
		Provider:                firstNonEmpty(req.Provider, sm.defaults.Provider, "openai"),
		ApprovalMode:            policy,
		APIKey:                  firstNonEmpty(req.APIKey, sm.defaults.APIKey),
		Instructions:            firstNonEmpty(req.Instructions, sm.defaults.Instructions),
		AdditionalWritableRoots: req.AdditionalWritableRoots,
		DisableResponseStorage:  sm.defaults.DisableResponseStorage,
		Extra:                   req.Config,
	}
	if req.DisableResponseStorage != nil {
		cfg.DisableResponseStorage = *req.DisableResponseStorage
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) (*Session, bool) {
	return sm.store.Get(ctx, sessionID)
}

// Touch stamps activity on a session. It reports whether the session exists.
func (sm *SessionManager) Touch(ctx context.Context, sessionID string) bool {
	session, ok := sm.store.Get(ctx, sessionID)
	if !ok {
		return false
	}
	session.Touch()
	return true
}

// DeleteSession removes a session and terminates its engine. Of two racing
// deletes only one succeeds; the other gets ErrSessionNotFound.
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	session, ok := sm.store.Delete(ctx, sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	session.Terminate()
	sm.logger.InfoContext(ctx, "session deleted", "session_id", sessionID)
	sm.audit.LogSessionEvent(ctx, "session_deleted", sessionID)
	return nil
}

// ListSessions returns snapshots of all sessions, oldest first
func (sm *SessionManager) ListSessions(ctx context.Context) []SessionInfo {
	sessions := sm.store.List(ctx)
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// SessionCount returns the number of live sessions
func (sm *SessionManager) SessionCount(ctx context.Context) int {
	return sm.store.Count(ctx)
}

// CleanupStale removes sessions idle for longer than maxAge and returns how
// many this call removed. Idleness is decided under each session's lock, so
// activity recorded before the check keeps the session alive.
func (sm *SessionManager) CleanupStale(ctx context.Context, maxAge time.Duration) int {
	now := sm.now()
	removed := 0
	for _, session := range sm.store.List(ctx) {
		if !session.expireIfIdle(now, maxAge) {
			continue
		}
		victim, ok := sm.store.Delete(ctx, session.ID())
		if !ok {
			// a concurrent delete got there first and terminates it
			continue
		}
		victim.Terminate()
		removed++
		sm.logger.InfoContext(ctx, "session expired",
			"session_id", session.ID(),
			"idle_timeout", maxAge)
		sm.audit.LogSessionEvent(ctx, "session_expired", session.ID())
	}
	return removed
}

// SendMessage enriches text, runs a turn on the session, and returns the
// items the turn produced
func (sm *SessionManager) SendMessage(ctx context.Context, sessionID, text string, images []string) (*TurnResult, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	session, ok := sm.store.Get(ctx, sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	start := sm.now()
	traceID := TraceIDFrom(ctx)
	sm.audit.LogTurnStart(ctx, &AuditEntry{
		Timestamp:     start,
		SessionID:     sessionID,
		Model:         session.Config().Model,
		MessageLength: len(text),
		ImageCount:    len(images),
		TraceID:       traceID,
	})

	result, err := session.Send(ctx, func(ctx context.Context) ([]agent.Item, error) {
		enriched := text
		if sm.enricher != nil {
			enriched = sm.enricher.Enrich(ctx, text)
		}
		item, err := agent.NewInputItem(enriched, images)
		if err != nil {
			return nil, err
		}
		return []agent.Item{item}, nil
	})

	entry := &AuditEntry{
		SessionID: sessionID,
		Duration:  sm.now().Sub(start),
		TraceID:   traceID,
	}
	if err != nil {
		entry.ErrorMsg = err.Error()
		sm.audit.LogTurnResult(ctx, entry)
		return nil, err
	}
	entry.ItemCount = len(result.Items)
	entry.Cancelled = result.Cancelled
	sm.audit.LogTurnResult(ctx, entry)
	return result, nil
}

// CancelTurn cancels the in-flight turn of a session, if any
func (sm *SessionManager) CancelTurn(ctx context.Context, sessionID string) error {
	session, ok := sm.store.Get(ctx, sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if session.Cancel() {
		sm.logger.InfoContext(ctx, "turn cancel requested", "session_id", sessionID)
	}
	return nil
}

// History returns a page of a session's items. limit is capped at
// config.MaxHistoryLimit; a non-positive limit selects the default.
func (sm *SessionManager) History(ctx context.Context, sessionID string, offset, limit int) (*HistoryPage, error) {
	session, ok := sm.store.Get(ctx, sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}
	if limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}

	items, total := session.Items(offset, limit)
	return &HistoryPage{
		SessionID:  sessionID,
		Messages:   items,
		TotalCount: total,
		Offset:     offset,
		Limit:      limit,
	}, nil
}

// Shutdown terminates and removes every session
func (sm *SessionManager) Shutdown(ctx context.Context) {
	for _, session := range sm.store.List(ctx) {
		if victim, ok := sm.store.Delete(ctx, session.ID()); ok {
			victim.Terminate()
		}
	}
	sm.logger.InfoContext(ctx, "all sessions terminated")
}
