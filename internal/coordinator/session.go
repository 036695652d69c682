package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tsantana84/codex-http/internal/agent"
)

// EventPublisher receives session events
type EventPublisher interface {
	Publish(event Event)
	CloseSession(sessionID string)
}

// BuildInput produces the engine input for a turn. It runs after the turn is
// reserved, so enrichment never overlaps another turn of the same session.
type BuildInput func(ctx context.Context) ([]agent.Item, error)

// Session is one conversation with its own engine. At most one turn runs at
// a time and the item history is only appended by the running turn.
type Session struct {
	id        string
	config    SessionConfig
	createdAt time.Time
	engine    agent.Engine
	events    EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu             sync.Mutex
	state          SessionState
	items          []agent.Item
	lastResponseID string
	lastActivity   time.Time
	turn           *turn

	// engineMu orders engine.Cancel calls before the start of the next Run
	engineMu sync.Mutex

	terminateOnce sync.Once
}

// turn tracks the in-flight exchange. cancelled is guarded by Session.mu.
type turn struct {
	cancel    context.CancelFunc
	cancelled bool
}

func newSession(id string, cfg SessionConfig, engine agent.Engine, events EventPublisher, logger *slog.Logger, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:           id,
		config:       cfg,
		createdAt:    created,
		engine:       engine,
		events:       events,
		logger:       logger,
		now:          now,
		state:        SessionStateIdle,
		lastActivity: created,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Config returns the effective session configuration
func (s *Session) Config() SessionConfig {
	return s.config
}

// CreatedAt returns the creation time
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns the time of the most recent activity
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// LastResponseID returns the engine's most recent response id
func (s *Session) LastResponseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponseID
}

// MessageCount returns the number of items in the history
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Info returns a snapshot of the session
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:           s.id,
		Config:       s.config,
		State:        s.state,
		MessageCount: len(s.items),
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

// Items returns up to limit history items starting at offset, and the total
// history length. The returned slice is never nil.
func (s *Session) Items(offset, limit int) ([]agent.Item, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.items)
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return []agent.Item{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]agent.Item, end-offset)
	copy(out, s.items[offset:end])
	return out, total
}

// Touch records activity. Activity time never moves backwards.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

func (s *Session) touchLocked() {
	if now := s.now(); now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// Send runs one turn. build is called once the turn is reserved and its
// result is handed to the engine. A send while another turn runs fails with
// ErrSessionBusy. A turn cancelled through Cancel is not an error: the
// result carries the items appended before the cancel and Cancelled=true.
func (s *Session) Send(ctx context.Context, build BuildInput) (*TurnResult, error) {
	s.mu.Lock()
	switch s.state {
	case SessionStateTerminated:
		s.mu.Unlock()
		return nil, ErrSessionTerminated
	case SessionStateRunning:
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{cancel: cancel}
	s.turn = t
	s.state = SessionStateRunning
	s.touchLocked()
	start := len(s.items)
	previousResponseID := s.lastResponseID
	s.mu.Unlock()

	defer cancel()

	input, buildErr := build(turnCtx)
	var err error
	if buildErr == nil {
		s.engineMu.Lock()
		s.engineMu.Unlock() //nolint:staticcheck // barrier for a pending Cancel
		if err = turnCtx.Err(); err == nil {
			err = s.engine.Run(turnCtx, input, previousResponseID, &turnSink{session: s, turn: t})
		}
	}
	cancel()

	s.mu.Lock()
	cancelled := t.cancelled
	newItems := make([]agent.Item, len(s.items)-start)
	copy(newItems, s.items[start:])
	total := len(s.items)
	if s.turn == t {
		s.turn = nil
	}
	if s.state == SessionStateRunning {
		s.state = SessionStateIdle
	}
	terminated := s.state == SessionStateTerminated
	s.touchLocked()
	s.mu.Unlock()

	result := &TurnResult{
		SessionID:         s.id,
		Items:             newItems,
		TotalMessageCount: total,
		Cancelled:         cancelled,
	}
	switch {
	case cancelled && !terminated:
		s.logger.Info("turn cancelled", "session_id", s.id, "items", len(newItems))
		return result, nil
	case terminated:
		return nil, ErrSessionTerminated
	case buildErr != nil:
		return nil, buildErr
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("engine run failed: %w", err)
	}
	return result, nil
}

// Cancel aborts the in-flight turn. It reports whether a turn was cancelled;
// cancelling an idle session is a successful no-op.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	t := s.turn
	if t == nil || t.cancelled {
		s.touchLocked()
		s.mu.Unlock()
		return false
	}
	t.cancelled = true
	t.cancel()
	s.touchLocked()
	s.mu.Unlock()

	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	s.mu.Lock()
	current := s.turn == t
	s.mu.Unlock()
	// once t has finished the engine may already be running a newer turn
	if current {
		s.engine.Cancel()
	}
	return true
}

// Terminate cancels any running turn and releases the engine. Only the first
// call has an effect.
func (s *Session) Terminate() {
	s.terminateOnce.Do(func() {
		s.mu.Lock()
		t := s.turn
		running := t != nil && !t.cancelled
		if t != nil {
			t.cancelled = true
			t.cancel()
		}
		s.state = SessionStateTerminated
		s.mu.Unlock()

		if running {
			s.engine.Cancel()
		}
		s.engine.Terminate()

		if s.events != nil {
			s.events.Publish(Event{Type: EventTerminated, SessionID: s.id, Timestamp: s.now()})
			s.events.CloseSession(s.id)
		}
		s.logger.Debug("session terminated", "session_id", s.id)
	})
}

// expireIfIdle claims the session for removal when it has been idle for
// longer than timeout at now. Running sessions are never claimed. A claimed
// session rejects further sends.
func (s *Session) expireIfIdle(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStateIdle {
		return false
	}
	if now.Sub(s.lastActivity) <= timeout {
		return false
	}
	s.state = SessionStateTerminated
	return true
}

// live reports whether events from t should still be recorded
func (s *Session) live(t *turn) bool {
	return s.turn == t && !t.cancelled && s.state == SessionStateRunning
}

func (s *Session) publish(event Event) {
	if s.events == nil {
		return
	}
	event.SessionID = s.id
	event.Timestamp = s.now()
	s.events.Publish(event)
}

// turnSink records engine events for a single turn. Events arriving after the
// turn was cancelled or finished are dropped.
type turnSink struct {
	session *Session
	turn    *turn
}

func (ts *turnSink) OnItem(item agent.Item) {
	s := ts.session
	s.mu.Lock()
	if !s.live(ts.turn) {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items, item)
	s.mu.Unlock()

	s.publish(Event{Type: EventItem, Item: &item})
}

func (ts *turnSink) OnLoading(loading bool) {
	s := ts.session
	s.mu.Lock()
	live := s.live(ts.turn)
	s.mu.Unlock()
	if live {
		s.publish(Event{Type: EventLoading, Loading: &loading})
	}
}

func (ts *turnSink) OnLastResponseID(id string) {
	s := ts.session
	s.mu.Lock()
	if !s.live(ts.turn) {
		s.mu.Unlock()
		return
	}
	s.lastResponseID = id
	s.mu.Unlock()

	s.publish(Event{Type: EventResponseID, ResponseID: id})
}
