package coordinator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tsantana84/codex-http/internal/agent"
	"github.com/tsantana84/codex-http/internal/config"
)

// testStore is a minimal SessionStore for package tests
type testStore struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	createErrs []error
}

func newTestStore() *testStore {
	return &testStore{sessions: make(map[string]*Session)}
}

func (s *testStore) Create(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, exists := s.sessions[session.ID()]; exists {
		return ErrSessionExists
	}
	s.sessions[session.ID()] = session
	return nil
}

func (s *testStore) Get(ctx context.Context, id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *testStore) Delete(ctx context.Context, id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	return session, ok
}

func (s *testStore) List(ctx context.Context) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *testStore) Count(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// fakeEngine emits itemsPerRun assistant items per turn unless runFunc is set
type fakeEngine struct {
	mu          sync.Mutex
	itemsPerRun int
	runFunc     func(ctx context.Context, input []agent.Item, sink agent.EventSink) error
	runs        int
	inputs      [][]agent.Item
	previousIDs []string
	cancels     int
	terminates  int
}

func (e *fakeEngine) Run(ctx context.Context, input []agent.Item, previousResponseID string, sink agent.EventSink) error {
	e.mu.Lock()
	e.runs++
	run := e.runs
	e.inputs = append(e.inputs, input)
	e.previousIDs = append(e.previousIDs, previousResponseID)
	fn := e.runFunc
	n := e.itemsPerRun
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, input, sink)
	}
	sink.OnLoading(true)
	for i := 0; i < n; i++ {
		sink.OnItem(assistantItem(fmt.Sprintf("run %d item %d", run, i)))
	}
	sink.OnLastResponseID(fmt.Sprintf("resp_%d", run))
	sink.OnLoading(false)
	return nil
}

func (e *fakeEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
}

func (e *fakeEngine) Terminate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminates++
}

func (e *fakeEngine) counts() (runs, cancels, terminates int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs, e.cancels, e.terminates
}

func (e *fakeEngine) setRunFunc(fn func(ctx context.Context, input []agent.Item, sink agent.EventSink) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runFunc = fn
}

// fakeFactory hands out fakeEngines and remembers them
type fakeFactory struct {
	mu          sync.Mutex
	itemsPerRun int
	err         error
	engines     []*fakeEngine
	options     []agent.Options
}

func (f *fakeFactory) NewEngine(ctx context.Context, opts agent.Options) (agent.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.options = append(f.options, opts)
	if f.err != nil {
		return nil, f.err
	}
	e := &fakeEngine{itemsPerRun: f.itemsPerRun}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *fakeFactory) engine(i int) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func assistantItem(text string) agent.Item {
	return agent.Item{
		Type:    agent.ItemTypeMessage,
		Role:    agent.RoleAssistant,
		Content: []agent.ContentPart{{Type: agent.ContentOutputText, Text: text}},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDefaults() config.AgentConfig {
	return config.AgentConfig{
		Model:        "codex-mini-latest",
		Provider:     "openai",
		APIKey:       "sk-default",
		ApprovalMode: "suggest",
	}
}

type testHarness struct {
	manager *SessionManager
	store   *testStore
	factory *fakeFactory
	clock   *fakeClock
	events  *EventBroker
}

func newHarness(t *testing.T, itemsPerRun int, opts ...ManagerOption) *testHarness {
	t.Helper()
	h := &testHarness{
		store:   newTestStore(),
		factory: &fakeFactory{itemsPerRun: itemsPerRun},
		clock:   newFakeClock(),
		events:  NewEventBroker(16, testLogger()),
	}
	all := []ManagerOption{
		WithLogger(testLogger()),
		WithEventBroker(h.events),
		withClock(h.clock.Now),
	}
	all = append(all, opts...)
	h.manager = NewSessionManager(h.store, h.factory, testDefaults(), all...)
	return h
}

func (h *testHarness) create(t *testing.T) *Session {
	t.Helper()
	session, err := h.manager.CreateSession(context.Background(), CreateSessionRequest{})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return session
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
