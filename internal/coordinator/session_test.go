package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tsantana84/codex-http/internal/agent"
)

func newTestSession(clock *fakeClock, engine agent.Engine) *Session {
	return newSession("s-1", SessionConfig{Model: "m"}, engine, nil, testLogger(), clock.Now)
}

func noInput(ctx context.Context) ([]agent.Item, error) {
	return nil, nil
}

func TestSessionTouchIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	session := newTestSession(clock, &fakeEngine{})

	clock.Advance(time.Minute)
	session.Touch()
	later := session.LastActivity()

	clock.Advance(-30 * time.Second)
	session.Touch()
	if !session.LastActivity().Equal(later) {
		t.Errorf("Activity moved backwards: %v -> %v", later, session.LastActivity())
	}
}

func TestSessionItemsBounds(t *testing.T) {
	clock := newFakeClock()
	session := newTestSession(clock, &fakeEngine{itemsPerRun: 3})
	if _, err := session.Send(context.Background(), noInput); err != nil {
		t.Fatal(err)
	}

	items, total := session.Items(1, 10)
	if total != 3 || len(items) != 2 {
		t.Errorf("Expected 2 of 3 items, got %d of %d", len(items), total)
	}
	items, _ = session.Items(-5, 1)
	if len(items) != 1 {
		t.Errorf("Negative offset should clamp to 0, got %d items", len(items))
	}
	items, _ = session.Items(0, 0)
	if items == nil || len(items) != 0 {
		t.Errorf("Zero limit should return an empty slice, got %v", items)
	}
}

func TestSessionTerminateOnce(t *testing.T) {
	clock := newFakeClock()
	engine := &fakeEngine{}
	session := newTestSession(clock, engine)

	session.Terminate()
	session.Terminate()

	if _, cancels, terminates := engine.counts(); terminates != 1 || cancels != 0 {
		t.Errorf("Expected one terminate and no cancel for an idle session, got %d/%d", terminates, cancels)
	}
	if _, err := session.Send(context.Background(), noInput); !errors.Is(err, ErrSessionTerminated) {
		t.Errorf("Expected ErrSessionTerminated, got %v", err)
	}
	if session.Cancel() {
		t.Error("Cancel on a terminated session should report nothing cancelled")
	}
}

func TestSessionTerminateDuringTurn(t *testing.T) {
	clock := newFakeClock()
	engine := &fakeEngine{}
	session := newTestSession(clock, engine)

	started := make(chan struct{})
	engine.setRunFunc(func(ctx context.Context, input []agent.Item, sink agent.EventSink) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := session.Send(context.Background(), noInput)
		errCh <- err
	}()
	<-started

	session.Terminate()
	if err := <-errCh; !errors.Is(err, ErrSessionTerminated) {
		t.Errorf("Expected ErrSessionTerminated for the interrupted turn, got %v", err)
	}
	if _, cancels, terminates := engine.counts(); cancels != 1 || terminates != 1 {
		t.Errorf("Expected cancel then terminate, got %d/%d", cancels, terminates)
	}
}

func TestSessionExpireIfIdle(t *testing.T) {
	clock := newFakeClock()
	session := newTestSession(clock, &fakeEngine{})

	if session.expireIfIdle(clock.Now().Add(30*time.Minute), 30*time.Minute) {
		t.Error("Session idle exactly for the timeout should not expire")
	}
	if !session.expireIfIdle(clock.Now().Add(31*time.Minute), 30*time.Minute) {
		t.Fatal("Session idle past the timeout should expire")
	}
	if session.State() != SessionStateTerminated {
		t.Errorf("Claimed session should be terminated, got %q", session.State())
	}
	if _, err := session.Send(context.Background(), noInput); !errors.Is(err, ErrSessionTerminated) {
		t.Errorf("Claimed session should reject sends, got %v", err)
	}
}

func TestSessionCancelDuringBuild(t *testing.T) {
	clock := newFakeClock()
	engine := &fakeEngine{itemsPerRun: 1}
	session := newTestSession(clock, engine)

	building := make(chan struct{})
	resultCh := make(chan *TurnResult, 1)
	go func() {
		result, _ := session.Send(context.Background(), func(ctx context.Context) ([]agent.Item, error) {
			close(building)
			<-ctx.Done()
			return nil, nil
		})
		resultCh <- result
	}()
	<-building

	if !session.Cancel() {
		t.Fatal("Cancel should report the running turn")
	}
	result := <-resultCh
	if result == nil || !result.Cancelled || len(result.Items) != 0 {
		t.Errorf("Expected empty cancelled result, got %+v", result)
	}
	if runs, _, _ := engine.counts(); runs != 0 {
		t.Errorf("Engine should not run after a cancel during enrichment, ran %d", runs)
	}
}

// slowCancelEngine cancels its current run like a real engine, but its Cancel
// waits for release first, simulating a slow cancel RPC.
type slowCancelEngine struct {
	release chan struct{}

	mu     sync.Mutex
	runs   int
	cancel context.CancelFunc
}

func (e *slowCancelEngine) Run(ctx context.Context, input []agent.Item, previousResponseID string, sink agent.EventSink) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.runs++
	run := e.runs
	e.cancel = cancel
	e.mu.Unlock()

	if run == 1 {
		<-runCtx.Done()
		return runCtx.Err()
	}
	select {
	case <-runCtx.Done():
		return runCtx.Err()
	case <-time.After(100 * time.Millisecond):
	}
	sink.OnItem(assistantItem("second"))
	return nil
}

func (e *slowCancelEngine) Cancel() {
	<-e.release
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *slowCancelEngine) Terminate() {}

func (e *slowCancelEngine) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

func TestSessionLateCancelDoesNotHitNextTurn(t *testing.T) {
	clock := newFakeClock()
	engine := &slowCancelEngine{release: make(chan struct{})}
	session := newTestSession(clock, engine)

	firstCh := make(chan *TurnResult, 1)
	go func() {
		result, _ := session.Send(context.Background(), noInput)
		firstCh <- result
	}()
	waitFor(t, "first run", func() bool { return engine.runCount() == 1 })

	cancelDone := make(chan bool, 1)
	go func() { cancelDone <- session.Cancel() }()

	first := <-firstCh
	if first == nil || !first.Cancelled {
		t.Fatalf("Expected cancelled first turn, got %+v", first)
	}

	type outcome struct {
		result *TurnResult
		err    error
	}
	secondCh := make(chan outcome, 1)
	go func() {
		result, err := session.Send(context.Background(), noInput)
		secondCh <- outcome{result, err}
	}()

	// let the second turn reach the engine before the slow cancel lands
	time.Sleep(20 * time.Millisecond)
	close(engine.release)

	second := <-secondCh
	if second.err != nil {
		t.Fatalf("Second turn should not see the earlier cancel: %v", second.err)
	}
	if second.result.Cancelled || len(second.result.Items) != 1 {
		t.Errorf("Expected one item from an uncancelled turn, got %+v", second.result)
	}
	if !<-cancelDone {
		t.Error("Cancel should report the first turn")
	}
}
