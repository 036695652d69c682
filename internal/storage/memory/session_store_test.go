package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tsantana84/codex-http/internal/agent/echo"
	"github.com/tsantana84/codex-http/internal/config"
	"github.com/tsantana84/codex-http/internal/coordinator"
)

func newManager(t *testing.T, store *SessionStore) *coordinator.SessionManager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return coordinator.NewSessionManager(store, echo.NewFactory(0, logger), config.Default().Agent,
		coordinator.WithLogger(logger))
}

func TestSessionStoreCreate(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	manager := newManager(t, store)

	session, err := manager.CreateSession(ctx, coordinator.CreateSessionRequest{})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if store.Count(ctx) != 1 {
		t.Errorf("Expected 1 session, got %d", store.Count(ctx))
	}

	got, ok := store.Get(ctx, session.ID())
	if !ok || got != session {
		t.Error("Get should return the stored session")
	}

	if err := store.Create(ctx, session); !errors.Is(err, coordinator.ErrSessionExists) {
		t.Errorf("Expected ErrSessionExists, got %v", err)
	}
	if err := store.Create(ctx, nil); err == nil {
		t.Error("Expected error for nil session")
	}
}

func TestSessionStoreGetMissing(t *testing.T) {
	store := NewSessionStore()
	if _, ok := store.Get(context.Background(), "nope"); ok {
		t.Error("Expected missing session")
	}
	if _, ok := store.Delete(context.Background(), "nope"); ok {
		t.Error("Delete of a missing session should report false")
	}
}

func TestSessionStoreListOrder(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	manager := newManager(t, store)

	var ids []string
	for i := 0; i < 5; i++ {
		session, err := manager.CreateSession(ctx, coordinator.CreateSessionRequest{})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, session.ID())
	}

	list := store.List(ctx)
	if len(list) != len(ids) {
		t.Fatalf("Expected %d sessions, got %d", len(ids), len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt().Before(list[i-1].CreatedAt()) {
			t.Errorf("List not ordered by creation time at index %d", i)
		}
	}
}

func TestSessionStoreConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	manager := newManager(t, store)

	session, err := manager.CreateSession(ctx, coordinator.CreateSessionRequest{})
	if err != nil {
		t.Fatal(err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.Delete(ctx, session.ID()); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Expected exactly one successful delete, got %d", wins.Load())
	}
	if store.Count(ctx) != 0 {
		t.Errorf("Expected empty store, got %d", store.Count(ctx))
	}
}
