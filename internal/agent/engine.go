// Package agent defines the contract between sessions and the engines that
// run conversational turns.
package agent

import "context"

// EventSink receives engine events during a turn. Implementations must be
// safe for use from the engine's goroutines.
type EventSink interface {
	OnItem(item Item)
	OnLoading(loading bool)
	OnLastResponseID(id string)
}

// Engine runs turns for a single session. Run is never called concurrently
// for the same engine.
type Engine interface {
	// Run processes one turn and returns when the engine has finished
	// emitting events, the turn fails, or ctx is done.
	Run(ctx context.Context, input []Item, previousResponseID string, sink EventSink) error
	// Cancel aborts the in-flight turn, if any
	Cancel()
	// Terminate releases the engine. Later Run calls fail.
	Terminate()
}

// Factory constructs engines for new sessions
type Factory interface {
	NewEngine(ctx context.Context, opts Options) (Engine, error)
}

// HealthChecker is implemented by factories that depend on a remote service
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Options is the effective per-session engine configuration
type Options struct {
	Model                   string
	Provider                string
	APIKey                  string
	Instructions            string
	ApprovalPolicy          ApprovalPolicy
	AdditionalWritableRoots []string
	DisableResponseStorage  bool
	Config                  map[string]any
	Confirm                 CommandConfirmation
}

// FactoryFunc adapts a function to the Factory interface
type FactoryFunc func(ctx context.Context, opts Options) (Engine, error)

// NewEngine implements Factory
func (f FactoryFunc) NewEngine(ctx context.Context, opts Options) (Engine, error) {
	return f(ctx, opts)
}
