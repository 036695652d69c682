// Package echo provides an in-process engine that echoes user input. It is
// used for local development and when no remote worker is configured.
package echo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tsantana84/codex-http/internal/agent"
)

// ErrTerminated is returned by Run after Terminate
var ErrTerminated = errors.New("engine terminated")

// commandPrefix marks a line of input as a proposed shell command
const commandPrefix = "$ "

// Factory creates echo engines
type Factory struct {
	delay  time.Duration
	logger *slog.Logger
}

// NewFactory creates a factory whose engines pause for delay before each
// emitted item
func NewFactory(delay time.Duration, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{delay: delay, logger: logger}
}

// NewEngine implements agent.Factory
func (f *Factory) NewEngine(ctx context.Context, opts agent.Options) (agent.Engine, error) {
	confirm := opts.Confirm
	if confirm == nil {
		confirm = agent.ConfirmationFor(opts.ApprovalPolicy)
	}
	return &Engine{
		model:   opts.Model,
		confirm: confirm,
		delay:   f.delay,
		logger:  f.logger,
	}, nil
}

// Engine echoes each turn's input text back as an assistant message
type Engine struct {
	model   string
	confirm agent.CommandConfirmation
	delay   time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	terminated bool
}

// Run implements agent.Engine
func (e *Engine) Run(ctx context.Context, input []agent.Item, previousResponseID string, sink agent.EventSink) error {
	e.mu.Lock()
	if e.terminated {
		e.mu.Unlock()
		return ErrTerminated
	}
	turnCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	sink.OnLoading(true)
	defer sink.OnLoading(false)

	text := inputText(input)
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(line, commandPrefix) {
			continue
		}
		if err := e.proposeCommand(turnCtx, strings.Fields(strings.TrimPrefix(line, commandPrefix)), sink); err != nil {
			return err
		}
	}

	if err := e.wait(turnCtx); err != nil {
		return err
	}
	sink.OnItem(agent.Item{
		ID:     "msg_" + ulid.Make().String(),
		Type:   agent.ItemTypeMessage,
		Role:   agent.RoleAssistant,
		Status: "completed",
		Content: []agent.ContentPart{
			{Type: agent.ContentOutputText, Text: text},
		},
	})

	responseID := "resp_" + ulid.Make().String()
	sink.OnLastResponseID(responseID)
	e.logger.Debug("echo turn complete",
		"model", e.model,
		"response_id", responseID,
		"previous_response_id", previousResponseID)
	return nil
}

// proposeCommand records a command proposal and its review decision. The
// command itself is never executed.
func (e *Engine) proposeCommand(ctx context.Context, command []string, sink agent.EventSink) error {
	if len(command) == 0 {
		return nil
	}
	if err := e.wait(ctx); err != nil {
		return err
	}

	callID := "call_" + ulid.Make().String()
	args, _ := json.Marshal(map[string]any{"command": command})
	sink.OnItem(agent.Item{
		ID:        "fc_" + ulid.Make().String(),
		Type:      agent.ItemTypeFunctionCall,
		Status:    "completed",
		CallID:    callID,
		Name:      "shell",
		Arguments: string(args),
	})

	decision := e.confirm(command)
	if err := e.wait(ctx); err != nil {
		return err
	}
	output, _ := json.Marshal(map[string]any{
		"decision": decision,
		"executed": false,
	})
	sink.OnItem(agent.Item{
		Type:   agent.ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: string(output),
	})
	return nil
}

func (e *Engine) wait(ctx context.Context) error {
	if e.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Cancel implements agent.Engine
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Terminate implements agent.Engine
func (e *Engine) Terminate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminated = true
	if e.cancel != nil {
		e.cancel()
	}
}

func inputText(input []agent.Item) string {
	parts := make([]string, 0, len(input))
	for _, item := range input {
		if item.Type != agent.ItemTypeMessage {
			continue
		}
		if text := item.Text(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
