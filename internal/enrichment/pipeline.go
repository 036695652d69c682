// Package enrichment applies prompt decoration and retrieval context to a
// user message before it is sent to an engine.
package enrichment

import (
	"context"
	"log/slog"
)

// Decorator rewrites a prompt, returning the input on any failure
type Decorator interface {
	Decorate(ctx context.Context, text string) string
}

// Enhancer prepends retrieved context, returning the input on any failure
type Enhancer interface {
	EnhanceMessage(ctx context.Context, text string) string
}

// Pipeline runs decoration then retrieval. Either stage may be nil.
type Pipeline struct {
	decorator Decorator
	enhancer  Enhancer
	logger    *slog.Logger
}

// NewPipeline creates a pipeline from its stages
func NewPipeline(decorator Decorator, enhancer Enhancer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{decorator: decorator, enhancer: enhancer, logger: logger}
}

// Enrich returns text after decoration and retrieval. It never fails; a
// stage that cannot help leaves the text as it was.
func (p *Pipeline) Enrich(ctx context.Context, text string) string {
	out := text
	if p.decorator != nil {
		out = p.decorator.Decorate(ctx, out)
	}
	if p.enhancer != nil {
		out = p.enhancer.EnhanceMessage(ctx, out)
	}
	if out != text {
		p.logger.DebugContext(ctx, "message enriched",
			"original_length", len(text),
			"enriched_length", len(out))
	}
	return out
}
