package graph

import (
	"context"
	"fmt"
)

// Processor turns one user message into one reply. Implementations must be
// safe for concurrent use.
type Processor interface {
	Process(ctx context.Context, userInput string) (string, error)
}

// GraphProcessor runs a compiled native graph.
type GraphProcessor struct {
	graph *Compiled
}

func NewGraphProcessor(g *Compiled) *GraphProcessor {
	return &GraphProcessor{graph: g}
}

func (p *GraphProcessor) Process(ctx context.Context, userInput string) (string, error) {
	state, err := p.graph.Run(ctx, NewState(userInput))
	if err != nil {
		return "", fmt.Errorf("run conversation graph: %w", err)
	}
	out, ok := state.Output()
	if !ok {
		return "", ErrUndefinedOutput
	}
	return out, nil
}
