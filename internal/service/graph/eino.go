package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

// EinoProcessor runs the same stage pipeline on the eino compose runtime.
type EinoProcessor struct {
	runner compose.Runnable[*State, *State]
}

// NewEinoProcessor compiles stages into START -> s0 -> ... -> END.
func NewEinoProcessor(ctx context.Context, maxSteps int, stages ...NamedNode) (*EinoProcessor, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("eino processor needs at least one stage")
	}
	g := compose.NewGraph[*State, *State]()
	prev := compose.START
	for i, stage := range stages {
		key := fmt.Sprintf("%02d_%s", i, stage.Name)
		node := stage.Node
		lambda := compose.InvokableLambda(func(ctx context.Context, in *State) (*State, error) {
			out, err := node.Run(ctx, *in)
			if err != nil {
				return nil, err
			}
			return &out, nil
		})
		if err := g.AddLambdaNode(key, lambda); err != nil {
			return nil, fmt.Errorf("add node %s: %w", key, err)
		}
		if err := g.AddEdge(prev, key); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", prev, key, err)
		}
		prev = key
	}
	if err := g.AddEdge(prev, compose.END); err != nil {
		return nil, fmt.Errorf("add edge %s -> end: %w", prev, err)
	}

	// START and END each take one superstep.
	runner, err := g.Compile(ctx, compose.WithMaxRunSteps(maxSteps+2))
	if err != nil {
		return nil, fmt.Errorf("compile eino graph: %w", err)
	}
	return &EinoProcessor{runner: runner}, nil
}

func (p *EinoProcessor) Process(ctx context.Context, userInput string) (string, error) {
	in := NewState(userInput)
	state, err := p.runner.Invoke(ctx, &in)
	if err != nil {
		return "", fmt.Errorf("run eino graph: %w", err)
	}
	if state == nil {
		return "", ErrUndefinedOutput
	}
	out, ok := state.Output()
	if !ok {
		return "", ErrUndefinedOutput
	}
	return out, nil
}
