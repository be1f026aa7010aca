package graph

import (
	"context"
	"strings"
)

// Echo copies the user input into the bot output unchanged.
func Echo() Node {
	return NodeFunc(func(_ context.Context, state State) (State, error) {
		return state.WithOutput(state.UserInput), nil
	})
}

// Trim strips surrounding whitespace from an already defined output.
func Trim() Node {
	return NodeFunc(func(_ context.Context, state State) (State, error) {
		out, ok := state.Output()
		if !ok {
			return state, nil
		}
		return state.WithOutput(strings.TrimSpace(out)), nil
	})
}
