package graph

import (
	"context"
	"errors"
	"fmt"
)

// End is the terminal node of every graph.
const End = "__end__"

var (
	ErrStepLimit       = errors.New("graph exceeded its step limit")
	ErrUndefinedOutput = errors.New("graph finished without producing output")
)

// State is the per-invocation conversation state passed between nodes.
type State struct {
	UserInput string
	BotOutput string
	hasOutput bool
}

func NewState(userInput string) State {
	return State{UserInput: userInput}
}

// WithOutput returns a copy of s whose bot output is set to out.
func (s State) WithOutput(out string) State {
	s.BotOutput = out
	s.hasOutput = true
	return s
}

// Output returns the bot output and whether any node defined it.
func (s State) Output() (string, bool) {
	return s.BotOutput, s.hasOutput
}

// Node transforms the full conversation state.
type Node interface {
	Run(ctx context.Context, state State) (State, error)
}

type NodeFunc func(ctx context.Context, state State) (State, error)

func (f NodeFunc) Run(ctx context.Context, state State) (State, error) {
	return f(ctx, state)
}

type branch struct {
	targets []string
	choose  func(State) string
}

// Graph is a dispatch table of named nodes. Build it with AddNode, AddEdge
// and AddBranch, then Compile it once.
type Graph struct {
	entry    string
	nodes    map[string]Node
	order    []string
	edges    map[string]string
	branches map[string]branch
}

func New(entry string) *Graph {
	return &Graph{
		entry:    entry,
		nodes:    make(map[string]Node),
		edges:    make(map[string]string),
		branches: make(map[string]branch),
	}
}

func (g *Graph) AddNode(name string, node Node) *Graph {
	if _, ok := g.nodes[name]; !ok {
		g.order = append(g.order, name)
	}
	g.nodes[name] = node
	return g
}

// AddEdge routes from -> to unconditionally.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to
	return g
}

// AddBranch routes from to whichever of targets choose returns.
func (g *Graph) AddBranch(from string, targets []string, choose func(State) string) *Graph {
	g.branches[from] = branch{targets: targets, choose: choose}
	return g
}

// Compiled is an immutable, validated graph safe for concurrent use.
type Compiled struct {
	entry    string
	nodes    map[string]Node
	edges    map[string]string
	branches map[string]branch
	maxSteps int
}

// Compile validates the graph: the entry exists, every node routes somewhere
// known, there are no cycles, and the longest path fits in maxSteps.
func (g *Graph) Compile(maxSteps int) (*Compiled, error) {
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("entry node %q not defined", g.entry)
	}
	if maxSteps <= 0 {
		return nil, fmt.Errorf("max steps must be positive, got %d", maxSteps)
	}
	for _, name := range g.order {
		targets, err := g.successors(name)
		if err != nil {
			return nil, err
		}
		for _, to := range targets {
			if to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("node %q routes to unknown node %q", name, to)
			}
		}
	}

	depth := make(map[string]int, len(g.nodes))
	const visiting = -1
	var visit func(name string) (int, error)
	visit = func(name string) (int, error) {
		if name == End {
			return 0, nil
		}
		switch d, seen := depth[name]; {
		case seen && d == visiting:
			return 0, fmt.Errorf("cycle detected at node %q", name)
		case seen:
			return d, nil
		}
		depth[name] = visiting
		targets, _ := g.successors(name)
		longest := 0
		for _, to := range targets {
			d, err := visit(to)
			if err != nil {
				return 0, err
			}
			longest = max(longest, d)
		}
		depth[name] = longest + 1
		return longest + 1, nil
	}
	longest, err := visit(g.entry)
	if err != nil {
		return nil, err
	}
	if longest > maxSteps {
		return nil, fmt.Errorf("longest path has %d steps, limit is %d", longest, maxSteps)
	}

	c := &Compiled{
		entry:    g.entry,
		nodes:    make(map[string]Node, len(g.nodes)),
		edges:    make(map[string]string, len(g.edges)),
		branches: make(map[string]branch, len(g.branches)),
		maxSteps: maxSteps,
	}
	for k, v := range g.nodes {
		c.nodes[k] = v
	}
	for k, v := range g.edges {
		c.edges[k] = v
	}
	for k, v := range g.branches {
		c.branches[k] = v
	}
	return c, nil
}

func (g *Graph) successors(name string) ([]string, error) {
	if to, ok := g.edges[name]; ok {
		if _, dup := g.branches[name]; dup {
			return nil, fmt.Errorf("node %q has both an edge and a branch", name)
		}
		return []string{to}, nil
	}
	if b, ok := g.branches[name]; ok {
		if len(b.targets) == 0 || b.choose == nil {
			return nil, fmt.Errorf("node %q has an empty branch", name)
		}
		return b.targets, nil
	}
	return nil, fmt.Errorf("node %q has no outgoing edge", name)
}

// Run walks the graph from the entry to End.
func (c *Compiled) Run(ctx context.Context, state State) (State, error) {
	current := c.entry
	for step := 0; current != End; step++ {
		if step >= c.maxSteps {
			return state, ErrStepLimit
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}
		next, err := c.nodes[current].Run(ctx, state)
		if err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}
		state = next
		current, err = c.next(current, state)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

func (c *Compiled) next(name string, state State) (string, error) {
	if to, ok := c.edges[name]; ok {
		return to, nil
	}
	b := c.branches[name]
	to := b.choose(state)
	for _, t := range b.targets {
		if t == to {
			return to, nil
		}
	}
	return "", fmt.Errorf("node %s: branch chose undeclared target %q", name, to)
}

// NamedNode pairs a node with its key for linear pipelines.
type NamedNode struct {
	Name string
	Node Node
}

// Chain builds entry -> ... -> End from an ordered list of stages.
func Chain(stages ...NamedNode) *Graph {
	if len(stages) == 0 {
		return New("")
	}
	g := New(stages[0].Name)
	for i, s := range stages {
		g.AddNode(s.Name, s.Node)
		if i+1 < len(stages) {
			g.AddEdge(s.Name, stages[i+1].Name)
		} else {
			g.AddEdge(s.Name, End)
		}
	}
	return g
}
