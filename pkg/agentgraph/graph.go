package agentgraph

import (
	"context"
	"fmt"
)

// End is the sentinel target name meaning "the graph is done".
const End = "__end__"

// NodeFunc runs one node's logic, returning the messages it wants appended
// to the log (possibly none).
type NodeFunc func(ctx context.Context, s *State) ([]Message, error)

// ConditionalEdge decides a node's successor given the post-node state.
type ConditionalEdge func(ctx context.Context, s *State) (string, error)

// Node is one named step of the graph.
type Node struct {
	Name string
	Run  NodeFunc
}

// Graph is a small hand-rolled state machine standing in for LangGraph's
// StateGraph: named nodes, a fixed edge or a conditional edge out of each,
// and an optional interrupt-before set.
type Graph struct {
	nodes           map[string]NodeFunc
	fixedEdges      map[string]string
	condEdges       map[string]ConditionalEdge
	entry           string
	interruptBefore map[string]bool
}

// NewGraph creates an empty graph with the given entry node name.
func NewGraph(entry string) *Graph {
	return &Graph{
		nodes:           make(map[string]NodeFunc),
		fixedEdges:      make(map[string]string),
		condEdges:       make(map[string]ConditionalEdge),
		entry:           entry,
		interruptBefore: make(map[string]bool),
	}
}

// AddNode registers a node's run function.
func (g *Graph) AddNode(name string, run NodeFunc) {
	g.nodes[name] = run
}

// AddEdge wires an unconditional node -> node transition.
func (g *Graph) AddEdge(from, to string) {
	g.fixedEdges[from] = to
}

// AddConditionalEdge wires a node to a routing function whose return value
// names the next node (or End).
func (g *Graph) AddConditionalEdge(from string, route ConditionalEdge) {
	g.condEdges[from] = route
}

// InterruptBefore marks a node the engine must pause before entering,
// returning control to the caller so a checkpoint can be written — the
// analogue of LangGraph's interrupt_before compile option.
func (g *Graph) InterruptBefore(name string) {
	g.interruptBefore[name] = true
}

// Result is one Run's outcome: either the graph paused at an interrupt
// point (Interrupted=true, NextNode names where it will resume) or ran to
// End.
type Result struct {
	State       *State
	Interrupted bool
	NextNode    string
}

// Run executes the graph from startNode (the entry node, or an
// interrupt-resume point) until it reaches End or an interrupt-before node.
// Each node's returned messages are appended to the state before the next
// node runs, matching the original's message-append reducer semantics.
func (g *Graph) Run(ctx context.Context, startNode string, s *State) (*Result, error) {
	if startNode == "" {
		startNode = g.entry
	}
	current := startNode
	state := s.Clone()
	firstIteration := true

	for {
		if current == End {
			return &Result{State: state, Interrupted: false}, nil
		}
		if g.interruptBefore[current] && !firstIteration {
			return &Result{State: state, Interrupted: true, NextNode: current}, nil
		}
		firstIteration = false

		run, ok := g.nodes[current]
		if !ok {
			return nil, fmt.Errorf("agentgraph: no node named %q", current)
		}
		msgs, err := run(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("agentgraph: node %q: %w", current, err)
		}
		if len(msgs) > 0 {
			state = state.Append(msgs...)
		}

		next, err := g.next(ctx, current, state)
		if err != nil {
			return nil, err
		}
		current = next
	}
}

func (g *Graph) next(ctx context.Context, from string, s *State) (string, error) {
	if route, ok := g.condEdges[from]; ok {
		return route(ctx, s)
	}
	if to, ok := g.fixedEdges[from]; ok {
		return to, nil
	}
	return End, nil
}
