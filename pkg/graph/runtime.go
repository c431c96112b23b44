// Package graph implements the synchronous runtime that drives a request
// through the agent's node graph: named node functions, unconditional and
// predicate-guarded edges, an explicit NextNode override, and a hard
// iteration cap. Execution within one request is strictly sequential.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fleetops/movi/pkg/models"
)

// MaxIterations bounds a single run. Exceeding it is a fatal
// misconfiguration, not a recoverable condition.
const MaxIterations = 20

// NodeFunc is a single processing stage. Nodes mutate only the state fields
// they own and report unrecoverable problems via the returned error; the
// runtime captures it on the state and reroutes, nothing escapes Run.
type NodeFunc func(ctx context.Context, s *models.FlowState) error

// Predicate guards a conditional edge. Predicates must be pure functions of
// state.
type Predicate func(s *models.FlowState) bool

// Edge is a transition from one node to another, optionally guarded.
type Edge struct {
	To   string
	When Predicate // nil means unconditional
}

// Runtime executes a registered graph from the start node until the terminal
// node has run.
type Runtime struct {
	nodes    map[string]NodeFunc
	edges    map[string][]Edge
	start    string
	terminal string
	fallback string
}

// New creates an empty runtime with the given start, terminal, and fallback
// node names. The named nodes must be registered before Run.
func New(start, terminal, fallback string) *Runtime {
	return &Runtime{
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string][]Edge),
		start:    start,
		terminal: terminal,
		fallback: fallback,
	}
}

// Register adds a named node. Registering the same name twice is a
// programming error and panics during graph construction.
func (r *Runtime) Register(name string, fn NodeFunc) {
	if _, exists := r.nodes[name]; exists {
		panic(fmt.Sprintf("graph: duplicate node %q", name))
	}
	r.nodes[name] = fn
}

// Connect adds an edge from one node to another. A nil predicate makes the
// edge unconditional. Edges are evaluated in declaration order; the first
// edge whose predicate passes wins.
func (r *Runtime) Connect(from, to string, when Predicate) {
	r.edges[from] = append(r.edges[from], Edge{To: to, When: when})
}

// Validate checks that every edge endpoint and the start/terminal/fallback
// nodes are registered. Called once at startup.
func (r *Runtime) Validate() error {
	for _, name := range []string{r.start, r.terminal, r.fallback} {
		if _, ok := r.nodes[name]; !ok {
			return fmt.Errorf("graph: node %q not registered", name)
		}
	}
	for from, outgoing := range r.edges {
		if _, ok := r.nodes[from]; !ok {
			return fmt.Errorf("graph: edge source %q not registered", from)
		}
		for _, e := range outgoing {
			if _, ok := r.nodes[e.To]; !ok {
				return fmt.Errorf("graph: edge target %q not registered", e.To)
			}
		}
	}
	return nil
}

// Run drives the state through the graph until the terminal node has
// executed. The returned state always carries a FinalOutput: if the graph
// misbehaves (cycle, unroutable node, panicking node) the error is captured
// on the state and the terminal node runs once to produce the envelope.
func (r *Runtime) Run(ctx context.Context, s *models.FlowState) *models.FlowState {
	current := r.start
	for i := 0; i < MaxIterations; i++ {
		terminalDone := current == r.terminal

		if err := r.invoke(ctx, current, s); err != nil {
			slog.Error("Graph node failed", "node", current, "error", err)
			if s.Error == nil {
				s.SetError(models.ErrDatabase, err.Error())
			}
			if terminalDone {
				// The terminal node itself failed; give up with what we have.
				return s
			}
			s.NextNode = ""
			current = r.fallback
			continue
		}

		if terminalDone {
			return s
		}

		next := s.NextNode
		s.NextNode = ""
		if next == "" {
			next = r.route(current, s)
		}
		if next == "" {
			slog.Error("Graph node has no outgoing route", "node", current)
			s.SetError(models.ErrGraphCycle, fmt.Sprintf("no route out of node %q", current))
			current = r.terminal
			continue
		}
		current = next
	}

	// Iteration cap exceeded: record the misconfiguration and force the
	// terminal node so the caller still receives an envelope.
	slog.Error("Graph iteration cap exceeded", "cap", MaxIterations, "node", current)
	s.Error = &models.AgentError{Kind: models.ErrGraphCycle, Message: "graph did not terminate"}
	s.NextNode = ""
	if err := r.invoke(ctx, r.terminal, s); err != nil {
		slog.Error("Terminal node failed after cycle", "error", err)
	}
	return s
}

// invoke runs one node, converting panics into errors so no failure escapes
// the runtime.
func (r *Runtime) invoke(ctx context.Context, name string, s *models.FlowState) (err error) {
	fn, ok := r.nodes[name]
	if !ok {
		return fmt.Errorf("graph: unknown node %q", name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("graph: node %q panicked: %v", name, rec)
		}
	}()
	return fn(ctx, s)
}

// route evaluates the outgoing edges of a node in declared order and returns
// the first whose predicate passes.
func (r *Runtime) route(from string, s *models.FlowState) string {
	for _, e := range r.edges[from] {
		if e.When == nil || e.When(s) {
			return e.To
		}
	}
	return ""
}
