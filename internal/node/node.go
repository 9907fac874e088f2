package node

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Runnable is the work a node performs: a single command or a command set.
type Runnable interface {
	// Execute runs the work inside workDir, a private directory created for
	// this invocation.
	Execute(ctx context.Context, workDir string) error
	InputFiles() []string
	OutputFiles() []string
	String() string
}

// noop backs meta nodes.
type noop struct{}

func (noop) Execute(context.Context, string) error { return nil }
func (noop) InputFiles() []string                  { return nil }
func (noop) OutputFiles() []string                 { return nil }
func (noop) String() string                        { return "<meta>" }

// State represents the execution state of a node.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies to complete.
	Pending State = iota
	// Running indicates the node is currently being executed by a worker.
	Running
	// Done indicates the node has completed execution successfully.
	Done
	// Failed indicates the node's work failed.
	Failed
	// Skipped indicates the node never ran because a dependency failed or the
	// run was cancelled.
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == Done || s == Failed || s == Skipped
}

var (
	// ErrNilRunnable is returned by New without work to run.
	ErrNilRunnable = errors.New("node has no runnable")
	// ErrNilDependency is returned when a dependency is nil.
	ErrNilDependency = errors.New("nil dependency")
)

// Node is a single vertex in the execution graph: a description, the work to
// run and the nodes that must complete first. Dependencies are fixed at
// construction.
type Node struct {
	description string
	runnable    Runnable
	meta        bool
	deps        []*Node

	// state is the node's current execution state, managed atomically.
	state atomic.Int32
	// claimed is set while a scheduler run owns the node's state.
	claimed atomic.Bool
}

// New creates a node running r after deps. Duplicate dependencies collapse.
func New(description string, r Runnable, deps ...*Node) (*Node, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %q", ErrNilRunnable, description)
	}
	return newNode(description, r, false, deps)
}

// NewMeta creates a node that does no work of its own and only groups deps.
func NewMeta(description string, deps ...*Node) (*Node, error) {
	return newNode(description, noop{}, true, deps)
}

func newNode(description string, r Runnable, meta bool, deps []*Node) (*Node, error) {
	n := &Node{description: description, runnable: r, meta: meta}
	seen := make(map[*Node]bool, len(deps))
	for _, d := range deps {
		if d == nil {
			return nil, fmt.Errorf("%w in %q", ErrNilDependency, description)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		n.deps = append(n.deps, d)
	}
	return n, nil
}

// Description returns the human-readable label of the node.
func (n *Node) Description() string { return n.description }

func (n *Node) String() string { return n.description }

// IsMeta reports whether the node only groups its dependencies.
func (n *Node) IsMeta() bool { return n.meta }

// Runnable returns the node's work.
func (n *Node) Runnable() Runnable { return n.runnable }

// Dependencies returns the nodes n depends on, in declaration order.
func (n *Node) Dependencies() []*Node {
	return append([]*Node(nil), n.deps...)
}

// InputFiles returns the declared inputs of the node's work.
func (n *Node) InputFiles() []string { return n.runnable.InputFiles() }

// OutputFiles returns the declared outputs of the node's work.
func (n *Node) OutputFiles() []string { return n.runnable.OutputFiles() }

// State atomically retrieves the node's execution state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// SetState atomically sets the node's execution state.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
}

// Claim marks the node as owned by one run. It reports false if another run
// already owns it.
func (n *Node) Claim() bool {
	return n.claimed.CompareAndSwap(false, true)
}

// Release ends the ownership taken by Claim.
func (n *Node) Release() {
	n.claimed.Store(false)
}

// Transition atomically moves the node from one state to another and reports
// whether it was in the expected state.
func (n *Node) Transition(from, to State) bool {
	return n.state.CompareAndSwap(int32(from), int32(to))
}
