package scheduler

import (
	"context"
	"time"

	"github.com/vk/nodepipe/internal/node"
)

// Event describes one node state transition.
type Event struct {
	Node     *node.Node
	From     node.State
	To       node.State
	Err      error
	Duration time.Duration
	UpToDate bool
	WorkerID int
}

// Observer receives node state transitions. Implementations must be safe for
// concurrent use and should not block.
type Observer interface {
	NodeTransition(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) NodeTransition(ctx context.Context, ev Event) { f(ctx, ev) }
