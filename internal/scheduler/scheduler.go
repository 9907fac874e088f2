package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vk/nodepipe/internal/ctxlog"
	"github.com/vk/nodepipe/internal/graph"
	"github.com/vk/nodepipe/internal/node"
)

var (
	// ErrInvalidParallelism is returned for a worker count below 1.
	ErrInvalidParallelism = errors.New("max parallelism must be at least 1")
	// ErrOutputCollision is returned when two nodes declare the same output path.
	ErrOutputCollision = errors.New("output declared by more than one node")
	// ErrNilNode is returned when a root is nil.
	ErrNilNode = errors.New("nil node")
	// ErrNodeInUse is returned when a node is already part of a running graph.
	ErrNodeInUse = errors.New("node is part of another run")
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTempRoot sets the directory below which per-node working directories
// are created. It defaults to os.TempDir().
func WithTempRoot(dir string) Option {
	return func(s *Scheduler) { s.tempRoot = dir }
}

// WithKeepFailedTemp keeps working directories of failed nodes.
func WithKeepFailedTemp(keep bool) Option {
	return func(s *Scheduler) { s.keepFailedTemp = keep }
}

// WithSkipUpToDate marks nodes whose outputs are newer than their inputs as
// done without running them.
func WithSkipUpToDate(skip bool) Option {
	return func(s *Scheduler) { s.skipUpToDate = skip }
}

// WithObserver registers an observer for node state transitions.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// Scheduler executes node graphs. A Scheduler holds only configuration and
// may run several graphs, one after another or concurrently. Node states live
// on the nodes, so graphs run concurrently must not share nodes; Run rejects
// a graph with a node another run still owns.
type Scheduler struct {
	tempRoot       string
	keepFailedTemp bool
	skipUpToDate   bool
	observers      []Observer
}

// New creates a scheduler with the given options.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{tempRoot: os.TempDir()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes a run.
type Result struct {
	Succeeded bool
	// Nodes holds one result per node in topological order.
	Nodes         []*node.Result
	Failed        int
	Skipped       int
	MaxConcurrent int
	Duration      time.Duration
}

// FailedNodes returns the results of nodes whose work failed.
func (r *Result) FailedNodes() []*node.Result {
	return r.filter(node.Failed)
}

// SkippedNodes returns the results of nodes that never ran.
func (r *Result) SkippedNodes() []*node.Result {
	return r.filter(node.Skipped)
}

func (r *Result) filter(state node.State) []*node.Result {
	var out []*node.Result
	for _, res := range r.Nodes {
		if res.State == state {
			out = append(out, res)
		}
	}
	return out
}

// collect builds the arena of every node reachable from roots and returns it
// with a topological order.
func collect(roots []*node.Node) (*graph.Graph[*node.Node], []graph.ID, error) {
	g := graph.New[*node.Node]()
	visited := make(map[*node.Node]bool)

	var visit func(n *node.Node) (graph.ID, error)
	visit = func(n *node.Node) (graph.ID, error) {
		id := g.AddNode(n)
		if visited[n] {
			return id, nil
		}
		visited[n] = true
		for _, dep := range n.Dependencies() {
			depID, err := visit(dep)
			if err != nil {
				return id, err
			}
			if err := g.AddEdge(depID, id); err != nil {
				return id, fmt.Errorf("linking %q to %q: %w", dep, n, err)
			}
		}
		return id, nil
	}

	for _, root := range roots {
		if root == nil {
			return nil, nil, ErrNilNode
		}
		if _, err := visit(root); err != nil {
			return nil, nil, err
		}
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, nil, err
	}
	if err := checkOutputCollisions(g, order); err != nil {
		return nil, nil, err
	}
	return g, order, nil
}

func checkOutputCollisions(g *graph.Graph[*node.Node], order []graph.ID) error {
	owners := make(map[string]*node.Node)
	var collisions []string
	for _, id := range order {
		n := g.Value(id)
		for _, path := range n.OutputFiles() {
			if owner, ok := owners[path]; ok && owner != n {
				collisions = append(collisions, fmt.Sprintf("%s (%q and %q)", path, owner, n))
				continue
			}
			owners[path] = n
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		return fmt.Errorf("%w: %s", ErrOutputCollision, strings.Join(collisions, "; "))
	}
	return nil
}

// Run executes every node reachable from roots with at most maxParallelism
// nodes running at once. The returned error is non-nil only when the graph
// cannot be run at all; node failures are reported through the Result.
func (s *Scheduler) Run(ctx context.Context, roots []*node.Node, maxParallelism int) (*Result, error) {
	if maxParallelism < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidParallelism, maxParallelism)
	}
	g, order, err := collect(roots)
	if err != nil {
		return nil, err
	}
	if err := claim(g, order); err != nil {
		return nil, err
	}
	defer release(g, order)

	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	r := newRun(s, g, order)
	r.cancelled = ctx.Err() != nil

	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cancelled = true
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	workers := min(maxParallelism, max(len(order), 1))
	logger.Debug("Starting worker pool.", "workers", workers, "nodes", len(order))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	r.skipUnclaimed(ctx)

	res := &Result{
		Nodes:         make([]*node.Result, 0, len(order)),
		MaxConcurrent: r.maxRunning,
		Duration:      time.Since(start),
	}
	for _, id := range order {
		nr := r.results[id]
		res.Nodes = append(res.Nodes, nr)
		switch nr.State {
		case node.Failed:
			res.Failed++
		case node.Skipped:
			res.Skipped++
		}
	}
	res.Succeeded = res.Failed == 0 && res.Skipped == 0
	logger.Info("All nodes completed.", "succeeded", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped, "duration", res.Duration)
	return res, nil
}

// claim takes ownership of every node in order, or of none.
func claim(g *graph.Graph[*node.Node], order []graph.ID) error {
	for i, id := range order {
		if n := g.Value(id); !n.Claim() {
			release(g, order[:i])
			return fmt.Errorf("%w: %s", ErrNodeInUse, n.Description())
		}
	}
	return nil
}

func release(g *graph.Graph[*node.Node], order []graph.ID) {
	for _, id := range order {
		g.Value(id).Release()
	}
}

// run is the shared state of one Run call. Everything below mu is guarded
// by it.
type run struct {
	s     *Scheduler
	g     *graph.Graph[*node.Node]
	order []graph.ID

	mu   sync.Mutex
	cond *sync.Cond
	// unmet counts each node's dependencies that are not Done yet.
	unmet      []int
	ready      []graph.ID
	results    []*node.Result
	remaining  int
	running    int
	maxRunning int
	cancelled  bool
}

func newRun(s *Scheduler, g *graph.Graph[*node.Node], order []graph.ID) *run {
	r := &run{
		s:         s,
		g:         g,
		order:     order,
		unmet:     make([]int, g.Len()),
		results:   make([]*node.Result, g.Len()),
		remaining: len(order),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, id := range order {
		g.Value(id).SetState(node.Pending)
		deps, _ := g.Dependencies(id)
		r.unmet[id] = len(deps)
		if len(deps) == 0 {
			r.ready = append(r.ready, id)
		}
	}
	return r
}

func (r *run) notify(ctx context.Context, events []Event) {
	for _, ev := range events {
		for _, o := range r.s.observers {
			o.NodeTransition(ctx, ev)
		}
	}
}

// worker is the core processing loop for a single concurrent worker.
func (r *run) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)
	defer logger.Debug("Worker finished.", "workerID", workerID)

	for {
		r.mu.Lock()
		for len(r.ready) == 0 && r.remaining > 0 && !r.cancelled {
			r.cond.Wait()
		}
		if r.cancelled || r.remaining == 0 {
			r.mu.Unlock()
			return
		}
		id := r.ready[0]
		r.ready = r.ready[1:]
		n := r.g.Value(id)
		n.SetState(node.Running)
		r.running++
		r.maxRunning = max(r.maxRunning, r.running)
		r.mu.Unlock()

		r.notify(ctx, []Event{{Node: n, From: node.Pending, To: node.Running, WorkerID: workerID}})
		res := r.execute(ctx, n, workerID)

		r.mu.Lock()
		r.running--
		events := r.finish(ctx, id, res, workerID)
		r.cond.Broadcast()
		r.mu.Unlock()

		r.notify(ctx, events)
	}
}

func (r *run) execute(ctx context.Context, n *node.Node, workerID int) *node.Result {
	logger := ctxlog.FromContext(ctx).With("node", n.Description(), "workerID", workerID)

	if r.s.skipUpToDate && !n.IsMeta() && n.IsUpToDate() {
		logger.Info("Outputs are up to date, skipping node.")
		return &node.Result{Node: n, State: node.Done, UpToDate: true}
	}
	if !n.IsMeta() {
		logger.Info("▶️ Running node.")
	}
	res := n.Run(ctxlog.WithLogger(ctx, logger), node.WorkerContext{
		TempRoot:       r.s.tempRoot,
		KeepFailedTemp: r.s.keepFailedTemp,
		WorkerID:       workerID,
	})
	switch res.State {
	case node.Done:
		if !n.IsMeta() {
			logger.Info("✅ Node finished.", "duration", res.Duration)
		}
	default:
		logger.Error("Node execution failed.", "kind", res.Kind, "error", res.Err, "stderr", res.Stderr)
	}
	return res
}

// finish records the terminal result of a claimed node. Callers hold r.mu.
func (r *run) finish(ctx context.Context, id graph.ID, res *node.Result, workerID int) []Event {
	n := r.g.Value(id)
	n.SetState(res.State)
	r.results[id] = res
	r.remaining--
	events := []Event{{
		Node:     n,
		From:     node.Running,
		To:       res.State,
		Err:      res.Err,
		Duration: res.Duration,
		UpToDate: res.UpToDate,
		WorkerID: workerID,
	}}

	dependents, _ := r.g.Dependents(id)
	if res.State != node.Done {
		return r.skipDependents(ctx, id, n, events)
	}
	for _, dep := range dependents {
		r.unmet[dep]--
		if r.unmet[dep] == 0 && r.g.Value(dep).State() == node.Pending {
			r.ready = append(r.ready, dep)
		}
	}
	return events
}

// skipDependents recursively marks all downstream nodes as skipped. Callers
// hold r.mu.
func (r *run) skipDependents(ctx context.Context, id graph.ID, failed *node.Node, events []Event) []Event {
	logger := ctxlog.FromContext(ctx)
	dependents, _ := r.g.Dependents(id)
	for _, depID := range dependents {
		dep := r.g.Value(depID)
		if !dep.Transition(node.Pending, node.Skipped) {
			continue
		}
		logger.Warn("Skipping dependent node due to upstream failure.", "node", dep.Description(), "dependency", failed.Description())
		err := fmt.Errorf("skipped due to upstream failure of %q", failed.Description())
		r.results[depID] = &node.Result{Node: dep, State: node.Skipped, Err: err}
		r.remaining--
		events = append(events, Event{Node: dep, From: node.Pending, To: node.Skipped, Err: err})
		events = r.skipDependents(ctx, depID, dep, events)
	}
	return events
}

// skipUnclaimed marks nodes that were never claimed as skipped after the pool
// stopped because of cancellation.
func (r *run) skipUnclaimed(ctx context.Context) {
	r.mu.Lock()
	var events []Event
	for _, id := range r.order {
		n := r.g.Value(id)
		if !n.Transition(node.Pending, node.Skipped) {
			continue
		}
		err := fmt.Errorf("skipped: %w", context.Cause(ctx))
		r.results[id] = &node.Result{Node: n, State: node.Skipped, Err: err}
		r.remaining--
		events = append(events, Event{Node: n, From: node.Pending, To: node.Skipped, Err: err})
	}
	r.ready = nil
	r.mu.Unlock()

	if len(events) > 0 {
		ctxlog.FromContext(ctx).Warn("Run cancelled, unclaimed nodes were skipped.", "count", len(events))
		r.notify(ctx, events)
	}
}
