package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/nodepipe/internal/config"
	"github.com/vk/nodepipe/internal/ctxlog"
	"github.com/vk/nodepipe/internal/graph"
	"github.com/vk/nodepipe/internal/node"
	"github.com/vk/nodepipe/internal/registry"
)

var (
	// ErrDuplicateName is returned when two blocks share a name.
	ErrDuplicateName = errors.New("duplicate node name")
	// ErrUnknownDependency is returned for a depends_on entry naming no node.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrOutputCollision is returned when two nodes declare the same output.
	ErrOutputCollision = errors.New("output declared by more than one node")
)

// Pipeline is a built node graph.
type Pipeline struct {
	// Roots are the nodes no other node depends on, in declaration order.
	Roots []*node.Node
	// Nodes holds every node in topological order.
	Nodes []*node.Node
	byName map[string]*node.Node
}

// Node returns the node built for the block called name.
func (p *Pipeline) Node(name string) (*node.Node, bool) {
	n, ok := p.byName[name]
	return n, ok
}

// Build constructs a complete, validated node graph from a config model.
func Build(ctx context.Context, model *config.Model) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "node_count", len(model.Nodes))

	// First pass: build the work of every node.
	runnables := make(map[string]node.Runnable, len(model.Nodes))
	indexOwners := registry.New[config.Index, string]()
	aliases := make(map[string]string)
	for _, cn := range model.Nodes {
		if _, dup := runnables[cn.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, cn.Name)
		}
		if cn.Index != nil {
			owner, r, err := buildIndex(ctx, indexOwners, cn)
			if err != nil {
				return nil, fmt.Errorf("index %q (%s): %w", cn.Name, cn.Source, err)
			}
			if owner != cn.Name {
				logger.Debug("Build: Index block shares an earlier indexer.", "index", cn.Name, "owner", owner)
				aliases[cn.Name] = owner
			}
			runnables[cn.Name] = r
			continue
		}
		r, err := buildRunnable(cn)
		if err != nil {
			return nil, fmt.Errorf("node %q (%s): %w", cn.Name, cn.Source, err)
		}
		runnables[cn.Name] = r
	}
	logger.Debug("Build: Command construction complete.")

	// Second pass: link dependencies.
	g := graph.New[string]()
	for _, cn := range model.Nodes {
		g.AddNode(cn.Name)
	}
	if err := linkExplicitDeps(ctx, g, model); err != nil {
		return nil, err
	}
	if err := linkImplicitDeps(ctx, g, model, runnables); err != nil {
		return nil, err
	}
	if err := linkAliases(ctx, g, aliases); err != nil {
		return nil, err
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: instantiate in dependency order.
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")

	configs := make(map[string]*config.Node, len(model.Nodes))
	for _, cn := range model.Nodes {
		configs[cn.Name] = cn
	}
	nodes := registry.New[string, *node.Node]()
	p := &Pipeline{byName: make(map[string]*node.Node, len(order))}
	for _, id := range order {
		name := g.Value(id)
		depIDs, _ := g.Dependencies(id)
		n, err := nodes.GetOrBuild(ctx, name, func(context.Context) (*node.Node, error) {
			deps := make([]*node.Node, 0, len(depIDs))
			for _, depID := range depIDs {
				dep, ok := nodes.Get(g.Value(depID))
				if !ok {
					return nil, fmt.Errorf("dependency %q of %q was not built", g.Value(depID), name)
				}
				deps = append(deps, dep)
			}
			cn := configs[name]
			r := runnables[name]
			if r == nil {
				return node.NewMeta(cn.Description, deps...)
			}
			return node.New(cn.Description, r, deps...)
		})
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}
		p.Nodes = append(p.Nodes, n)
		p.byName[name] = n
	}

	for _, cn := range model.Nodes {
		id, _ := g.Lookup(cn.Name)
		if dependents, _ := g.Dependents(id); len(dependents) == 0 {
			p.Roots = append(p.Roots, p.byName[cn.Name])
		}
	}

	logger.Info("Build: Graph construction successful.", "nodes", len(p.Nodes), "roots", len(p.Roots))
	return p, nil
}
