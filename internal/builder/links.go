package builder

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/nodepipe/internal/config"
	"github.com/vk/nodepipe/internal/ctxlog"
	"github.com/vk/nodepipe/internal/graph"
	"github.com/vk/nodepipe/internal/node"
)

// linkExplicitDeps resolves dependencies from `depends_on` lists.
func linkExplicitDeps(ctx context.Context, g *graph.Graph[string], model *config.Model) error {
	logger := ctxlog.FromContext(ctx)
	for _, cn := range model.Nodes {
		to, _ := g.Lookup(cn.Name)
		for _, depName := range cn.DependsOn {
			from, ok := g.Lookup(depName)
			if !ok {
				return fmt.Errorf("%w: node %q depends on non-existent node %q", ErrUnknownDependency, cn.Name, depName)
			}
			logger.Debug("Linking explicit dependency.", "from", depName, "to", cn.Name)
			if err := g.AddEdge(from, to); err != nil {
				return fmt.Errorf("error linking explicit dependency of %q: %w", cn.Name, err)
			}
		}
	}
	return nil
}

// linkImplicitDeps adds an edge from every node declaring an output to every
// node reading that file as an input.
func linkImplicitDeps(ctx context.Context, g *graph.Graph[string], model *config.Model, runnables map[string]node.Runnable) error {
	logger := ctxlog.FromContext(ctx)

	producers := make(map[string]string)
	for _, cn := range model.Nodes {
		r := runnables[cn.Name]
		if r == nil {
			continue
		}
		for _, path := range r.OutputFiles() {
			if owner, ok := producers[path]; ok {
				return fmt.Errorf("%w: %s is declared by %q and %q", ErrOutputCollision, path, owner, cn.Name)
			}
			producers[path] = cn.Name
		}
	}

	for _, cn := range model.Nodes {
		r := runnables[cn.Name]
		if r == nil {
			continue
		}
		inputs := r.InputFiles()
		sort.Strings(inputs)
		for _, path := range inputs {
			producer, ok := producers[path]
			if !ok || producer == cn.Name {
				continue
			}
			from, _ := g.Lookup(producer)
			to, _ := g.Lookup(cn.Name)
			logger.Debug("Linking implicit dependency.", "from", producer, "to", cn.Name, "file", path)
			if err := g.AddEdge(from, to); err != nil {
				return fmt.Errorf("error linking implicit dependency of %q: %w", cn.Name, err)
			}
		}
	}
	return nil
}

// linkAliases makes every index block that shares the indexer of an earlier
// block wait for that block.
func linkAliases(ctx context.Context, g *graph.Graph[string], aliases map[string]string) error {
	logger := ctxlog.FromContext(ctx)
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		from, _ := g.Lookup(aliases[name])
		to, _ := g.Lookup(name)
		logger.Debug("Linking shared index.", "from", aliases[name], "to", name)
		if err := g.AddEdge(from, to); err != nil {
			return fmt.Errorf("error linking index %q to %q: %w", name, aliases[name], err)
		}
	}
	return nil
}
