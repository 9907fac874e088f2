package scheduler

import (
	"github.com/vk/nodepipe/internal/node"
)

// PlanEntry describes one node of a dry run.
type PlanEntry struct {
	Node         *node.Node
	Dependencies []*node.Node
	// UpToDate is set when the node and all of its dependencies would be
	// skipped because their outputs are newer than their inputs.
	UpToDate bool
}

// Plan validates the graph reachable from roots like Run does and returns its
// nodes in the order they could run, without running anything. Up-to-date
// detection only applies when the scheduler was created WithSkipUpToDate.
func (s *Scheduler) Plan(roots []*node.Node) ([]PlanEntry, error) {
	g, order, err := collect(roots)
	if err != nil {
		return nil, err
	}

	upToDate := make(map[*node.Node]bool, len(order))
	entries := make([]PlanEntry, 0, len(order))
	for _, id := range order {
		n := g.Value(id)
		fresh := s.skipUpToDate && (n.IsMeta() || n.IsUpToDate())
		deps := n.Dependencies()
		for _, d := range deps {
			fresh = fresh && upToDate[d]
		}
		upToDate[n] = fresh
		entries = append(entries, PlanEntry{Node: n, Dependencies: deps, UpToDate: fresh})
	}
	return entries, nil
}
