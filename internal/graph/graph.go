package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrCycle is returned when the graph contains a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// ErrUnknownID is returned when an ID does not belong to the graph.
var ErrUnknownID = errors.New("unknown vertex id")

// ID addresses a vertex inside a Graph.
type ID int

type idSet map[ID]struct{}

func (s idSet) sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Graph is a directed graph over comparable values.
type Graph[T comparable] struct {
	mutex      sync.RWMutex
	values     []T
	index      map[T]ID
	deps       []idSet
	dependents []idSet
}

// New creates and returns an initialized, empty Graph.
func New[T comparable]() *Graph[T] {
	return &Graph[T]{index: make(map[T]ID)}
}

// AddNode adds v to the graph and returns its ID. Adding a value that is
// already present returns the existing ID.
func (g *Graph[T]) AddNode(v T) ID {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id, ok := g.index[v]; ok {
		return id
	}
	id := ID(len(g.values))
	g.values = append(g.values, v)
	g.index[v] = id
	g.deps = append(g.deps, make(idSet))
	g.dependents = append(g.dependents, make(idSet))
	return id
}

// Lookup returns the ID of v, if present.
func (g *Graph[T]) Lookup(v T) (ID, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	id, ok := g.index[v]
	return id, ok
}

// AddEdge records that to depends on from. Duplicate edges collapse.
func (g *Graph[T]) AddEdge(from, to ID) error {
	if from == to {
		return fmt.Errorf("self-referential edge not allowed: %d -> %d", from, to)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.valid(from) {
		return fmt.Errorf("%w: source %d", ErrUnknownID, from)
	}
	if !g.valid(to) {
		return fmt.Errorf("%w: destination %d", ErrUnknownID, to)
	}
	g.deps[to][from] = struct{}{}
	g.dependents[from][to] = struct{}{}
	return nil
}

func (g *Graph[T]) valid(id ID) bool {
	return id >= 0 && int(id) < len(g.values)
}

// Value returns the value stored at id. It panics on an unknown ID.
func (g *Graph[T]) Value(id ID) T {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.values[id]
}

// Len returns the number of vertices.
func (g *Graph[T]) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.values)
}

// Dependencies returns the IDs id directly depends on, sorted.
func (g *Graph[T]) Dependencies(id ID) ([]ID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if !g.valid(id) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return g.deps[id].sorted(), nil
}

// Dependents returns the IDs that directly depend on id, sorted.
func (g *Graph[T]) Dependents(id ID) ([]ID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if !g.valid(id) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return g.dependents[id].sorted(), nil
}

// DetectCycles returns an error wrapping ErrCycle that names the vertices of
// the first cycle found, or nil.
func (g *Graph[T]) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Depth-first search: permanent vertices are known to be acyclic, the
	// stack holds the current path.
	permanent := make([]bool, len(g.values))
	onStack := make([]bool, len(g.values))
	var stack []ID

	var visit func(id ID) error
	visit = func(id ID) error {
		if permanent[id] {
			return nil
		}
		if onStack[id] {
			return g.cycleError(stack, id)
		}
		onStack[id] = true
		stack = append(stack, id)
		for _, next := range g.dependents[id].sorted() {
			if err := visit(next); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		onStack[id] = false
		permanent[id] = true
		return nil
	}

	for id := range g.values {
		if err := visit(ID(id)); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph[T]) cycleError(stack []ID, back ID) error {
	start := 0
	for i, id := range stack {
		if id == back {
			start = i
			break
		}
	}
	names := make([]string, 0, len(stack)-start+1)
	for _, id := range stack[start:] {
		names = append(names, fmt.Sprint(g.values[id]))
	}
	names = append(names, fmt.Sprint(g.values[back]))
	return fmt.Errorf("%w: %s", ErrCycle, strings.Join(names, " -> "))
}

// TopologicalOrder returns every ID ordered so that each vertex comes after all
// of its dependencies. The order only depends on insertion order.
func (g *Graph[T]) TopologicalOrder() ([]ID, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	indegree := make([]int, len(g.values))
	var queue []ID
	for id := range g.values {
		indegree[id] = len(g.deps[id])
		if indegree[id] == 0 {
			queue = append(queue, ID(id))
		}
	}

	order := make([]ID, 0, len(g.values))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range g.dependents[id].sorted() {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order, nil
}
