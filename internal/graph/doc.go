// Package graph provides a small arena-backed directed acyclic graph used for
// both pipeline definitions (keyed by node name) and runtime node graphs
// (keyed by *node.Node).
//
// Vertices are stored in an arena and addressed by dense integer IDs assigned
// in insertion order. Edges are kept as ID sets in both directions, so the
// graph never holds pointers between vertices and dependency/dependent lookups
// are cheap. All traversals that return several IDs return them sorted by ID,
// which makes scheduling and error messages deterministic.
//
// An edge AddEdge(from, to) means "to depends on from": from must complete
// before to can start.
package graph
