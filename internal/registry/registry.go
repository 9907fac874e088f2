package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrRecursiveBuild is returned when a build asks for the key it is building.
var ErrRecursiveBuild = errors.New("recursive build")

type entry[V any] struct {
	mu    sync.Mutex
	done  bool
	value V
}

// buildChainKey carries the entries under construction along a call chain.
type buildChainKey struct{}

type buildChain struct {
	entry  any
	parent *buildChain
}

// Registry maps keys to values built on first request.
type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	order   []K
}

// New creates and initializes a new Registry instance.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{entries: make(map[K]*entry[V])}
}

// GetOrBuild returns the value registered under key, calling build to create
// it if needed. Concurrent callers for the same key wait for a single build.
// A failed build is not cached, so a later call retries it.
//
// build receives a context derived from ctx and must pass it to any nested
// GetOrBuild call. Nested calls for other keys, of this or another registry,
// are allowed; asking for a key whose build is already on the chain returns
// ErrRecursiveBuild.
func (r *Registry[K, V]) GetOrBuild(ctx context.Context, key K, build func(ctx context.Context) (V, error)) (V, error) {
	var zero V

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry[V]{}
		r.entries[key] = e
		r.order = append(r.order, key)
	}
	r.mu.Unlock()

	chain, _ := ctx.Value(buildChainKey{}).(*buildChain)
	for c := chain; c != nil; c = c.parent {
		if c.entry == any(e) {
			return zero, fmt.Errorf("%w of %v", ErrRecursiveBuild, key)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return e.value, nil
	}
	v, err := build(context.WithValue(ctx, buildChainKey{}, &buildChain{entry: e, parent: chain}))
	if err != nil {
		return zero, err
	}
	e.value, e.done = v, true
	return v, nil
}

// Get returns the value registered under key, if it was built successfully.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		var zero V
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.done
}

// Keys returns the keys of all built values in first-request order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.Lock()
	order := append([]K(nil), r.order...)
	r.mu.Unlock()

	keys := make([]K, 0, len(order))
	for _, k := range order {
		if _, ok := r.Get(k); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of built values.
func (r *Registry[K, V]) Len() int {
	return len(r.Keys())
}
