// Package scheduler runs a graph of nodes with bounded parallelism.
//
// # How It Works
//
// Run collects every node reachable from the given roots into a graph arena,
// validates it (no cycles, no two nodes declaring the same output path) and
// starts a fixed pool of workers. The pool shares one mutex and a condition
// variable guarding the ready queue and all state transitions:
//
//  1. A worker waits until a node is ready, the run is finished or the caller
//     cancelled the context.
//  2. It claims the ready node (Pending → Running) and releases the lock while
//     the node's work runs in its own working directory.
//  3. On completion it re-acquires the lock, records the terminal state and
//     either unlocks the node's dependents (Done) or marks every transitive
//     dependent as Skipped (Failed).
//
// A failure never interrupts work that is already running, and nodes that do
// not depend on the failed node keep running. Cancelling the context stops
// new claims; nodes that were never claimed end up Skipped while in-flight
// processes are killed through their context.
//
// # Observers
//
// Every state transition is reported to the registered Observers after the
// lock is released, in the order the transitions happened for each node.
package scheduler
