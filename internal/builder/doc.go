/*
Package builder turns the format-agnostic pipeline model (defined in the
'config' package) into a graph of *node.Node values ready for the scheduler.

The construction is a multi-phase process:

 1. Command Construction: every command block of every node is turned into an
    *atomiccmd.Command through an atomiccmd.Builder, and the commands of one
    node are grouped into a parallel or sequential set. All placeholder and
    pipe errors surface here.
    Index blocks get their work from the nodes package. A second index block
    for a file an earlier block already indexes becomes a grouping node that
    waits for the first one, so the index is written once.

 2. Dependency Linking: a name graph (internal/graph) is populated with one
    vertex per node. Explicit dependencies come from `depends_on`; implicit
    ones are added wherever a node reads a file another node declares as an
    output. Unknown names, duplicate names and two nodes declaring the same
    output are rejected.

 3. Instantiation: the name graph is ordered topologically, which also
    detects cycles, and nodes are created in that order through a
    registry.Registry so every node is built exactly once and can receive its
    already-built dependencies.

The result is a Pipeline whose roots are the nodes nothing else depends on.
*/
package builder
