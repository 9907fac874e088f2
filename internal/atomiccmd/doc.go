// Package atomiccmd wraps external process invocations with declared input and
// output files and all-or-nothing output semantics.
//
// A Command is built with a Builder, which accumulates the executable, option
// flags, positional values and the file bindings ("roles") used to resolve
// {ROLE} placeholders in the argument vector. Commands run inside a scoped
// working directory: declared outputs are written there first and only moved
// to their final paths once the process (or every process of a set) exited
// cleanly and produced all of them. On any failure every declared output is
// removed, so a failed command never leaves a partial file behind.
//
// Commands that must run together are grouped in a ParallelSet (all members
// started at once, stdout/stdin connected with OS pipes) or a SequentialSet
// (members run one after another, stopping at the first failure). A set fails
// if any member fails, including upstream members of a pipe that were killed
// by SIGPIPE because a downstream consumer exited early.
package atomiccmd
