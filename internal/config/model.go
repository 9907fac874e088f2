package config

// PipeValue binds a command's stdin or stdout to the adjacent command of a
// parallel node instead of a file.
const PipeValue = "pipe"

// Mode selects how the commands of one node run.
type Mode string

const (
	// ModeParallel starts all commands at once; pipes connect neighbours.
	ModeParallel Mode = "parallel"
	// ModeSequential runs the commands one after another.
	ModeSequential Mode = "sequential"
)

// Model is the unified, format-agnostic representation of a pipeline.
type Model struct {
	// Variables holds the evaluated user variables, for reporting.
	Variables map[string]any
	Nodes     []*Node
}

// Node is the format-agnostic representation of a `node`, `meta` or `index`
// block.
type Node struct {
	Name        string
	Description string
	Meta        bool
	Mode        Mode
	DependsOn   []string
	Commands    []*Command
	// Index is set for `index` blocks, which run a built-in indexer instead
	// of commands.
	Index *Index
	// Source names the file the node was declared in.
	Source string
}

// Index names a file and the kind of index to write next to it.
type Index struct {
	Kind  string
	Input string
}

// Command is one external process of a node.
type Command struct {
	Name string
	// Argv is the executable followed by its fixed arguments. It may contain
	// {ROLE} placeholders.
	Argv    []string
	Options []Option
	// Overrides is applied last with atomiccmd.ApplyOptions.
	Overrides        map[string]any
	Inputs           map[string]string
	Outputs          map[string]string
	TempOutputs      map[string]string
	Stdin            string
	Stdout           string
	Stderr           string
	AllowEmptyOutput bool
}

// Option is one option flag, in declaration order.
type Option struct {
	Flag string
	// Value is nil, a bool, a string, an int64, a float64 or a []any of those.
	Value    any
	HasValue bool
}
