package nodes

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/nodepipe/internal/atomiccmd"
	"github.com/vk/nodepipe/internal/node"
)

// ErrUnknownAlgorithm is returned for a MAFFT algorithm with no preset.
var ErrUnknownAlgorithm = errors.New("unknown MAFFT algorithm")

// mafftPresets maps algorithm names to the MAFFT entry points implementing
// them.
var mafftPresets = map[string][]any{
	"mafft":    {"mafft"},
	"auto":     {"mafft", "--auto"},
	"fft-ns-1": {"fftns", "--retree", 1},
	"fft-ns-2": {"fftns"},
	"fft-ns-i": {"fftnsi"},
	"nw-ns-i":  {"nwnsi"},
	"l-ins-i":  {"linsi"},
	"e-ins-i":  {"einsi"},
	"g-ins-i":  {"ginsi"},
}

// MAFFTAlgorithms returns the supported algorithm names, sorted.
func MAFFTAlgorithms() []string {
	names := make([]string, 0, len(mafftPresets))
	for name := range mafftPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MAFFTParams holds a customizable multiple sequence alignment.
type MAFFTParams struct {
	Algorithm    string
	Input        string
	Output       string
	Command      *atomiccmd.Builder
	Dependencies []*node.Node
}

// CustomizeMAFFT prepares an alignment of the FASTA file input into output.
// The algorithm name is case-insensitive.
func CustomizeMAFFT(input, output, algorithm string, deps ...*node.Node) (*MAFFTParams, error) {
	algorithm = strings.ToLower(algorithm)
	preset, ok := mafftPresets[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	b := atomiccmd.NewBuilder(preset...)
	b.AddValue("--quiet")
	b.AddValue("{IN_FASTA}")
	b.SetKwargs(map[string]any{
		"IN_FASTA":           input,
		atomiccmd.RoleStdout: output,
	})
	return &MAFFTParams{
		Algorithm:    algorithm,
		Input:        input,
		Output:       output,
		Command:      b,
		Dependencies: deps,
	}, nil
}

// Build finalizes the command and wraps it in a node.
func (p *MAFFTParams) Build() (*node.Node, error) {
	cmd, err := p.Command.Finalize()
	if err != nil {
		return nil, fmt.Errorf("building MAFFT command: %w", err)
	}
	desc := fmt.Sprintf("<MAFFTNode (%s): '%s' -> '%s'>", p.Algorithm, p.Input, p.Output)
	return node.New(desc, cmd, p.Dependencies...)
}

// NewMAFFT is CustomizeMAFFT followed by Build.
func NewMAFFT(input, output, algorithm string, deps ...*node.Node) (*node.Node, error) {
	p, err := CustomizeMAFFT(input, output, algorithm, deps...)
	if err != nil {
		return nil, err
	}
	return p.Build()
}
