package nodes

import (
	"fmt"

	"github.com/vk/nodepipe/internal/atomiccmd"
	"github.com/vk/nodepipe/internal/node"
)

// VCFFilterParams holds a customizable `cat | vcf_filter | bgzip` pipeline.
type VCFFilterParams struct {
	Pileup       string
	Input        string
	Output       string
	Cat          *atomiccmd.Builder
	Filter       *atomiccmd.Builder
	Bgzip        *atomiccmd.Builder
	Dependencies []*node.Node
}

// CustomizeVCFFilter prepares filtering of the calls in input against pileup,
// writing a bgzipped VCF to output. Each homozygous contig is passed to
// vcf_filter as its own --homozygous-chromosome option.
func CustomizeVCFFilter(pileup, input, output string, homozygousContigs []string, deps ...*node.Node) *VCFFilterParams {
	cat := atomiccmd.NewBuilder("cat", "{IN_VCF}")
	cat.SetKwargs(map[string]any{"IN_VCF": input, atomiccmd.RoleStdout: atomiccmd.Pipe})

	filter := atomiccmd.NewBuilder("vcf_filter")
	filter.AddOption("--pileup", "{IN_PILEUP}")
	for _, contig := range homozygousContigs {
		filter.AddOption("--homozygous-chromosome", contig)
	}
	filter.SetKwargs(map[string]any{
		"IN_PILEUP":          pileup,
		atomiccmd.RoleStdin:  cat,
		atomiccmd.RoleStdout: atomiccmd.Pipe,
	})

	bgzip := atomiccmd.NewBuilder("bgzip")
	bgzip.SetKwargs(map[string]any{atomiccmd.RoleStdin: filter, atomiccmd.RoleStdout: output})

	return &VCFFilterParams{
		Pileup:       pileup,
		Input:        input,
		Output:       output,
		Cat:          cat,
		Filter:       filter,
		Bgzip:        bgzip,
		Dependencies: deps,
	}
}

// ApplyOptions applies per-sample vcf_filter settings. A positive maxDepth
// replaces any --max-read-depth given in options.
func (p *VCFFilterParams) ApplyOptions(options map[string]any, maxDepth int) error {
	if err := atomiccmd.ApplyOptions(p.Filter, options); err != nil {
		return fmt.Errorf("applying vcf_filter options: %w", err)
	}
	if maxDepth > 0 {
		p.Filter.SetOption("--max-read-depth", maxDepth)
	}
	return nil
}

// Build finalizes the three commands and wraps them in a node running them
// as one pipe.
func (p *VCFFilterParams) Build() (*node.Node, error) {
	var cmds []*atomiccmd.Command
	for _, b := range []*atomiccmd.Builder{p.Cat, p.Filter, p.Bgzip} {
		cmd, err := b.Finalize()
		if err != nil {
			return nil, fmt.Errorf("building VCF filter command: %w", err)
		}
		cmds = append(cmds, cmd)
	}
	set, err := atomiccmd.NewParallelSet(cmds...)
	if err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("<VCFFilter: '%s' -> '%s'>", p.Input, p.Output)
	return node.New(desc, set, p.Dependencies...)
}
