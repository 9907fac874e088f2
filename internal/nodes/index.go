package nodes

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vk/nodepipe/internal/atomiccmd"
	"github.com/vk/nodepipe/internal/fsutil"
	"github.com/vk/nodepipe/internal/node"
	"github.com/vk/nodepipe/internal/registry"
)

// Index kinds understood by Index and Caches.
const (
	IndexBAM   = "bam"
	IndexFasta = "fasta"
	IndexTabix = "tabix"
)

// ErrUnknownIndex is returned for an index kind other than IndexBAM,
// IndexFasta or IndexTabix.
var ErrUnknownIndex = errors.New("unknown index kind")

type indexKey struct {
	kind string
	path string
}

type callsKey struct {
	bam    string
	prefix string
}

// Calls is the filtered VCF of one BAM and output prefix, together with the
// node writing it and the node indexing it.
type Calls struct {
	VCF    string
	Filter *node.Node
	Index  *node.Node
}

// Caches deduplicates nodes for one pipeline build. Requesting the index of
// the same file twice returns the same node, so two steps never race to write
// the same index.
type Caches struct {
	indexes *registry.Registry[indexKey, *node.Node]
	calls   *registry.Registry[callsKey, *Calls]
}

// NewCaches returns empty caches.
func NewCaches() *Caches {
	return &Caches{
		indexes: registry.New[indexKey, *node.Node](),
		calls:   registry.New[callsKey, *Calls](),
	}
}

// Index returns the work writing the index of kind for path, and the
// description of a node running it. path is made absolute first.
func Index(kind, path string) (node.Runnable, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolving %q: %w", path, err)
	}
	switch kind {
	case IndexBAM:
		b := atomiccmd.NewBuilder("samtools", "index", "{IN_BAM}", "{OUT_BAI}")
		b.SetKwargs(map[string]any{"IN_BAM": abs, "OUT_BAI": abs + ".bai"})
		cmd, err := b.Finalize()
		return cmd, fmt.Sprintf("<BAMIndexNode: '%s'>", abs), err
	case IndexFasta:
		b := atomiccmd.NewBuilder("samtools", "faidx", "{IN_FASTA}", "--fai-idx", "{OUT_FAI}")
		b.SetKwargs(map[string]any{"IN_FASTA": abs, "OUT_FAI": abs + ".fai"})
		cmd, err := b.Finalize()
		return cmd, fmt.Sprintf("<FastaIndexNode: '%s'>", abs), err
	case IndexTabix:
		set, err := tabixSet(abs)
		return set, fmt.Sprintf("<TabixIndexNode: '%s'>", abs), err
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownIndex, kind)
	}
}

// tabix always writes next to its input, so the input is linked into the
// working directory first.
func tabixSet(path string) (*atomiccmd.SequentialSet, error) {
	link := atomiccmd.NewBuilder("ln", "-s", "{IN_VCF}", "{TEMP_OUT_VCF}")
	link.SetKwargs(map[string]any{"IN_VCF": path, "TEMP_OUT_VCF": filepath.Base(path)})
	linkCmd, err := link.Finalize()
	if err != nil {
		return nil, err
	}

	tabix := atomiccmd.NewBuilder("tabix", "-p", "vcf", "{TEMP_OUT_VCF}")
	tabix.SetKwargs(map[string]any{"TEMP_OUT_VCF": filepath.Base(path), "OUT_TBI": path + ".tbi"})
	tabixCmd, err := tabix.Finalize()
	if err != nil {
		return nil, err
	}
	return atomiccmd.NewSequentialSet(linkCmd, tabixCmd)
}

// BAMIndex returns the node writing <bam>.bai with `samtools index`.
// Dependencies are only used when the node is first created.
func (c *Caches) BAMIndex(ctx context.Context, bam string, deps ...*node.Node) (*node.Node, error) {
	return c.index(ctx, IndexBAM, bam, deps)
}

// FastaIndex returns the node writing <fasta>.fai with `samtools faidx`.
func (c *Caches) FastaIndex(ctx context.Context, fasta string, deps ...*node.Node) (*node.Node, error) {
	return c.index(ctx, IndexFasta, fasta, deps)
}

// TabixIndex returns the node writing <vcf>.tbi for a bgzipped VCF.
func (c *Caches) TabixIndex(ctx context.Context, vcf string, deps ...*node.Node) (*node.Node, error) {
	return c.index(ctx, IndexTabix, vcf, deps)
}

func (c *Caches) index(ctx context.Context, kind, path string, deps []*node.Node) (*node.Node, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", path, err)
	}
	return c.indexes.GetOrBuild(ctx, indexKey{kind: kind, path: abs}, func(context.Context) (*node.Node, error) {
		work, desc, err := Index(kind, abs)
		if err != nil {
			return nil, fmt.Errorf("building %s index command: %w", kind, err)
		}
		return node.New(desc, work, deps...)
	})
}

// FilteredCalls returns the filtered and tabix-indexed calls of bam under
// prefix, written to <prefix>.filtered.vcf.bgz. customize prepares the filter
// on the first request for a (bam, prefix) pair; later requests for the pair
// share its nodes, so a BAM genotyped once serves every region set using the
// same prefix.
func (c *Caches) FilteredCalls(ctx context.Context, bam, prefix string, customize func(bam, output string) (*VCFFilterParams, error)) (*Calls, error) {
	abs, err := filepath.Abs(bam)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", bam, err)
	}
	return c.calls.GetOrBuild(ctx, callsKey{bam: abs, prefix: prefix}, func(ctx context.Context) (*Calls, error) {
		p, err := customize(abs, fsutil.SwapExt(prefix, ".filtered.vcf.bgz"))
		if err != nil {
			return nil, err
		}
		filter, err := p.Build()
		if err != nil {
			return nil, err
		}
		tbi, err := c.TabixIndex(ctx, p.Output, filter)
		if err != nil {
			return nil, err
		}
		return &Calls{VCF: p.Output, Filter: filter, Index: tbi}, nil
	})
}
