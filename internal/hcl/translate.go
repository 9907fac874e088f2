// This file contains the logic for translating decoded HCL blocks into the
// format-agnostic configuration model defined in the config package.

package hcl

import (
	"context"
	"fmt"

	"github.com/google/shlex"
	"github.com/hashicorp/hcl/v2"
	"github.com/vk/nodepipe/internal/config"
	"github.com/vk/nodepipe/internal/ctxlog"
)

// translateNode converts the HCL-specific node schema into the agnostic model.
func (l *Loader) translateNode(ctx context.Context, b *nodeBlock, evalCtx *hcl.EvalContext) (*config.Node, error) {
	logger := ctxlog.FromContext(ctx).With("node", b.Name)
	logger.Debug("Translating HCL node to internal config model.")

	n := &config.Node{
		Name:        b.Name,
		Description: deref(b.Description, b.Name),
		Mode:        config.Mode(deref(b.Mode, string(config.ModeParallel))),
		DependsOn:   b.DependsOn,
	}
	switch n.Mode {
	case config.ModeParallel, config.ModeSequential:
	default:
		return nil, fmt.Errorf("node %q: unknown mode %q, want %q or %q", b.Name, n.Mode, config.ModeParallel, config.ModeSequential)
	}
	if len(b.Commands) == 0 {
		return nil, fmt.Errorf("node %q has no command blocks; use a meta block for grouping", b.Name)
	}

	for _, cb := range b.Commands {
		cmd, err := translateCommand(cb, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("node %q, command %q: %w", b.Name, cb.Name, err)
		}
		n.Commands = append(n.Commands, cmd)
	}
	logger.Debug("Translated node.", "commands", len(n.Commands), "mode", n.Mode)
	return n, nil
}

// translateMeta converts a meta block into a command-less node.
func (l *Loader) translateMeta(b *metaBlock) *config.Node {
	return &config.Node{
		Name:        b.Name,
		Description: deref(b.Description, b.Name),
		Meta:        true,
		DependsOn:   b.DependsOn,
	}
}

// translateIndex converts an index block. The kind is checked by the builder.
func (l *Loader) translateIndex(b *indexBlock) *config.Node {
	return &config.Node{
		Name:        b.Name,
		Description: deref(b.Description, b.Name),
		DependsOn:   b.DependsOn,
		Index:       &config.Index{Kind: b.Kind, Input: b.Input},
	}
}

func translateCommand(b *commandBlock, evalCtx *hcl.EvalContext) (*config.Command, error) {
	cmd := &config.Command{
		Name:             b.Name,
		Inputs:           b.Inputs,
		Outputs:          b.Outputs,
		TempOutputs:      b.TempOutputs,
		Stdin:            deref(b.Stdin, ""),
		Stdout:           deref(b.Stdout, ""),
		Stderr:           deref(b.Stderr, ""),
		AllowEmptyOutput: b.AllowEmptyOutput != nil && *b.AllowEmptyOutput,
	}

	switch {
	case len(b.Argv) > 0 && b.Shell != nil:
		return nil, fmt.Errorf("argv and shell are mutually exclusive")
	case len(b.Argv) > 0:
		cmd.Argv = b.Argv
	case b.Shell != nil:
		argv, err := shlex.Split(*b.Shell)
		if err != nil {
			return nil, fmt.Errorf("splitting shell string: %w", err)
		}
		cmd.Argv = argv
	}
	if len(cmd.Argv) == 0 {
		return nil, fmt.Errorf("one of argv or shell is required")
	}

	for _, ob := range b.Options {
		opt := config.Option{Flag: ob.Flag}
		if ob.Value != nil {
			val, diags := ob.Value.Value(evalCtx)
			if diags.HasErrors() {
				return nil, fmt.Errorf("option %q: %w", ob.Flag, diags)
			}
			v, err := ctyValueToInterface(val)
			if err != nil {
				return nil, fmt.Errorf("option %q: %w", ob.Flag, err)
			}
			opt.Value, opt.HasValue = v, v != nil
		}
		cmd.Options = append(cmd.Options, opt)
	}

	if b.Overrides != nil {
		val, diags := b.Overrides.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("options: %w", diags)
		}
		v, err := ctyValueToInterface(val)
		if err != nil {
			return nil, fmt.Errorf("options: %w", err)
		}
		switch m := v.(type) {
		case nil:
		case map[string]any:
			cmd.Overrides = m
		default:
			return nil, fmt.Errorf("options must be an object of flags, got %T", v)
		}
	}
	return cmd, nil
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
