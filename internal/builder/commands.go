package builder

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/nodepipe/internal/atomiccmd"
	"github.com/vk/nodepipe/internal/config"
	"github.com/vk/nodepipe/internal/node"
	"github.com/vk/nodepipe/internal/nodes"
	"github.com/vk/nodepipe/internal/registry"
)

// buildRunnable turns the commands of one node into a single runnable. Meta
// nodes have none.
func buildRunnable(cn *config.Node) (node.Runnable, error) {
	if cn.Meta {
		return nil, nil
	}
	cmds := make([]*atomiccmd.Command, 0, len(cn.Commands))
	for _, cc := range cn.Commands {
		cmd, err := buildCommand(cc)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", cc.Name, err)
		}
		cmds = append(cmds, cmd)
	}

	switch {
	case len(cmds) == 0:
		return nil, fmt.Errorf("no commands")
	case cn.Mode == config.ModeSequential:
		return atomiccmd.NewSequentialSet(cmds...)
	case len(cmds) == 1 && !usesPipe(cn.Commands[0]):
		return cmds[0], nil
	default:
		return atomiccmd.NewParallelSet(cmds...)
	}
}

// buildIndex returns the indexer of an index block. Only the first block
// indexing a given file gets work; later ones get a nil runnable and the name
// of that first block as owner.
func buildIndex(ctx context.Context, owners *registry.Registry[config.Index, string], cn *config.Node) (string, node.Runnable, error) {
	work, _, err := nodes.Index(cn.Index.Kind, cn.Index.Input)
	if err != nil {
		return "", nil, err
	}
	abs, err := filepath.Abs(cn.Index.Input)
	if err != nil {
		return "", nil, fmt.Errorf("resolving %q: %w", cn.Index.Input, err)
	}
	key := config.Index{Kind: cn.Index.Kind, Input: abs}
	owner, err := owners.GetOrBuild(ctx, key, func(context.Context) (string, error) {
		return cn.Name, nil
	})
	if err != nil || owner != cn.Name {
		return owner, nil, err
	}
	return owner, work, nil
}

func usesPipe(cc *config.Command) bool {
	return cc.Stdin == config.PipeValue || cc.Stdout == config.PipeValue
}

// buildCommand maps a command block onto an atomiccmd.Builder. Map keys of
// inputs, outputs and temp_outputs name the role without its prefix.
func buildCommand(cc *config.Command) (*atomiccmd.Command, error) {
	call := make([]any, len(cc.Argv))
	for i, arg := range cc.Argv {
		call[i] = arg
	}
	b := atomiccmd.NewBuilder(call...)

	for _, opt := range cc.Options {
		addOption(b, opt)
	}
	if len(cc.Overrides) > 0 {
		if err := atomiccmd.ApplyOptions(b, cc.Overrides); err != nil {
			return nil, err
		}
	}

	kwargs := make(map[string]any)
	for name, path := range cc.Inputs {
		kwargs["IN_"+name] = path
	}
	for name, path := range cc.Outputs {
		kwargs["OUT_"+name] = path
	}
	for name, path := range cc.TempOutputs {
		kwargs["TEMP_OUT_"+name] = path
	}
	for role, value := range map[string]string{
		atomiccmd.RoleStdin:  cc.Stdin,
		atomiccmd.RoleStdout: cc.Stdout,
		atomiccmd.RoleStderr: cc.Stderr,
	} {
		switch value {
		case "":
		case config.PipeValue:
			kwargs[role] = atomiccmd.Pipe
		default:
			kwargs[role] = value
		}
	}
	b.SetKwargs(kwargs)
	b.AllowEmptyOutput(cc.AllowEmptyOutput)
	return b.Finalize()
}

// addOption appends one declared option. A false value leaves the flag out
// and a list repeats it once per element.
func addOption(b *atomiccmd.Builder, opt config.Option) {
	if !opt.HasValue {
		b.AddOption(opt.Flag)
		return
	}
	switch v := opt.Value.(type) {
	case bool:
		if v {
			b.AddOption(opt.Flag)
		}
	case []any:
		for _, item := range v {
			b.AddOption(opt.Flag, item)
		}
	default:
		b.AddOption(opt.Flag, v)
	}
}
