package atomiccmd

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

type option struct {
	flag   string
	values []string
}

// Builder accumulates the pieces of a Command. The zero value is not usable;
// create builders with NewBuilder.
//
// Builders are mutable until Finalize is called. Mutations made afterwards are
// ignored and recorded, so Finalize keeps reporting ErrFinalized.
type Builder struct {
	call       []string
	options    []option
	values     []string
	kwargs     map[string]any
	allowEmpty bool

	finalized *Command
	err       error
}

// NewBuilder returns a builder for the given executable and leading fixed
// arguments. Non-string values are formatted with fmt.Sprint.
func NewBuilder(call ...any) *Builder {
	return &Builder{
		call:   stringify(call),
		kwargs: make(map[string]any),
	}
}

func (b *Builder) mutable() bool {
	if b.finalized != nil {
		b.err = ErrFinalized
		return false
	}
	return true
}

// AddValue appends a positional argument, emitted after all options.
func (b *Builder) AddValue(v any) {
	if !b.mutable() {
		return
	}
	b.values = append(b.values, fmt.Sprint(v))
}

// AddOption appends flag followed by values, keeping earlier occurrences.
func (b *Builder) AddOption(flag string, values ...any) {
	if !b.mutable() {
		return
	}
	b.options = append(b.options, option{flag: flag, values: stringify(values)})
}

// SetOption replaces the first occurrence of flag, dropping any later ones, or
// appends it when absent.
func (b *Builder) SetOption(flag string, values ...any) {
	if !b.mutable() {
		return
	}
	opt := option{flag: flag, values: stringify(values)}
	idx := slices.IndexFunc(b.options, func(o option) bool { return o.flag == flag })
	if idx < 0 {
		b.options = append(b.options, opt)
		return
	}
	b.options[idx] = opt
	b.options = append(b.options[:idx+1], slices.DeleteFunc(b.options[idx+1:], func(o option) bool {
		return o.flag == flag
	})...)
}

// PopOption removes every occurrence of flag.
func (b *Builder) PopOption(flag string) {
	if !b.mutable() {
		return
	}
	b.options = slices.DeleteFunc(b.options, func(o option) bool { return o.flag == flag })
}

// HasOption reports whether flag is currently set.
func (b *Builder) HasOption(flag string) bool {
	return slices.ContainsFunc(b.options, func(o option) bool { return o.flag == flag })
}

// SetKwargs merges role bindings into the builder. Values are a file path
// (string), Pipe, or for IN_STDIN a *Builder or *Command whose stdout is Pipe.
// Roles and value kinds are validated by Finalize.
func (b *Builder) SetKwargs(kwargs map[string]any) {
	if !b.mutable() {
		return
	}
	for k, v := range kwargs {
		b.kwargs[k] = v
	}
}

// AllowEmptyOutput lifts the requirement that declared outputs be non-empty.
func (b *Builder) AllowEmptyOutput(allow bool) {
	if !b.mutable() {
		return
	}
	b.allowEmpty = allow
}

// Finalize validates the accumulated state and returns the immutable Command.
// It succeeds at most once per builder.
func (b *Builder) Finalize() (*Command, error) {
	if b.finalized != nil || b.err != nil {
		return nil, ErrFinalized
	}
	if len(b.call) == 0 || b.call[0] == "" {
		return nil, ErrNoExecutable
	}

	cmd := &Command{
		files:      make(map[string]string),
		allowEmpty: b.allowEmpty,
	}
	if err := b.bind(cmd); err != nil {
		return nil, err
	}

	argv := slices.Clone(b.call)
	for _, o := range b.options {
		argv = append(argv, o.flag)
		argv = append(argv, o.values...)
	}
	argv = append(argv, b.values...)
	for _, arg := range argv {
		for _, role := range placeholders(arg) {
			if role == TempDirToken {
				continue
			}
			if _, ok := cmd.files[role]; !ok {
				return nil, fmt.Errorf("%w: {%s} in %q", ErrUnresolvedPlaceholder, role, arg)
			}
		}
	}
	cmd.argv = argv

	if err := checkStagedNames([]*Command{cmd}); err != nil {
		return nil, err
	}

	b.finalized = cmd
	return cmd, nil
}

func (b *Builder) bind(cmd *Command) error {
	for _, role := range sortedKeys(b.kwargs) {
		value := b.kwargs[role]
		if !isInputRole(role) && !isOutputRole(role) && !isTempOutputRole(role) {
			return fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		switch v := value.(type) {
		case string:
			if v == "" {
				return fmt.Errorf("%w: %s has an empty path", ErrInvalidBinding, role)
			}
			path := v
			if isTempOutputRole(role) {
				// Scratch files only ever live inside the working directory.
				path = filepath.Base(v)
			} else {
				abs, err := filepath.Abs(v)
				if err != nil {
					return fmt.Errorf("resolving %s path %q: %w", role, v, err)
				}
				path = abs
			}
			cmd.files[role] = path
		case pipeMarker:
			switch role {
			case RoleStdout:
				cmd.stdoutPipe = true
			case RoleStdin:
				cmd.stdinPipe = true
			default:
				return fmt.Errorf("%w: only %s and %s accept Pipe, got %s", ErrInvalidBinding, RoleStdin, RoleStdout, role)
			}
		case *Builder:
			if role != RoleStdin {
				return fmt.Errorf("%w: a builder may only be bound to %s, got %s", ErrInvalidBinding, RoleStdin, role)
			}
			if v.finalized == nil {
				return fmt.Errorf("%w: upstream builder for %s is not finalized", ErrInvalidBinding, RoleStdin)
			}
			cmd.stdinFrom = v.finalized
		case *Command:
			if role != RoleStdin {
				return fmt.Errorf("%w: a command may only be bound to %s, got %s", ErrInvalidBinding, RoleStdin, role)
			}
			cmd.stdinFrom = v
		default:
			return fmt.Errorf("%w: unsupported value %T for %s", ErrInvalidBinding, value, role)
		}
	}
	if cmd.stdinFrom != nil && !cmd.stdinFrom.stdoutPipe {
		return fmt.Errorf("%w: upstream of %s does not write %s to Pipe", ErrInvalidPipe, RoleStdin, RoleStdout)
	}
	return nil
}

// ApplyOptions applies a configuration map of option flags to b. A true value
// adds the bare flag, false or nil removes it, a list adds the flag once per
// element and any other value replaces the flag's value. Keys are applied in
// sorted order and must start with "-".
func ApplyOptions(b *Builder, options map[string]any) error {
	for _, flag := range sortedKeys(options) {
		if !strings.HasPrefix(flag, "-") {
			return fmt.Errorf("option %q does not start with '-'", flag)
		}
		switch v := options[flag].(type) {
		case nil:
			b.PopOption(flag)
		case bool:
			if v {
				b.SetOption(flag)
			} else {
				b.PopOption(flag)
			}
		case []any:
			b.PopOption(flag)
			for _, item := range v {
				b.AddOption(flag, item)
			}
		case []string:
			b.PopOption(flag)
			for _, item := range v {
				b.AddOption(flag, item)
			}
		default:
			b.SetOption(flag, v)
		}
	}
	if b.err != nil {
		return b.err
	}
	return nil
}

func stringify(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
