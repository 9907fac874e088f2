package atomiccmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Command is an immutable external process invocation with declared input and
// output files. Commands are created by Builder.Finalize.
type Command struct {
	argv []string
	// files maps bound roles to paths: absolute final paths for IN_ and OUT_
	// roles, base names for TEMP_OUT_ roles.
	files      map[string]string
	stdinPipe  bool
	stdinFrom  *Command
	stdoutPipe bool
	allowEmpty bool
}

// Execute runs the command inside workDir, which must exist and be private to
// this invocation. Declared outputs reach their final paths only if the
// process exits with status 0 and produces all of them. Failures are returned
// as *ExecError.
func (c *Command) Execute(ctx context.Context, workDir string) error {
	if c.stdinPipe || c.stdinFrom != nil || c.stdoutPipe {
		return &ExecError{
			Kind:     KindPreflight,
			Statuses: []ExitStatus{{Command: c.String(), NotRun: true}},
			Err:      ErrInvalidPipe,
		}
	}
	return execute(ctx, workDir, []*Command{c}, nil)
}

// Executable returns the program name.
func (c *Command) Executable() string {
	return c.argv[0]
}

// Argv returns a copy of the unexpanded argument vector.
func (c *Command) Argv() []string {
	out := make([]string, len(c.argv))
	copy(out, c.argv)
	return out
}

// InputFiles returns the sorted absolute paths of all declared inputs.
func (c *Command) InputFiles() []string {
	return c.paths(isInputRole)
}

// OutputFiles returns the sorted absolute final paths of all declared outputs.
func (c *Command) OutputFiles() []string {
	return c.paths(isOutputRole)
}

func (c *Command) paths(match func(string) bool) []string {
	var out []string
	for role, path := range c.files {
		if match(role) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// outputRoles returns the bound OUT_ roles in sorted order.
func (c *Command) outputRoles() []string {
	var roles []string
	for role := range c.files {
		if isOutputRole(role) {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles
}

// staged returns where the output bound to role is written inside workDir.
func (c *Command) staged(workDir, role string) string {
	return filepath.Join(workDir, filepath.Base(c.files[role]))
}

// captureName is the working directory file receiving the unbound stdout or
// stderr of the index-th member of a run.
func (c *Command) captureName(index int, stream string) string {
	exe := filepath.Base(expand(c.argv[0], c.resolver("")))
	return fmt.Sprintf("%s_%d.%s", exe, index, stream)
}

// resolver maps role tokens for a run inside workDir.
func (c *Command) resolver(workDir string) func(string) (string, bool) {
	return func(role string) (string, bool) {
		if role == TempDirToken {
			return workDir, true
		}
		path, ok := c.files[role]
		if !ok {
			return "", false
		}
		switch {
		case isInputRole(role):
			return path, true
		default:
			return filepath.Join(workDir, filepath.Base(path)), true
		}
	}
}

// String renders the command as a shell-like line, with placeholders resolved
// to final paths and file redirections appended. Pipes are rendered by sets.
func (c *Command) String() string {
	display := func(role string) (string, bool) {
		if role == TempDirToken {
			return "${TEMP_DIR}", true
		}
		path, ok := c.files[role]
		if ok && isTempOutputRole(role) {
			return filepath.Join("${TEMP_DIR}", path), true
		}
		return path, ok
	}

	parts := make([]string, 0, len(c.argv)+4)
	for _, arg := range c.argv {
		parts = append(parts, quote(expand(arg, display)))
	}
	if path := c.files[RoleStdin]; path != "" {
		parts = append(parts, "<", quote(path))
	}
	if path := c.files[RoleStdout]; path != "" && !c.stdoutPipe {
		parts = append(parts, ">", quote(path))
	}
	if path := c.files[RoleStderr]; path != "" {
		parts = append(parts, "2>", quote(path))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n'\"\\$;&|<>*?(){}") {
		return strconv.Quote(s)
	}
	return s
}
