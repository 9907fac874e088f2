package atomiccmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ParallelSet runs its members concurrently in one working directory. Members
// whose stdout is Pipe feed exactly one other member over an OS pipe.
type ParallelSet struct {
	cmds []*Command
	// pipes maps a downstream member index to its upstream member index.
	pipes map[int]int
}

// NewParallelSet validates the pipe wiring of cmds. A member bound with
// IN_STDIN=Pipe reads from the member right before it; a member bound to an
// upstream builder or command reads from that member, which must be part of
// the set.
func NewParallelSet(cmds ...*Command) (*ParallelSet, error) {
	if err := checkMembers(cmds); err != nil {
		return nil, err
	}

	index := make(map[*Command]int, len(cmds))
	for i, c := range cmds {
		index[c] = i
	}
	pipes := make(map[int]int)
	consumers := make(map[int]int)
	for i, c := range cmds {
		var up int
		switch {
		case c.stdinFrom != nil:
			j, ok := index[c.stdinFrom]
			if !ok {
				return nil, fmt.Errorf("%w: %s reads from a command outside the set", ErrInvalidPipe, c)
			}
			up = j
		case c.stdinPipe:
			if i == 0 {
				return nil, fmt.Errorf("%w: first member %s has no preceding process to read from", ErrInvalidPipe, c)
			}
			up = i - 1
		default:
			continue
		}
		if up == i {
			return nil, fmt.Errorf("%w: %s reads its own output", ErrInvalidPipe, c)
		}
		if !cmds[up].stdoutPipe {
			return nil, fmt.Errorf("%w: %s does not write stdout to Pipe", ErrInvalidPipe, cmds[up])
		}
		pipes[i] = up
		consumers[up]++
	}
	for i, c := range cmds {
		if c.stdoutPipe && consumers[i] != 1 {
			return nil, fmt.Errorf("%w: stdout of %s feeds %d members, want exactly 1", ErrInvalidPipe, c, consumers[i])
		}
	}
	return &ParallelSet{cmds: cmds, pipes: pipes}, nil
}

// Execute starts every member, waits for all of them and commits the outputs
// of the whole set only if every member succeeded.
func (s *ParallelSet) Execute(ctx context.Context, workDir string) error {
	return execute(ctx, workDir, s.cmds, s.pipes)
}

// Commands returns the members in set order.
func (s *ParallelSet) Commands() []*Command {
	return append([]*Command(nil), s.cmds...)
}

func (s *ParallelSet) InputFiles() []string  { return unionFiles(s.cmds, (*Command).InputFiles) }
func (s *ParallelSet) OutputFiles() []string { return unionFiles(s.cmds, (*Command).OutputFiles) }

func (s *ParallelSet) String() string {
	var sb strings.Builder
	for i, c := range s.cmds {
		if i > 0 {
			if up, ok := s.pipes[i]; ok && up == i-1 {
				sb.WriteString(" | ")
			} else {
				sb.WriteString(" & ")
			}
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}

// SequentialSet runs its members one after another in one working directory,
// so later members may read the scratch files of earlier ones.
type SequentialSet struct {
	cmds []*Command
}

// NewSequentialSet rejects members that use pipes.
func NewSequentialSet(cmds ...*Command) (*SequentialSet, error) {
	if err := checkMembers(cmds); err != nil {
		return nil, err
	}
	for _, c := range cmds {
		if c.stdinPipe || c.stdinFrom != nil || c.stdoutPipe {
			return nil, fmt.Errorf("%w: sequential member %s uses a pipe", ErrInvalidPipe, c)
		}
	}
	return &SequentialSet{cmds: cmds}, nil
}

// Execute runs the members in order, stopping at the first failure. Members
// after a failure are reported as not run.
func (s *SequentialSet) Execute(ctx context.Context, workDir string) error {
	return execute(ctx, workDir, s.cmds, nil)
}

// Commands returns the members in set order.
func (s *SequentialSet) Commands() []*Command {
	return append([]*Command(nil), s.cmds...)
}

func (s *SequentialSet) InputFiles() []string  { return unionFiles(s.cmds, (*Command).InputFiles) }
func (s *SequentialSet) OutputFiles() []string { return unionFiles(s.cmds, (*Command).OutputFiles) }

func (s *SequentialSet) String() string {
	parts := make([]string, len(s.cmds))
	for i, c := range s.cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " && ")
}

func checkMembers(cmds []*Command) error {
	if len(cmds) == 0 {
		return ErrEmptySet
	}
	seen := make(map[*Command]bool, len(cmds))
	for _, c := range cmds {
		if c == nil {
			return fmt.Errorf("%w: nil member", ErrInvalidBinding)
		}
		if seen[c] {
			return fmt.Errorf("%w: %s appears twice", ErrInvalidBinding, c)
		}
		seen[c] = true
	}
	return checkStagedNames(cmds)
}

func unionFiles(cmds []*Command, files func(*Command) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range cmds {
		for _, f := range files(c) {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}
