package atomiccmd

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFinalized is returned when Finalize is called twice on a Builder.
	ErrFinalized = errors.New("builder already finalized")
	// ErrNoExecutable is returned when a Builder has an empty call.
	ErrNoExecutable = errors.New("no executable given")
	// ErrUnresolvedPlaceholder is returned for a {ROLE} token with no binding.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
	// ErrUnknownRole is returned for a binding key that is not a known role.
	ErrUnknownRole = errors.New("unknown binding role")
	// ErrInvalidBinding is returned for a binding value of the wrong kind.
	ErrInvalidBinding = errors.New("invalid binding")
	// ErrInvalidPipe is returned when pipe bindings cannot be wired.
	ErrInvalidPipe = errors.New("invalid pipe")
	// ErrDuplicateOutput is returned when two files would be staged under the same name.
	ErrDuplicateOutput = errors.New("duplicate output file name")
	// ErrEmptySet is returned when a set is created without members.
	ErrEmptySet = errors.New("command set has no members")

	// ErrMissingInput is reported when a declared input does not exist at pre-flight.
	ErrMissingInput = errors.New("missing input file")
	// ErrMissingOutput is reported when a declared output was not produced.
	ErrMissingOutput = errors.New("missing output file")
	// ErrEmptyOutput is reported when a declared output is empty.
	ErrEmptyOutput = errors.New("empty output file")
	// ErrNonZeroExit is reported when a process exited unsuccessfully.
	ErrNonZeroExit = errors.New("process failed")
)

// Kind classifies why a command did not succeed.
type Kind int

const (
	// KindPreflight means a declared input was absent; no process was spawned.
	KindPreflight Kind = iota + 1
	// KindExecution means the tool ran and failed, or did not produce its outputs.
	KindExecution
	// KindInfrastructure means the tool could not be started or its outputs
	// could not be committed.
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindPreflight:
		return "preflight"
	case KindExecution:
		return "execution"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// ExitStatus is the outcome of a single process.
type ExitStatus struct {
	Command  string
	ExitCode int
	Signal   string
	NotRun   bool
}

// Success reports whether the process ran and exited with status 0.
func (s ExitStatus) Success() bool {
	return !s.NotRun && s.Signal == "" && s.ExitCode == 0
}

func (s ExitStatus) String() string {
	switch {
	case s.NotRun:
		return fmt.Sprintf("%s: not run", s.Command)
	case s.Signal != "":
		return fmt.Sprintf("%s: terminated by %s", s.Command, s.Signal)
	default:
		return fmt.Sprintf("%s: exit status %d", s.Command, s.ExitCode)
	}
}

// ExecError describes a failed Execute call.
type ExecError struct {
	Kind Kind
	// Statuses holds one entry per process, in set order.
	Statuses []ExitStatus
	// Stderr is the tail of the captured standard error of the failed processes.
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(" failure: ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
