package atomiccmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/armon/circbuf"
	"github.com/vk/nodepipe/internal/ctxlog"
	"github.com/vk/nodepipe/internal/fsutil"
	"golang.org/x/sync/errgroup"
)

// stderrTailSize bounds how much stderr is kept in memory per process.
const stderrTailSize = 64 * 1024

// cancelWaitDelay bounds how long Wait keeps draining stderr after the process
// group was killed.
const cancelWaitDelay = 2 * time.Second

// process is one spawned member of a run.
type process struct {
	index  int
	cmd    *exec.Cmd
	tail   *circbuf.Buffer
	files  []*os.File
	status ExitStatus
}

func (p *process) close() {
	for _, f := range p.files {
		_ = f.Close()
	}
	p.files = nil
}

// wait blocks until the process exits and records its status. Only failures
// unrelated to the process outcome (e.g. stderr copying) are returned.
func (p *process) wait() error {
	err := p.cmd.Wait()
	p.status.NotRun = false
	p.status.ExitCode, p.status.Signal = exitStatus(p.cmd.ProcessState)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Errorf("waiting for %s: %w", p.status.Command, err)
	}
	return nil
}

func exitStatus(ps *os.ProcessState) (int, string) {
	if ps == nil {
		return -1, ""
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, ws.Signal().String()
	}
	return ps.ExitCode(), ""
}

// execute runs cmds inside workDir. With a non-nil pipes map (downstream index
// to upstream index, possibly empty) all members run concurrently; with nil
// they run one after another and stop at the first failure.
func execute(ctx context.Context, workDir string, cmds []*Command, pipes map[int]int) error {
	logger := ctxlog.FromContext(ctx)

	statuses := make([]ExitStatus, len(cmds))
	for i, c := range cmds {
		statuses[i] = ExitStatus{Command: c.String(), NotRun: true}
	}

	if err := preflight(cmds); err != nil {
		logger.Debug("Pre-flight check failed, nothing was spawned.", "error", err)
		return &ExecError{Kind: KindPreflight, Statuses: statuses, Err: err}
	}

	var (
		procs  []*process
		runErr error
	)
	if pipes != nil || len(cmds) == 1 {
		procs, runErr = runConcurrent(ctx, workDir, cmds, pipes)
	} else {
		procs, runErr = runInOrder(ctx, workDir, cmds)
	}
	var stderrTails []string
	for i, p := range procs {
		if p == nil {
			continue
		}
		statuses[i] = p.status
		if !p.status.NotRun && !p.status.Success() {
			if tail := strings.TrimSpace(p.tail.String()); tail != "" {
				stderrTails = append(stderrTails, tail)
			}
		}
	}
	stderr := strings.Join(stderrTails, "\n")

	fail := func(kind Kind, err error) error {
		removeOutputs(ctx, workDir, cmds)
		return &ExecError{Kind: kind, Statuses: statuses, Stderr: stderr, Err: err}
	}

	if runErr != nil {
		return fail(KindInfrastructure, runErr)
	}
	var failed []string
	for _, s := range statuses {
		if !s.Success() && !s.NotRun {
			failed = append(failed, s.String())
		}
	}
	if len(failed) > 0 {
		return fail(KindExecution, fmt.Errorf("%w: %s", ErrNonZeroExit, strings.Join(failed, "; ")))
	}
	if err := verifyOutputs(workDir, cmds); err != nil {
		return fail(KindExecution, err)
	}
	if err := commitOutputs(workDir, cmds); err != nil {
		return fail(KindInfrastructure, err)
	}
	return nil
}

func preflight(cmds []*Command) error {
	var missing []string
	for _, c := range cmds {
		for _, path := range c.InputFiles() {
			if !fsutil.Exists(path) {
				missing = append(missing, path)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(missing, ", "))
	}
	return nil
}

// prepare builds the process for c with its stdio bound to files. Pipe ends
// are connected by the caller.
func prepare(ctx context.Context, workDir string, c *Command, index int) (*process, error) {
	resolve := c.resolver(workDir)
	args := make([]string, len(c.argv))
	for i, arg := range c.argv {
		args[i] = expand(arg, resolve)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = workDir
	// Each process leads its own group so cancellation also reaches the
	// children a wrapper script may have spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		} else if err != nil {
			return err
		}
		return nil
	}
	cmd.WaitDelay = cancelWaitDelay
	tail, err := circbuf.NewBuffer(stderrTailSize)
	if err != nil {
		return nil, fmt.Errorf("allocating stderr buffer: %w", err)
	}
	p := &process{
		index:  index,
		cmd:    cmd,
		tail:   tail,
		status: ExitStatus{Command: c.String(), NotRun: true},
	}

	if path, ok := c.files[RoleStdin]; ok {
		f, err := os.Open(path)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("opening stdin for %s: %w", p.status.Command, err)
		}
		p.files = append(p.files, f)
		cmd.Stdin = f
	}
	if !c.stdoutPipe {
		path := filepath.Join(workDir, c.captureName(index, "stdout"))
		if _, ok := c.files[RoleStdout]; ok {
			path = c.staged(workDir, RoleStdout)
		}
		f, err := os.Create(path)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("creating stdout for %s: %w", p.status.Command, err)
		}
		p.files = append(p.files, f)
		cmd.Stdout = f
	}
	path := filepath.Join(workDir, c.captureName(index, "stderr"))
	if _, ok := c.files[RoleStderr]; ok {
		path = c.staged(workDir, RoleStderr)
	}
	f, err := os.Create(path)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("creating stderr for %s: %w", p.status.Command, err)
	}
	p.files = append(p.files, f)
	cmd.Stderr = io.MultiWriter(f, p.tail)
	return p, nil
}

func runConcurrent(ctx context.Context, workDir string, cmds []*Command, pipes map[int]int) ([]*process, error) {
	logger := ctxlog.FromContext(ctx)
	procs := make([]*process, len(cmds))
	closeAll := func() {
		for _, p := range procs {
			if p != nil {
				p.close()
			}
		}
	}

	for i, c := range cmds {
		p, err := prepare(ctx, workDir, c, i)
		if err != nil {
			closeAll()
			return procs, err
		}
		procs[i] = p
	}

	// The parent's copies of the pipe ends are closed once every member has
	// started, so readers see EOF when their writer exits.
	var pipeEnds []*os.File
	closePipes := func() {
		for _, f := range pipeEnds {
			_ = f.Close()
		}
		pipeEnds = nil
	}
	for down, up := range pipes {
		r, w, err := os.Pipe()
		if err != nil {
			closePipes()
			closeAll()
			return procs, fmt.Errorf("creating pipe: %w", err)
		}
		procs[up].cmd.Stdout = w
		procs[down].cmd.Stdin = r
		pipeEnds = append(pipeEnds, r, w)
	}

	for i, p := range procs {
		logger.Debug("Starting process.", "command", p.status.Command)
		if err := p.cmd.Start(); err != nil {
			for _, started := range procs[:i] {
				_ = started.cmd.Process.Kill()
				_ = started.wait()
			}
			closePipes()
			closeAll()
			return procs, fmt.Errorf("starting %s: %w", p.status.Command, err)
		}
	}
	closePipes()

	var g errgroup.Group
	for _, p := range procs {
		g.Go(p.wait)
	}
	err := g.Wait()
	closeAll()
	return procs, err
}

func runInOrder(ctx context.Context, workDir string, cmds []*Command) ([]*process, error) {
	logger := ctxlog.FromContext(ctx)
	procs := make([]*process, len(cmds))
	for i, c := range cmds {
		p, err := prepare(ctx, workDir, c, i)
		if err != nil {
			return procs, err
		}
		procs[i] = p
		logger.Debug("Starting process.", "command", p.status.Command)
		if err := p.cmd.Start(); err != nil {
			p.close()
			return procs, fmt.Errorf("starting %s: %w", p.status.Command, err)
		}
		err = p.wait()
		p.close()
		if err != nil {
			return procs, err
		}
		if !p.status.Success() {
			logger.Debug("Process failed, remaining members are not run.", "command", p.status.Command, "remaining", len(cmds)-i-1)
			break
		}
	}
	return procs, nil
}

func verifyOutputs(workDir string, cmds []*Command) error {
	var problems []error
	for _, c := range cmds {
		for _, role := range c.outputRoles() {
			info, err := os.Stat(c.staged(workDir, role))
			switch {
			case err != nil:
				problems = append(problems, fmt.Errorf("%w: %s", ErrMissingOutput, c.files[role]))
			case info.Size() == 0 && !c.allowEmpty && role != RoleStderr:
				problems = append(problems, fmt.Errorf("%w: %s", ErrEmptyOutput, c.files[role]))
			}
		}
	}
	return errors.Join(problems...)
}

func commitOutputs(workDir string, cmds []*Command) error {
	for _, c := range cmds {
		for _, role := range c.outputRoles() {
			if err := fsutil.MoveFile(c.staged(workDir, role), c.files[role]); err != nil {
				return fmt.Errorf("committing %s: %w", c.files[role], err)
			}
		}
	}
	return nil
}

// removeOutputs deletes staged and final copies of every declared output.
// Removal failures are logged and otherwise ignored.
func removeOutputs(ctx context.Context, workDir string, cmds []*Command) {
	logger := ctxlog.FromContext(ctx)
	for _, c := range cmds {
		for _, role := range c.outputRoles() {
			for _, path := range []string{c.staged(workDir, role), c.files[role]} {
				if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
					logger.Warn("Could not remove output of failed command.", "path", path, "error", err)
				}
			}
		}
	}
}

// checkStagedNames rejects member sets whose files would share a name inside
// the working directory: two outputs, an output and a scratch file, or either
// of them and an automatic stdout or stderr capture. Members of one set may
// share scratch names with each other.
func checkStagedNames(cmds []*Command) error {
	owners := make(map[string]string)
	claim := func(name, owner string) error {
		if prev, ok := owners[name]; ok {
			return fmt.Errorf("%w: %q is used by both %s and %s", ErrDuplicateOutput, name, prev, owner)
		}
		owners[name] = owner
		return nil
	}

	for _, c := range cmds {
		for _, role := range c.outputRoles() {
			if err := claim(filepath.Base(c.files[role]), c.files[role]); err != nil {
				return err
			}
		}
	}
	for i, c := range cmds {
		if _, ok := c.files[RoleStdout]; !ok && !c.stdoutPipe {
			if err := claim(c.captureName(i, "stdout"), "the captured stdout of "+c.String()); err != nil {
				return err
			}
		}
		if _, ok := c.files[RoleStderr]; !ok {
			if err := claim(c.captureName(i, "stderr"), "the captured stderr of "+c.String()); err != nil {
				return err
			}
		}
	}

	scratch := make(map[string]bool)
	for _, c := range cmds {
		for _, role := range sortedKeys(c.files) {
			if !isTempOutputRole(role) {
				continue
			}
			name := c.files[role]
			if prev, ok := owners[name]; ok && !scratch[name] {
				return fmt.Errorf("%w: scratch file %q of %s is also %s", ErrDuplicateOutput, name, c, prev)
			}
			owners[name] = "scratch"
			scratch[name] = true
		}
	}
	return nil
}
