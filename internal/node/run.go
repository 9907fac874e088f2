package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vk/nodepipe/internal/atomiccmd"
	"github.com/vk/nodepipe/internal/ctxlog"
)

// WorkerContext carries what a worker provides to the node it runs.
type WorkerContext struct {
	// TempRoot is the directory under which per-node working directories
	// are created.
	TempRoot string
	// KeepFailedTemp keeps the working directory of a failed node for
	// inspection.
	KeepFailedTemp bool
	WorkerID       int
}

// Result is the outcome of one node.
type Result struct {
	Node     *Node
	State    State
	Err      error
	Stderr   string
	Kind     atomiccmd.Kind
	Duration time.Duration
	// UpToDate is set when the node was not run because its outputs were
	// already newer than its inputs.
	UpToDate bool
}

// Run executes the node's work inside a fresh working directory below
// wc.TempRoot. It does not change the node's state; that is the scheduler's
// job. Meta nodes succeed immediately.
func (n *Node) Run(ctx context.Context, wc WorkerContext) *Result {
	start := time.Now()
	res := &Result{Node: n}
	if n.meta {
		res.State = Done
		return res
	}

	logger := ctxlog.FromContext(ctx).With("node", n.description, "workerID", wc.WorkerID)

	workDir := filepath.Join(wc.TempRoot, fmt.Sprintf("%s-%s", slug(n.description), uuid.NewString()[:8]))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		res.State = Failed
		res.Kind = atomiccmd.KindInfrastructure
		res.Err = fmt.Errorf("creating working directory for %q: %w", n.description, err)
		res.Duration = time.Since(start)
		return res
	}
	logger = logger.With("workDir", workDir)
	logger.Debug("Executing node.", "command", n.runnable.String())

	err := n.runnable.Execute(ctxlog.WithLogger(ctx, logger), workDir)
	res.Duration = time.Since(start)
	if err == nil {
		res.State = Done
		removeWorkDir(logger, workDir)
		return res
	}

	res.State = Failed
	res.Err = err
	res.Kind = atomiccmd.KindExecution
	var execErr *atomiccmd.ExecError
	if errors.As(err, &execErr) {
		res.Kind = execErr.Kind
		res.Stderr = execErr.Stderr
	}
	if wc.KeepFailedTemp {
		logger.Info("Keeping working directory of failed node.")
	} else {
		removeWorkDir(logger, workDir)
	}
	return res
}

func removeWorkDir(logger *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("Could not remove working directory.", "error", err)
	}
}

// IsUpToDate reports whether every declared output exists and none is older
// than any declared input. Nodes without outputs are never up to date.
func (n *Node) IsUpToDate() bool {
	outputs := n.OutputFiles()
	if len(outputs) == 0 {
		return false
	}

	var newestInput time.Time
	for _, path := range n.InputFiles() {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}
	for _, path := range outputs {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().Before(newestInput) {
			return false
		}
	}
	return true
}

const maxSlugLen = 40

// slug turns a description into a short file-name-safe prefix.
func slug(description string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(description) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			sb.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}
	s := strings.Trim(sb.String(), "_.-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "_.-")
	}
	if s == "" {
		return "node"
	}
	return s
}
