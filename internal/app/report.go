package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/vk/nodepipe/internal/node"
	"github.com/vk/nodepipe/internal/scheduler"
	"gopkg.in/yaml.v3"
)

// Report is the YAML summary of a run.
type Report struct {
	Succeeded bool         `yaml:"succeeded"`
	Duration  string       `yaml:"duration"`
	Nodes     []NodeReport `yaml:"nodes"`
	Failed    []string     `yaml:"failed,omitempty"`
	Skipped   []string     `yaml:"skipped,omitempty"`
}

// NodeReport is one node of a Report.
type NodeReport struct {
	Description string `yaml:"description"`
	State       string `yaml:"state"`
	Duration    string `yaml:"duration,omitempty"`
	UpToDate    bool   `yaml:"up_to_date,omitempty"`
	Error       string `yaml:"error,omitempty"`
	Stderr      string `yaml:"stderr,omitempty"`
}

// NewReport summarizes res.
func NewReport(res *scheduler.Result) *Report {
	rep := &Report{Succeeded: res.Succeeded, Duration: res.Duration.String()}
	for _, nr := range res.Nodes {
		entry := NodeReport{
			Description: nr.Node.Description(),
			State:       nr.State.String(),
			UpToDate:    nr.UpToDate,
			Stderr:      nr.Stderr,
		}
		if nr.Duration > 0 {
			entry.Duration = nr.Duration.String()
		}
		if nr.Err != nil {
			entry.Error = nr.Err.Error()
		}
		rep.Nodes = append(rep.Nodes, entry)
		switch nr.State {
		case node.Failed:
			rep.Failed = append(rep.Failed, entry.Description)
		case node.Skipped:
			rep.Skipped = append(rep.Skipped, entry.Description)
		}
	}
	return rep
}

func writeReport(path string, res *scheduler.Result) error {
	data, err := yaml.Marshal(NewReport(res))
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// FailureSummary lists failed nodes with their error and stderr tail, then
// the nodes skipped because of them.
func FailureSummary(res *scheduler.Result) string {
	var sb strings.Builder
	failed := res.FailedNodes()
	fmt.Fprintf(&sb, "%d node(s) failed:\n", len(failed))
	for _, nr := range failed {
		fmt.Fprintf(&sb, "  - %s: %v\n", nr.Node.Description(), nr.Err)
		if stderr := strings.TrimSpace(nr.Stderr); stderr != "" {
			for _, line := range strings.Split(stderr, "\n") {
				fmt.Fprintf(&sb, "      %s\n", line)
			}
		}
	}
	if skipped := res.SkippedNodes(); len(skipped) > 0 {
		fmt.Fprintf(&sb, "%d node(s) skipped:\n", len(skipped))
		for _, nr := range skipped {
			fmt.Fprintf(&sb, "  - %s\n", nr.Node.Description())
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
