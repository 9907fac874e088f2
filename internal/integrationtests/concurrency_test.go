package integrationtests

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodepipe/internal/app"
)

// Test for: independent nodes run side by side and the fan-in node waits for
// all of them.
func TestConcurrency_FanOutFanIn(t *testing.T) {
	pipelineHCL := `
node "A" {
  command "sh" {
    argv    = ["sh", "-c", "sleep 0.3; echo A > {OUT_X}"]
    outputs = { X = "${var.data}/a.txt" }
  }
}
node "B" {
  command "sh" {
    argv    = ["sh", "-c", "sleep 0.3; echo B > {OUT_X}"]
    outputs = { X = "${var.data}/b.txt" }
  }
}
node "C" {
  command "sh" {
    argv    = ["sh", "-c", "sleep 0.3; echo C > {OUT_X}"]
    outputs = { X = "${var.data}/c.txt" }
  }
}
node "D" {
  command "cat" {
    argv   = ["cat", "{IN_A}", "{IN_B}", "{IN_C}"]
    inputs = {
      A = "${var.data}/a.txt"
      B = "${var.data}/b.txt"
      C = "${var.data}/c.txt"
    }
    stdout = "${var.data}/d.txt"
  }
}
`
	res, dataDir, logs, err := runPipeline(t, app.Config{WorkerCount: 4}, pipelineHCL)
	require.NoError(t, err)
	require.True(t, res.Succeeded, logs.String())

	assert.Equal(t, "A\nB\nC\n", readFile(t, filepath.Join(dataDir, "d.txt")))
	assert.Equal(t, 3, res.MaxConcurrent, "A, B and C should overlap")
	assert.Equal(t, "D", res.Nodes[len(res.Nodes)-1].Node.Description())
}

// Test for: a single worker serializes the whole graph.
func TestConcurrency_SingleWorker(t *testing.T) {
	pipelineHCL := `
node "one" {
  command "sh" {
    argv    = ["sh", "-c", "echo 1 > {OUT_X}"]
    outputs = { X = "${var.data}/1.txt" }
  }
}
node "two" {
  command "sh" {
    argv    = ["sh", "-c", "echo 2 > {OUT_X}"]
    outputs = { X = "${var.data}/2.txt" }
  }
}
`
	res, _, _, err := runPipeline(t, app.Config{WorkerCount: 1}, pipelineHCL)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	assert.Equal(t, 1, res.MaxConcurrent)
}
