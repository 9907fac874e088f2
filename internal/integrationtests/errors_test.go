package integrationtests

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodepipe/internal/app"
	"github.com/vk/nodepipe/internal/atomiccmd"
	"github.com/vk/nodepipe/internal/builder"
	"github.com/vk/nodepipe/internal/graph"
	"github.com/vk/nodepipe/internal/node"
)

// Test for: a failure skips everything downstream but lets unrelated
// branches finish, and leaves no partial outputs behind.
func TestErrors_FailureIsolation(t *testing.T) {
	pipelineHCL := `
node "bad" {
  command "sh" {
    argv    = ["sh", "-c", "echo partial > {OUT_X}; exit 4"]
    outputs = { X = "${var.data}/bad.txt" }
  }
}
node "downstream" {
  command "cat" {
    argv   = ["cat", "{IN_X}"]
    inputs = { X = "${var.data}/bad.txt" }
    stdout = "${var.data}/downstream.txt"
  }
}
node "unrelated" {
  command "echo" {
    argv   = ["echo", "ok"]
    stdout = "${var.data}/unrelated.txt"
  }
}
meta "all" {
  depends_on = ["downstream", "unrelated"]
}
`
	res, dataDir, _, err := runPipeline(t, app.Config{WorkerCount: 2}, pipelineHCL)
	require.NoError(t, err)
	require.False(t, res.Succeeded)

	states := map[string]node.State{}
	for _, nr := range res.Nodes {
		states[nr.Node.Description()] = nr.State
	}
	assert.Equal(t, node.Failed, states["bad"])
	assert.Equal(t, node.Skipped, states["downstream"])
	assert.Equal(t, node.Done, states["unrelated"])
	assert.Equal(t, node.Skipped, states["all"])

	assert.NoFileExists(t, filepath.Join(dataDir, "bad.txt"))
	assert.FileExists(t, filepath.Join(dataDir, "unrelated.txt"))

	bad := res.FailedNodes()[0]
	var execErr *atomiccmd.ExecError
	require.True(t, errors.As(bad.Err, &execErr))
	assert.Equal(t, 4, execErr.Statuses[0].ExitCode)
}

// Test for: graph errors are reported before anything runs.
func TestErrors_Construction(t *testing.T) {
	testCases := []struct {
		name    string
		hcl     string
		wantErr error
	}{
		{
			name: "cycle",
			hcl: `
node "a" {
  depends_on = ["b"]
  command "true" { argv = ["true"] }
}
node "b" {
  depends_on = ["a"]
  command "true" { argv = ["true"] }
}
`,
			wantErr: graph.ErrCycle,
		},
		{
			name: "unknown dependency",
			hcl: `
node "a" {
  depends_on = ["ghost"]
  command "true" { argv = ["true"] }
}
`,
			wantErr: builder.ErrUnknownDependency,
		},
		{
			name: "output collision",
			hcl: `
node "a" {
  command "echo" {
    argv   = ["echo"]
    stdout = "${var.data}/same.txt"
  }
}
node "b" {
  command "echo" {
    argv   = ["echo"]
    stdout = "${var.data}/same.txt"
  }
}
`,
			wantErr: builder.ErrOutputCollision,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, _, _, err := runPipeline(t, app.Config{}, tc.hcl)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
