package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodepipe/internal/hcl"
	"gopkg.in/yaml.v3"
)

func writePipeline(t *testing.T, body string) (pipelineDir, dataDir string) {
	t.Helper()
	pipelineDir = t.TempDir()
	dataDir = t.TempDir()
	content := fmt.Sprintf("variables {\n  data = %q\n}\n%s", dataDir, body)
	require.NoError(t, os.WriteFile(filepath.Join(pipelineDir, "main.hcl"), []byte(content), 0o644))
	return pipelineDir, dataDir
}

const twoStepPipeline = `
node "produce" {
  command "sh" {
    argv    = ["sh", "-c", "echo hello > {OUT_A}"]
    outputs = { A = "${var.data}/a.txt" }
  }
}

node "consume" {
  description = "Upper-case a.txt"
  command "tr" {
    argv    = ["tr", "a-z", "A-Z"]
    stdin   = "${var.data}/a.txt"
    stdout  = "${var.data}/b.txt"
  }
}
`

func TestRun_Success(t *testing.T) {
	pipelineDir, dataDir := writePipeline(t, twoStepPipeline)
	reportPath := filepath.Join(t.TempDir(), "report.yaml")
	a, logs := SetupAppTest(t, Config{PipelinePaths: []string{pipelineDir}, ReportPath: reportPath}, hcl.NewLoader())

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Succeeded, logs.String())

	got, err := os.ReadFile(filepath.Join(dataDir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO\n", string(got))
	assert.Contains(t, logs.String(), "Pipeline finished.")

	var rep Report
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &rep))
	assert.True(t, rep.Succeeded)
	require.Len(t, rep.Nodes, 2)
	assert.Equal(t, "produce", rep.Nodes[0].Description)
	assert.Equal(t, "done", rep.Nodes[1].State)
}

func TestRun_UpToDateAndForce(t *testing.T) {
	pipelineDir, _ := writePipeline(t, twoStepPipeline)
	a, _ := SetupAppTest(t, Config{PipelinePaths: []string{pipelineDir}}, hcl.NewLoader())

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	for _, nr := range res.Nodes {
		assert.True(t, nr.UpToDate, nr.Node.Description())
	}

	forced, _ := SetupAppTest(t, Config{PipelinePaths: []string{pipelineDir}, Force: true}, hcl.NewLoader())
	res, err = forced.Run(context.Background())
	require.NoError(t, err)
	for _, nr := range res.Nodes {
		assert.False(t, nr.UpToDate, nr.Node.Description())
	}
}

func TestRun_FailureSummary(t *testing.T) {
	pipelineDir, _ := writePipeline(t, `
node "broken" {
  command "sh" {
    argv    = ["sh", "-c", "echo bad input >&2; exit 3"]
    outputs = { X = "${var.data}/x.txt" }
  }
}

node "after" {
  command "cat" {
    argv   = ["cat", "{IN_X}"]
    inputs = { X = "${var.data}/x.txt" }
    stdout = "${var.data}/y.txt"
  }
}
`)
	a, _ := SetupAppTest(t, Config{PipelinePaths: []string{pipelineDir}}, hcl.NewLoader())

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Succeeded)

	summary := FailureSummary(res)
	assert.Contains(t, summary, "1 node(s) failed:")
	assert.Contains(t, summary, "  - broken: ")
	assert.Contains(t, summary, "      bad input")
	assert.Contains(t, summary, "1 node(s) skipped:\n  - after")
}

func TestRun_DryRun(t *testing.T) {
	pipelineDir, dataDir := writePipeline(t, twoStepPipeline)
	a, _ := SetupAppTest(t, Config{PipelinePaths: []string{pipelineDir}, DryRun: true}, hcl.NewLoader())
	out := &bytesWriter{}
	a.outW = out

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Contains(t, out.String(), "[run] produce\n")
	assert.Contains(t, out.String(), "[run] Upper-case a.txt <- produce\n")
	assert.NoFileExists(t, filepath.Join(dataDir, "a.txt"))
}

func TestRun_LoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.hcl"), []byte(`node "x" {`), 0o644))
	a, _ := SetupAppTest(t, Config{PipelinePaths: []string{dir}}, hcl.NewLoader())

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load pipeline")
}

func TestHealthMux(t *testing.T) {
	pipelineDir, _ := writePipeline(t, twoStepPipeline)
	a, _ := SetupAppTest(t, Config{PipelinePaths: []string{pipelineDir}}, hcl.NewLoader())
	_, err := a.Run(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(a.healthMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := &bytesWriter{}
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `nodepipe_node_transitions_total{state="done"} 2`)
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"no paths", Config{WorkerCount: 1}, "pipeline path"},
		{"no workers", Config{PipelinePaths: []string{"."}}, "worker count"},
		{"bad level", Config{PipelinePaths: []string{"."}, WorkerCount: 1, LogLevel: "trace"}, "invalid log level"},
		{"bad format", Config{PipelinePaths: []string{"."}, WorkerCount: 1, LogFormat: "xml"}, "invalid log format"},
		{"bad port", Config{PipelinePaths: []string{"."}, WorkerCount: 1, HealthcheckPort: 70000}, "healthcheck port"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	cfg, err := NewConfig(Config{PipelinePaths: []string{"."}, WorkerCount: 1})
	require.NoError(t, err)
	assert.Equal(t, os.TempDir(), cfg.TempRoot)
	assert.Equal(t, "warn", cfg.LogFileLevel)
	assert.Equal(t, "/", cfg.NotifyNamespace)
}
