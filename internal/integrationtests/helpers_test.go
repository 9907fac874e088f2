package integrationtests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/nodepipe/internal/app"
	"github.com/vk/nodepipe/internal/hcl"
	"github.com/vk/nodepipe/internal/scheduler"
	"github.com/vk/nodepipe/internal/testutil"
)

// runPipeline writes pipelineHCL to a fresh directory, exposing the data
// directory as var.data, and runs it through the full application.
func runPipeline(t *testing.T, cfg app.Config, pipelineHCL string) (res *scheduler.Result, dataDir string, logs *testutil.SafeBuffer, err error) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	content := fmt.Sprintf("variables {\n  data = %q\n}\n%s", dataDir, pipelineHCL)
	pipelinePath := filepath.Join(dir, "pipeline", "main.hcl")
	testutil.WriteFiles(t, filepath.Dir(pipelinePath), map[string]string{"main.hcl": content})

	cfg.PipelinePaths = []string{filepath.Dir(pipelinePath)}
	testApp, logs := app.SetupAppTest(t, cfg, hcl.NewLoader())
	res, err = testApp.Run(context.Background())
	return res, dataDir, logs, err
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
