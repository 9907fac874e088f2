package integrationtests

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodepipe/internal/app"
	"github.com/vk/nodepipe/internal/testutil"
)

// Test for: piped commands of a parallel node stream into each other.
func TestCommands_PipedParallelNode(t *testing.T) {
	pipelineHCL := `
node "input" {
  command "printf" {
    argv   = ["printf", "b\\na\\nb\\n"]
    stdout = "${var.data}/words.txt"
  }
}
node "uniq" {
  mode = "parallel"
  command "sort" {
    argv   = ["sort", "{IN_WORDS}"]
    inputs = { WORDS = "${var.data}/words.txt" }
    stdout = "pipe"
  }
  command "uniq" {
    stdin  = "pipe"
    stdout = "${var.data}/unique.txt"
    shell  = "uniq"
    option "-c" {}
  }
}
`
	res, dataDir, logs, err := runPipeline(t, app.Config{}, pipelineHCL)
	require.NoError(t, err)
	require.True(t, res.Succeeded, logs.String())
	assert.Regexp(t, `^\s*1 a\n\s*2 b\n$`, readFile(t, filepath.Join(dataDir, "unique.txt")))
}

// Test for: sequential commands share scratch files in the working directory
// and only declared outputs are moved into place.
func TestCommands_SequentialScratchHandoff(t *testing.T) {
	pipelineHCL := `
node "two_steps" {
  mode = "sequential"
  command "write" {
    shell        = "sh -c 'echo scratch > {TEMP_OUT_TMP}'"
    temp_outputs = { TMP = "part.txt" }
  }
  command "finish" {
    shell        = "sh -c 'tr a-z A-Z < {TEMP_OUT_TMP} > {OUT_FINAL}'"
    temp_outputs = { TMP = "part.txt" }
    outputs      = { FINAL = "${var.data}/final.txt" }
  }
}
`
	res, dataDir, logs, err := runPipeline(t, app.Config{}, pipelineHCL)
	require.NoError(t, err)
	require.True(t, res.Succeeded, logs.String())
	assert.Equal(t, "SCRATCH\n", readFile(t, filepath.Join(dataDir, "final.txt")))
	assert.NoFileExists(t, filepath.Join(dataDir, "part.txt"))
}

// Test for: option blocks and the options override map shape argv.
func TestCommands_Options(t *testing.T) {
	pipelineHCL := `
node "echo" {
  command "echo" {
    argv    = ["echo"]
    stdout  = "${var.data}/argv.txt"
    option "--first" { value = 1 }
    option "--list" { value = ["a", "b"] }
    option "--dropped" { value = false }
    options = { "--first" = 2, "--extra" = true }
  }
}
`
	res, dataDir, logs, err := runPipeline(t, app.Config{}, pipelineHCL)
	require.NoError(t, err)
	require.True(t, res.Succeeded, logs.String())
	assert.Equal(t, "--first 2 --list a --list b --extra\n", readFile(t, filepath.Join(dataDir, "argv.txt")))
}

// Test for: index blocks run the built-in indexers, and two blocks for the
// same file share one indexing run.
func TestCommands_IndexBlocks(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "bin")
	testutil.WriteScript(t, bin, "samtools", `echo run >> "$(dirname "$2")/samtools.calls"; printf bai > "$3"`)
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	pipelineHCL := `
node "bam" {
  command "printf" {
    argv   = ["printf", "bam"]
    stdout = "${var.data}/s.bam"
  }
}
index "bai" {
  kind  = "bam"
  input = "${var.data}/s.bam"
}
index "bai_for_calling" {
  kind       = "bam"
  input      = "${var.data}/s.bam"
  depends_on = ["bam"]
}
node "use" {
  depends_on = ["bai_for_calling"]
  command "cat" {
    argv   = ["cat", "{IN_BAI}"]
    inputs = { BAI = "${var.data}/s.bam.bai" }
    stdout = "${var.data}/used.txt"
  }
}
`
	res, dataDir, logs, err := runPipeline(t, app.Config{}, pipelineHCL)
	require.NoError(t, err)
	require.True(t, res.Succeeded, logs.String())
	assert.Equal(t, "bai", readFile(t, filepath.Join(dataDir, "used.txt")))
	assert.Equal(t, "run\n", readFile(t, filepath.Join(dataDir, "samtools.calls")))
}
