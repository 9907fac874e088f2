package atomiccmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func piped(t *testing.T, script string, kwargs map[string]any) *Command {
	t.Helper()
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return shell(t, script, kwargs)
}

func TestParallelSet_Pipe(t *testing.T) {
	out := filepath.Join(t.TempDir(), "upper.txt")
	a := piped(t, "echo hello", map[string]any{RoleStdout: Pipe})
	b := piped(t, "tr a-z A-Z", map[string]any{RoleStdin: Pipe, RoleStdout: out})

	set, err := NewParallelSet(a, b)
	require.NoError(t, err)
	require.NoError(t, set.Execute(context.Background(), t.TempDir()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "HELLO\n", string(data))
	assert.Equal(t, []string{out}, set.OutputFiles())
}

func TestParallelSet_DownstreamFailureFailsSet(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	a := piped(t, "echo hello", map[string]any{RoleStdout: Pipe})
	b := piped(t, "cat > {OUT_X}; exit 2", map[string]any{RoleStdin: Pipe, "OUT_X": out})

	set, err := NewParallelSet(a, b)
	require.NoError(t, err)

	err = set.Execute(context.Background(), t.TempDir())
	execErr := requireExecError(t, err)
	assert.Equal(t, KindExecution, execErr.Kind)
	require.Len(t, execErr.Statuses, 2)
	assert.True(t, execErr.Statuses[0].Success(), "upstream exited 0")
	assert.Equal(t, 2, execErr.Statuses[1].ExitCode)
	assert.NoFileExists(t, out)
}

func TestParallelSet_NoBrokenPipeForgiveness(t *testing.T) {
	out := filepath.Join(t.TempDir(), "first.txt")
	a := piped(t, "yes", map[string]any{RoleStdout: Pipe})
	b := piped(t, "head -n 1", map[string]any{RoleStdin: Pipe, RoleStdout: out})

	set, err := NewParallelSet(a, b)
	require.NoError(t, err)

	err = set.Execute(context.Background(), t.TempDir())
	execErr := requireExecError(t, err)
	assert.False(t, execErr.Statuses[0].Success(), "upstream is killed by SIGPIPE")
	assert.True(t, execErr.Statuses[1].Success())
	assert.NoFileExists(t, out)
}

func TestParallelSet_IndependentMembers(t *testing.T) {
	dir := t.TempDir()
	outA := filepath.Join(dir, "a.txt")
	outB := filepath.Join(dir, "b.txt")
	a := piped(t, "echo a > {OUT_A}", map[string]any{"OUT_A": outA})
	b := piped(t, "echo b > {OUT_B}", map[string]any{"OUT_B": outB})

	set, err := NewParallelSet(a, b)
	require.NoError(t, err)
	require.NoError(t, set.Execute(context.Background(), t.TempDir()))
	assert.FileExists(t, outA)
	assert.FileExists(t, outB)
	assert.Contains(t, set.String(), " & ")
}

func TestParallelSet_UpstreamReference(t *testing.T) {
	out := filepath.Join(t.TempDir(), "count.txt")
	upBuilder := NewBuilder("printf", "a\\nb\\n")
	upBuilder.SetKwargs(map[string]any{RoleStdout: Pipe})
	up, err := upBuilder.Finalize()
	require.NoError(t, err)

	downBuilder := NewBuilder("wc", "-l")
	downBuilder.SetKwargs(map[string]any{RoleStdin: upBuilder, RoleStdout: out})
	down, err := downBuilder.Finalize()
	require.NoError(t, err)

	// Order inside the set does not matter for explicit references.
	set, err := NewParallelSet(down, up)
	require.NoError(t, err)
	require.NoError(t, set.Execute(context.Background(), t.TempDir()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2")
}

func TestParallelSet_Validation(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := NewParallelSet()
		assert.ErrorIs(t, err, ErrEmptySet)
	})

	t.Run("pipe without consumer", func(t *testing.T) {
		a := piped(t, "echo x", map[string]any{RoleStdout: Pipe})
		_, err := NewParallelSet(a)
		assert.ErrorIs(t, err, ErrInvalidPipe)
	})

	t.Run("first member reads pipe", func(t *testing.T) {
		a := piped(t, "cat", map[string]any{RoleStdin: Pipe})
		_, err := NewParallelSet(a)
		assert.ErrorIs(t, err, ErrInvalidPipe)
	})

	t.Run("previous member does not pipe", func(t *testing.T) {
		a := piped(t, "echo x", nil)
		b := piped(t, "cat", map[string]any{RoleStdin: Pipe})
		_, err := NewParallelSet(a, b)
		assert.ErrorIs(t, err, ErrInvalidPipe)
	})

	t.Run("upstream outside set", func(t *testing.T) {
		up := piped(t, "echo x", map[string]any{RoleStdout: Pipe})
		down := piped(t, "cat", map[string]any{RoleStdin: up})
		other := piped(t, "echo y", map[string]any{RoleStdout: Pipe})
		_, err := NewParallelSet(other, down)
		assert.ErrorIs(t, err, ErrInvalidPipe)
	})

	t.Run("duplicate member", func(t *testing.T) {
		a := piped(t, "true", nil)
		_, err := NewParallelSet(a, a)
		assert.ErrorIs(t, err, ErrInvalidBinding)
	})

	t.Run("outputs clash across members", func(t *testing.T) {
		dir := t.TempDir()
		a := piped(t, "true", map[string]any{"OUT_A": filepath.Join(dir, "x", "same.txt")})
		b := piped(t, "true", map[string]any{"OUT_B": filepath.Join(dir, "y", "same.txt")})
		_, err := NewParallelSet(a, b)
		assert.ErrorIs(t, err, ErrDuplicateOutput)
	})
}

func TestSets_StagedNameClashes(t *testing.T) {
	dir := t.TempDir()

	t.Run("output of one member named like the capture of another", func(t *testing.T) {
		a := piped(t, "echo noise", nil)
		b := piped(t, "echo real > {OUT_R}", map[string]any{
			"OUT_R":    filepath.Join(dir, "sh_0.stdout"),
			RoleStdout: filepath.Join(dir, "b.out"),
		})
		_, err := NewParallelSet(b, a)
		assert.NoError(t, err, "capture names follow member positions")
		_, err = NewParallelSet(a, b)
		assert.ErrorIs(t, err, ErrDuplicateOutput)
		_, err = NewSequentialSet(a, b)
		assert.ErrorIs(t, err, ErrDuplicateOutput)
	})

	t.Run("scratch of one member named like the output of another", func(t *testing.T) {
		a := piped(t, "echo scratch > {TEMP_OUT_S}", map[string]any{"TEMP_OUT_S": "result.txt"})
		b := piped(t, "echo final > {OUT_R}", map[string]any{"OUT_R": filepath.Join(dir, "result.txt")})
		_, err := NewSequentialSet(a, b)
		assert.ErrorIs(t, err, ErrDuplicateOutput)
	})

	t.Run("members may share scratch names", func(t *testing.T) {
		a := piped(t, "echo x > {TEMP_OUT_S}", map[string]any{"TEMP_OUT_S": "shared.txt"})
		b := piped(t, "cat {TEMP_OUT_S}", map[string]any{"TEMP_OUT_S": "shared.txt"})
		_, err := NewSequentialSet(a, b)
		assert.NoError(t, err)
	})
}

func TestSequentialSet(t *testing.T) {
	t.Run("members share scratch files", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "final.txt")
		a := piped(t, "echo step1 > {TEMP_OUT_S}", map[string]any{"TEMP_OUT_S": "scratch.txt"})
		b := piped(t, "cat {TEMP_DIR}/scratch.txt > {OUT_F}; echo step2 >> {OUT_F}", map[string]any{"OUT_F": out})

		set, err := NewSequentialSet(a, b)
		require.NoError(t, err)
		require.NoError(t, set.Execute(context.Background(), t.TempDir()))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "step1\nstep2\n", string(data))
		assert.Contains(t, set.String(), " && ")
	})

	t.Run("stops at first failure", func(t *testing.T) {
		dir := t.TempDir()
		outA := filepath.Join(dir, "a.txt")
		marker := filepath.Join(dir, "third-ran")
		a := piped(t, "echo a > {OUT_A}", map[string]any{"OUT_A": outA})
		b := piped(t, "exit 4", nil)
		c := piped(t, "touch "+marker, nil)

		set, err := NewSequentialSet(a, b, c)
		require.NoError(t, err)

		err = set.Execute(context.Background(), t.TempDir())
		execErr := requireExecError(t, err)
		require.Len(t, execErr.Statuses, 3)
		assert.True(t, execErr.Statuses[0].Success())
		assert.Equal(t, 4, execErr.Statuses[1].ExitCode)
		assert.True(t, execErr.Statuses[2].NotRun)
		assert.NoFileExists(t, marker)
		assert.NoFileExists(t, outA, "outputs of earlier members are not committed")
	})

	t.Run("rejects pipes", func(t *testing.T) {
		a := piped(t, "echo x", map[string]any{RoleStdout: Pipe})
		b := piped(t, "cat", map[string]any{RoleStdin: Pipe})
		_, err := NewSequentialSet(a, b)
		assert.ErrorIs(t, err, ErrInvalidPipe)
	})
}
