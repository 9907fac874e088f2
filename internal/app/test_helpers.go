package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/nodepipe/internal/config"
	"github.com/vk/nodepipe/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. The temp root
// defaults to a per-test directory and logs are captured at debug level.
func SetupAppTest(t *testing.T, cfg Config, loader config.Loader) (*App, *testutil.SafeBuffer) {
	t.Helper()

	if cfg.TempRoot == "" {
		cfg.TempRoot = t.TempDir()
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 2
	}
	cfg.LogLevel = "debug"
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(logBuffer, appConfig, loader)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("NODEPIPE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
