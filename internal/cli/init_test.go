package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbook/internal/log"
)

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("WATCHBOOK_CLI_TEST=loaded\n"), 0o644))
	t.Setenv("WATCHBOOK_CLI_TEST", "")
	os.Unsetenv("WATCHBOOK_CLI_TEST")

	LoadEnvFile(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "loaded", os.Getenv("WATCHBOOK_CLI_TEST"))
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "nope")
	_, err := LoadAndValidateConfig(log.Nop())
	require.Error(t, err)

	t.Setenv("STORAGE_BACKEND", "memory")
	cfg, err := LoadAndValidateConfig(log.Nop())
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageBackend)
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext(context.Background(), log.Nop())
	cancel()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
