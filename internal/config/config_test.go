package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenAbsent(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"make", "repro"}, cfg.Execution.ReproCommand)
	assert.Equal(t, 1, cfg.Execution.Parallelism)
	assert.True(t, cfg.Execution.KeepStash)
	assert.Equal(t, []string{"gogit", "cli"}, cfg.Git.Backends)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".braid"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".braid", "config.json"),
		[]byte(`{"execution": {"repro_command": ["python", "train.py"], "parallelism": 4, "keep_stash": false}}`),
		0o644,
	))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "train.py"}, cfg.Execution.ReproCommand)
	assert.Equal(t, 4, cfg.Execution.Parallelism)
	assert.False(t, cfg.Execution.KeepStash)
	// Unset sections keep their defaults.
	assert.Equal(t, "braid.lock", cfg.Execution.LockFile)
}

func TestLoadRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".braid"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".braid", "config.json"), []byte("{nope"), 0o644,
	))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRAID_PARALLELISM", "8")
	t.Setenv("BRAID_REPRO_COMMAND", "make train")
	t.Setenv("BRAID_GIT_BACKENDS", "cli")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Execution.Parallelism)
	assert.Equal(t, []string{"make", "train"}, cfg.Execution.ReproCommand)
	assert.Equal(t, []string{"cli"}, cfg.Git.Backends)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Execution.Parallelism = 0
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Execution.ReproCommand = nil
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Git.Backends = []string{"gogit", "svn"}
	assert.Error(t, cfg.validate())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Execution.Parallelism = 3
	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Execution.Parallelism)
}
