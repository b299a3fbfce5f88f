package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodycomp/pkg/config"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigResetAndLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bodycomp.yaml")

	out, err := runCLI(t, "--config", path, "config", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	out, err = runCLI(t, "--config", path, "config", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "minSlices: 300")
	assert.Contains(t, out, "resultsDir: results")
}

func TestConfigLsWithoutFileShowsDefaults(t *testing.T) {
	out, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "config", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "batchSize: 1")
}

func TestConfigSaveNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bodycomp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  storageDir: /opt/models\n"), 0o644))

	_, err := runCLI(t, "--config", path, "config", "save")
	require.NoError(t, err)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/models", cfg.Models.StorageDir)
	assert.Equal(t, 1, cfg.Processing.BatchSize)
}

func TestProcessRequiresStorageDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bodycomp.yaml")
	require.NoError(t, config.CreateDefaultConfigFile(path))

	_, err := runCLI(t, "--config", path, "process_3d", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models.storageDir")
}

func TestProcessZeroScansExitsClean(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bodycomp.yaml")

	cfg := config.DefaultConfig()
	cfg.Models.StorageDir = dir
	cfg.Inference.Command3D = "spine-worker"
	cfg.Output.ResultsDir = filepath.Join(dir, "results")
	require.NoError(t, config.SaveConfig(cfg, path))

	_, err := runCLI(t, "--config", path, "process_3d", t.TempDir())
	assert.NoError(t, err)
}

func TestProcess2DRequiresCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bodycomp.yaml")

	cfg := config.DefaultConfig()
	cfg.Models.StorageDir = dir
	cfg.Inference.Command3D = "spine-worker"
	require.NoError(t, config.SaveConfig(cfg, path))

	_, err := runCLI(t, "--config", path, "process_2d", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command2d")
}

func TestSummarizeEmptyResultsDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bodycomp.yaml")
	require.NoError(t, config.CreateDefaultConfigFile(path))

	results := filepath.Join(dir, "results")
	require.NoError(t, os.MkdirAll(results, 0o755))

	_, err := runCLI(t, "--config", path, "summarize", results)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(results, "manifest.csv"))
}
