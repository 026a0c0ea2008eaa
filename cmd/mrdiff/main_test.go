package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/internal/config"
	"github.com/born-ml/mrdiff/internal/loader"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mrdiff "+version)
}

func TestGenerate_Prior(t *testing.T) {
	dir := t.TempDir()
	outdir := filepath.Join(dir, "out")
	cfg := writeFile(t, dir, "run.yaml", `
seeds: "0-2"
batch: 2
workers: 2
resolution: 4
edm:
  num_steps: 2
output:
  png: true
  tensors: true
  dtype: F64
metrics:
  textfile: `+filepath.Join(dir, "mrdiff.prom")+`
`)
	_, err := execute(t, "generate", "-c", cfg, "--outdir", outdir)
	require.NoError(t, err)

	for _, name := range []string{"000000.png", "000001.png", "000002.png", "000002.safetensors"} {
		assert.FileExists(t, filepath.Join(outdir, name))
	}
	prom, err := os.ReadFile(filepath.Join(dir, "mrdiff.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "mrdiff_images_written_total 3")
	assert.Contains(t, string(prom), `mrdiff_sampling_runs_total{result="ok",sampler="edm"} 2`)
}

func TestSimulateThenReconstruct(t *testing.T) {
	dir := t.TempDir()
	scan := filepath.Join(dir, "scan.safetensors")
	_, err := execute(t, "simulate", "-o", scan, "--size", "8", "--coils", "2", "--frames", "3", "--rank", "2", "--seed", "4")
	require.NoError(t, err)

	m, err := loader.LoadMeasurement(scan)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Frames())
	assert.Equal(t, 2, m.MaxRank())

	outdir := filepath.Join(dir, "out")
	_, err = execute(t, "generate",
		"--measurement", scan, "--seeds", "7", "--steps", "3", "--outdir", outdir, "--log-level", "debug")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outdir, "000007.png"))
}

func TestGenerate_InvalidConfig(t *testing.T) {
	_, err := execute(t, "generate", "--sampler", "ddim", "--outdir", t.TempDir())
	require.ErrorIs(t, err, config.ErrInvalid)

	_, err = execute(t, "generate", "--seeds", "3-1", "--outdir", t.TempDir())
	require.Error(t, err)
}

func TestSimulate_RequiresOut(t *testing.T) {
	_, err := execute(t, "simulate")
	require.Error(t, err)
}
