package synth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoepmann/torsynth/synth/fit"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scale.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoadScaleSpec verifies a full spec loads and converts to the
// pipeline configuration.
func TestLoadScaleSpec(t *testing.T) {
	path := writeSpec(t, `
seed: 1234
quantities: [population, bandwidth, flags]
methods:
  population: linear
  bandwidth: powerlaw
workers: 4
targets:
  - population: 20000
    recompute_weights: true
  - date: "2027-06-01"
    exit_factor: 1.5
`)

	spec, err := LoadScaleSpec(path)
	require.NoError(t, err)

	cfg := spec.PipelineConfig()
	assert.Equal(t, int64(1234), cfg.Seed)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []fit.Quantity{fit.QuantityPopulation, fit.QuantityBandwidth, fit.QuantityFlags}, cfg.Fit.Quantities)
	assert.Equal(t, fit.MethodPowerLaw, cfg.Fit.Methods[fit.QuantityBandwidth])

	targets := spec.TargetList()
	require.Len(t, targets, 2)
	assert.Equal(t, 20000, targets[0].Population)
	assert.True(t, targets[0].RecomputeWeights)
	assert.Equal(t, 2027, targets[1].Date.Year())
	assert.Equal(t, 1.5, targets[1].ExitFactor)
}

// TestLoadScaleSpec_Defaults verifies a minimal spec is accepted.
func TestLoadScaleSpec_Defaults(t *testing.T) {
	spec, err := LoadScaleSpec(writeSpec(t, "targets:\n  - population: 100\n"))
	require.NoError(t, err)

	cfg := spec.PipelineConfig()
	assert.Empty(t, cfg.Fit.Quantities)
	assert.Zero(t, cfg.Seed)
	targets := spec.TargetList()
	require.Len(t, targets, 1)
	assert.Equal(t, 100, targets[0].Population)
}

// TestLoadScaleSpec_Invalid verifies validation failures.
func TestLoadScaleSpec_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "no targets",
			content: "seed: 1\n",
			wantMsg: "no targets",
		},
		{
			name:    "unknown quantity",
			content: "quantities: [velocity]\ntargets:\n  - population: 10\n",
			wantMsg: "unknown quantity",
		},
		{
			name:    "unknown method",
			content: "methods:\n  population: spline\ntargets:\n  - population: 10\n",
			wantMsg: "unknown fit method",
		},
		{
			name:    "target without size or date",
			content: "targets:\n  - exit_factor: 2\n",
			wantMsg: "needs population or date",
		},
		{
			name:    "target with both",
			content: "targets:\n  - population: 10\n    date: \"2027-01-01\"\n",
			wantMsg: "mutually exclusive",
		},
		{
			name:    "bad date",
			content: "targets:\n  - date: \"June 1st\"\n",
			wantMsg: "invalid date",
		},
		{
			name:    "negative factor",
			content: "targets:\n  - population: 10\n    guard_factor: -1\n",
			wantMsg: "cannot be negative",
		},
		{
			name:    "not yaml",
			content: "{{{",
			wantMsg: "parse scale spec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScaleSpec(writeSpec(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// TestLoadScaleSpec_MissingFile verifies the read error is surfaced.
func TestLoadScaleSpec_MissingFile(t *testing.T) {
	_, err := LoadScaleSpec(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scale spec")
}
