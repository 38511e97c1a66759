package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenarioDefaults(t *testing.T) {
	s, err := LoadScenario("")
	require.NoError(t, err)

	assert.Equal(t, "bandit-demo", s.Name)
	assert.Equal(t, 5, s.Generations)
	assert.Equal(t, "balanced", s.Strictness)
	assert.Equal(t, "mean_payoff", s.PrimaryMetric)
	assert.InDelta(t, 0.60, s.Thresholds["min_stability"], 1e-9)
	require.Len(t, s.Hypotheses, 1)
	assert.Equal(t, "edge-filter", s.Hypotheses[0].Name)
}

func TestLoadScenarioOverlaysFile(t *testing.T) {
	path := writeScenario(t, `
name: odds-sweep
generations: 12
strictness: strict
seed: 7
thresholds:
  min_edge: 0.02
dataset:
  path: data/outcomes.csv
hypotheses:
  - name: tight-filter
    description: higher odds floor
    params:
      odds_min: 2.0
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "odds-sweep", s.Name)
	assert.Equal(t, 12, s.Generations)
	assert.Equal(t, "strict", s.Strictness)
	assert.Equal(t, int64(7), s.Seed)
	assert.InDelta(t, 0.02, s.Thresholds["min_edge"], 1e-9)
	assert.Equal(t, "data/outcomes.csv", s.Dataset.Path)
	require.Len(t, s.Hypotheses, 1)
	assert.InDelta(t, 2.0, s.Hypotheses[0].Params["odds_min"], 1e-9)

	// Untouched sections keep their defaults.
	assert.Equal(t, "mean_payoff", s.PrimaryMetric)
	assert.Equal(t, 500, s.Optimizer.Steps)
}

func TestLoadScenarioRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "generations: [not a number", "parse scenario"},
		{"zero generations", "generations: 0", "at least 1"},
		{"unknown strictness", "strictness: yolo", "strictness"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read scenario")
	})
}
