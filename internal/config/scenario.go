package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"iaicore/internal/errors"
)

// Scenario is a declarative run description loaded from YAML: how many
// generations to govern, which hypotheses enter the lifecycle at the start,
// and the bootstrap invariant thresholds. Environment config covers the
// engine's operational knobs; the scenario covers one run's subject matter.
type Scenario struct {
	Name        string `yaml:"name"`
	Generations int    `yaml:"generations"`
	Strictness  string `yaml:"strictness"`
	Seed        int64  `yaml:"seed"`

	PrimaryMetric string             `yaml:"primary_metric"`
	Thresholds    map[string]float64 `yaml:"thresholds"`

	Dataset    ScenarioDataset      `yaml:"dataset"`
	Optimizer  ScenarioOptimizer    `yaml:"optimizer"`
	Hypotheses []ScenarioHypothesis `yaml:"hypotheses"`
}

// ScenarioDataset selects the outcome data source: a file path served by
// the Excel/CSV provider, or a synthetic sample.
type ScenarioDataset struct {
	Path    string  `yaml:"path"`
	Records int     `yaml:"records"`
	Mean    float64 `yaml:"mean"`
	Noise   float64 `yaml:"noise"`
}

// ScenarioOptimizer configures the synthetic bandit collaborator.
type ScenarioOptimizer struct {
	Steps     int     `yaml:"steps"`
	ShiftStep int     `yaml:"shift_step"`
	Epsilon   float64 `yaml:"epsilon"`
}

// ScenarioHypothesis seeds one hypothesis into the registry at INIT.
type ScenarioHypothesis struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Params      map[string]float64 `yaml:"params"`
}

// DefaultScenario is the built-in demo: a bandit with a mid-run regime
// shift governed for five generations.
func DefaultScenario() Scenario {
	return Scenario{
		Name:          "bandit-demo",
		Generations:   5,
		Strictness:    "balanced",
		Seed:          42,
		PrimaryMetric: "mean_payoff",
		Thresholds: map[string]float64{
			"min_edge":            0.0,
			"min_sample":          30,
			"min_stability":       0.60,
			"max_param_delta_pct": 20,
		},
		Dataset:   ScenarioDataset{Records: 500, Mean: 0.05, Noise: 0.1},
		Optimizer: ScenarioOptimizer{Steps: 500, ShiftStep: 250, Epsilon: 0.1},
		Hypotheses: []ScenarioHypothesis{{
			Name:        "edge-filter",
			Description: "positive expectation above the odds floor",
			Params:      map[string]float64{"odds_min": 1.5},
		}},
	}
}

// LoadScenario reads a YAML scenario file over the defaults.
func LoadScenario(path string) (Scenario, error) {
	s := DefaultScenario()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, errors.WrapCode(err, errors.CodeConfigInvalid, "read scenario file")
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, errors.WrapCode(err, errors.CodeConfigInvalid, "parse scenario file")
	}
	if s.Generations < 1 {
		return Scenario{}, errors.ConfigInvalid("scenario generations must be at least 1")
	}
	switch s.Strictness {
	case "strict", "balanced", "permissive":
	default:
		return Scenario{}, errors.ConfigInvalid("scenario strictness must be strict, balanced, or permissive")
	}
	return s, nil
}
