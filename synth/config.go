package synth

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cdoepmann/torsynth/synth/fit"
)

// ScaleSpec is the YAML configuration surface of a scaling run: which
// quantities to model, the per-quantity extrapolation method, the
// random seed, and the requested targets.
type ScaleSpec struct {
	Seed       int64             `yaml:"seed"`
	Quantities []string          `yaml:"quantities,omitempty"` // subset of population, bandwidth, flags, families, as
	Methods    map[string]string `yaml:"methods,omitempty"`    // quantity -> linear | powerlaw | constant
	Workers    int               `yaml:"workers,omitempty"`
	Targets    []TargetSpec      `yaml:"targets"`
}

// TargetSpec is one requested synthetic scale in a ScaleSpec.
type TargetSpec struct {
	Population       int     `yaml:"population,omitempty"`
	Date             string  `yaml:"date,omitempty"` // YYYY-MM-DD
	ExitFactor       float64 `yaml:"exit_factor,omitempty"`
	GuardFactor      float64 `yaml:"guard_factor,omitempty"`
	RecomputeWeights bool    `yaml:"recompute_weights,omitempty"`
}

// LoadScaleSpec reads and validates a ScaleSpec YAML file.
func LoadScaleSpec(path string) (*ScaleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scale spec: %w", err)
	}
	var spec ScaleSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse scale spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the enumerated fields and target definitions.
func (s *ScaleSpec) Validate() error {
	for _, q := range s.Quantities {
		if _, err := fit.ParseQuantity(q); err != nil {
			return err
		}
	}
	for q, m := range s.Methods {
		if _, err := fit.ParseQuantity(q); err != nil {
			return err
		}
		if _, err := fit.ParseMethod(m); err != nil {
			return fmt.Errorf("quantity %s: %w", q, err)
		}
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("scale spec has no targets")
	}
	for i, t := range s.Targets {
		if t.Population < 0 {
			return fmt.Errorf("target %d: negative population %d", i, t.Population)
		}
		if t.Population == 0 && t.Date == "" {
			return fmt.Errorf("target %d: needs population or date", i)
		}
		if t.Population > 0 && t.Date != "" {
			return fmt.Errorf("target %d: population and date are mutually exclusive", i)
		}
		if t.Date != "" {
			if _, err := time.Parse("2006-01-02", t.Date); err != nil {
				return fmt.Errorf("target %d: invalid date %q", i, t.Date)
			}
		}
		if t.ExitFactor < 0 || t.GuardFactor < 0 {
			return fmt.Errorf("target %d: exit/guard factors cannot be negative", i)
		}
	}
	return nil
}

// PipelineConfig converts the spec to the pipeline's configuration.
func (s *ScaleSpec) PipelineConfig() PipelineConfig {
	cfg := PipelineConfig{
		Seed:    s.Seed,
		Workers: s.Workers,
		Fit:     fit.Config{Methods: make(map[fit.Quantity]fit.Method, len(s.Methods))},
	}
	for _, q := range s.Quantities {
		cfg.Fit.Quantities = append(cfg.Fit.Quantities, fit.Quantity(q))
	}
	for q, m := range s.Methods {
		cfg.Fit.Methods[fit.Quantity(q)] = fit.Method(m)
	}
	return cfg
}

// TargetList converts the spec's targets. Call Validate first.
func (s *ScaleSpec) TargetList() []Target {
	targets := make([]Target, len(s.Targets))
	for i, t := range s.Targets {
		targets[i] = Target{
			Population:       t.Population,
			ExitFactor:       t.ExitFactor,
			GuardFactor:      t.GuardFactor,
			RecomputeWeights: t.RecomputeWeights,
		}
		if t.Date != "" {
			date, _ := time.Parse("2006-01-02", t.Date)
			targets[i].Date = date
		}
	}
	return targets
}
