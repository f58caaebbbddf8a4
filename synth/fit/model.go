package fit

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdoepmann/torsynth/consensus"
	"github.com/cdoepmann/torsynth/synth/feature"
)

// Quantity names a modeled aspect of network growth.
type Quantity string

const (
	QuantityPopulation Quantity = "population"
	QuantityBandwidth  Quantity = "bandwidth"
	QuantityFlags      Quantity = "flags"
	QuantityFamilies   Quantity = "families"
	QuantityAS         Quantity = "as"
)

// AllQuantities lists every modelable quantity.
var AllQuantities = []Quantity{
	QuantityPopulation, QuantityBandwidth, QuantityFlags, QuantityFamilies, QuantityAS,
}

// ParseQuantity validates an enumerated quantity name.
func ParseQuantity(s string) (Quantity, error) {
	for _, q := range AllQuantities {
		if Quantity(s) == q {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown quantity %q", s)
}

// Config selects which quantities are fitted against the history and
// with which regression method. Quantities left out are carried forward
// from the most recent observation as constant curves.
type Config struct {
	// Quantities to model; empty means all.
	Quantities []Quantity
	// Methods maps a quantity to its regression method; unlisted
	// quantities default to linear.
	Methods map[Quantity]Method
}

func (c Config) models(q Quantity) bool {
	if len(c.Quantities) == 0 {
		return true
	}
	for _, have := range c.Quantities {
		if have == q {
			return true
		}
	}
	return false
}

func (c Config) method(q Quantity) Method {
	if m, ok := c.Methods[q]; ok {
		return m
	}
	return MethodLinear
}

// Validate checks the enumerated fields.
func (c Config) Validate() error {
	for _, q := range c.Quantities {
		if _, err := ParseQuantity(string(q)); err != nil {
			return err
		}
	}
	for q, m := range c.Methods {
		if _, err := ParseQuantity(string(q)); err != nil {
			return err
		}
		if _, err := ParseMethod(string(m)); err != nil {
			return err
		}
	}
	return nil
}

// Point is one historical observation: a scale marker (hours since the
// first observation, or an explicit size) and the features extracted
// from the consensus at that scale.
type Point struct {
	Scale    float64
	Features *feature.FeatureSet
}

// GrowthModel holds one fitted extrapolation curve per tracked quantity.
// Population is a function of the scale marker; every other quantity is
// a function of population size. The model is built once per pipeline
// run and safe for concurrent read-only use.
type GrowthModel struct {
	// TimeOrigin anchors scale value 0 (the first observation).
	TimeOrigin time.Time

	// Latest is the most recent historical FeatureSet, the source of all
	// carry-forward values (params, weights, AS distribution).
	Latest *feature.FeatureSet

	Population         *Curve
	AggregateBandwidth *Curve
	FlagPrevalence     map[consensus.Flag]*Curve

	// FamilySizes lists the observed family cardinalities in ascending
	// order; FamilySizeFreq gives each one a relative-frequency curve.
	FamilySizes    []int
	FamilySizeFreq map[int]*Curve

	// BandwidthQuantiles has one curve per normalized quantile of the
	// per-router bandwidth distribution.
	BandwidthQuantiles []*Curve

	// ModelAS records whether AS membership is part of the model.
	ModelAS bool
}

// Fit builds a GrowthModel from an ordered history of observations.
// It requires at least two distinct scale values and is deterministic
// given identical input ordering.
func Fit(points []Point, cfg Config) (*GrowthModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	distinct := countDistinctScales(points)
	if distinct < 2 {
		return nil, &InsufficientDataError{Distinct: distinct}
	}

	latest := points[len(points)-1].Features
	model := &GrowthModel{
		TimeOrigin:     points[0].Features.ValidAfter,
		Latest:         latest,
		FlagPrevalence: make(map[consensus.Flag]*Curve, len(consensus.KnownFlags)),
		FamilySizeFreq: make(map[int]*Curve),
		ModelAS:        cfg.models(QuantityAS),
	}

	scales := make([]float64, len(points))
	populations := make([]float64, len(points))
	for i, p := range points {
		scales[i] = p.Scale
		populations[i] = float64(p.Features.Routers)
	}

	var err error
	if model.Population, err = fitOrFallback(cfg, QuantityPopulation, scales, populations, float64(latest.Routers)); err != nil {
		return nil, err
	}

	aggregates := make([]float64, len(points))
	for i, p := range points {
		aggregates[i] = float64(p.Features.TotalBandwidth)
	}
	if model.AggregateBandwidth, err = fitOrFallback(cfg, QuantityBandwidth, populations, aggregates, float64(latest.TotalBandwidth)); err != nil {
		return nil, err
	}

	for _, flag := range consensus.KnownFlags {
		ys := make([]float64, len(points))
		for i, p := range points {
			ys[i] = p.Features.FlagPrevalence[flag]
		}
		curve, err := fitOrFallback(cfg, QuantityFlags, populations, ys, latest.FlagPrevalence[flag])
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", flag, err)
		}
		model.FlagPrevalence[flag] = curve
	}

	if err := fitFamilySizes(model, cfg, points, populations); err != nil {
		return nil, err
	}
	if err := fitBandwidthQuantiles(model, cfg, points, populations); err != nil {
		return nil, err
	}
	return model, nil
}

// fitOrFallback fits the quantity's configured curve, or a constant
// carry-forward when the quantity is not modeled. A degenerate
// regression (all x identical) also degrades to the carry-forward
// constant, with a warning, so that histories observed at a single
// population size still synthesize.
func fitOrFallback(cfg Config, q Quantity, xs, ys []float64, latest float64) (*Curve, error) {
	if !cfg.models(q) || cfg.method(q) == MethodConstant {
		return Constant(latest), nil
	}
	curve, err := FitCurve(cfg.method(q), xs, ys)
	if err != nil {
		if allIdentical(xs) {
			logrus.Warnf("quantity %s: all scale values identical, carrying latest value forward", q)
			return Constant(latest), nil
		}
		return nil, fmt.Errorf("quantity %s: %w", q, err)
	}
	return curve, nil
}

func fitFamilySizes(model *GrowthModel, cfg Config, points []Point, populations []float64) error {
	sizeSet := make(map[int]bool)
	for _, p := range points {
		for size := range p.Features.FamilySizes {
			sizeSet[size] = true
		}
	}
	sizes := make([]int, 0, len(sizeSet))
	for size := range sizeSet {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	model.FamilySizes = sizes

	for _, size := range sizes {
		ys := make([]float64, len(points))
		for i, p := range points {
			groups := p.Features.FamilyGroupCount()
			if groups > 0 {
				ys[i] = float64(p.Features.FamilySizes[size]) / float64(groups)
			}
		}
		latestFreq := 0.0
		if groups := model.Latest.FamilyGroupCount(); groups > 0 {
			latestFreq = float64(model.Latest.FamilySizes[size]) / float64(groups)
		}
		curve, err := fitOrFallback(cfg, QuantityFamilies, populations, ys, latestFreq)
		if err != nil {
			return fmt.Errorf("family size %d: %w", size, err)
		}
		model.FamilySizeFreq[size] = curve
	}
	return nil
}

func fitBandwidthQuantiles(model *GrowthModel, cfg Config, points []Point, populations []float64) error {
	// drop observations of empty documents, which have no shape
	var xs []float64
	var shaped []Point
	for i, p := range points {
		if len(p.Features.BandwidthQuantiles) == feature.QuantileCount {
			xs = append(xs, populations[i])
			shaped = append(shaped, p)
		}
	}
	latestQ := model.Latest.BandwidthQuantiles

	// normalized shape vectors start at the minimum bandwidth, which is
	// 0 in any consensus listing an unmeasured relay; a log-log fit
	// cannot take zeros, so shape curves fall back to linear when the
	// aggregate is modeled as a power law
	shapeCfg := cfg
	if shapeCfg.method(QuantityBandwidth) == MethodPowerLaw {
		shapeCfg.Methods = map[Quantity]Method{QuantityBandwidth: MethodLinear}
	}

	model.BandwidthQuantiles = make([]*Curve, feature.QuantileCount)
	for qi := 0; qi < feature.QuantileCount; qi++ {
		latest := 1.0
		if len(latestQ) == feature.QuantileCount {
			latest = latestQ[qi]
		}
		if len(shaped) < 2 {
			model.BandwidthQuantiles[qi] = Constant(latest)
			continue
		}
		ys := make([]float64, len(shaped))
		for i, p := range shaped {
			ys[i] = p.Features.BandwidthQuantiles[qi]
		}
		curve, err := fitOrFallback(shapeCfg, QuantityBandwidth, xs, ys, latest)
		if err != nil {
			return fmt.Errorf("bandwidth quantile %d: %w", qi, err)
		}
		model.BandwidthQuantiles[qi] = curve
	}
	return nil
}

func countDistinctScales(points []Point) int {
	seen := make(map[float64]bool, len(points))
	for _, p := range points {
		seen[p.Scale] = true
	}
	return len(seen)
}

func allIdentical(xs []float64) bool {
	for _, x := range xs {
		if x != xs[0] {
			return false
		}
	}
	return true
}
