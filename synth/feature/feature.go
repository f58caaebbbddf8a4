// Package feature derives per-consensus statistical features from parsed
// documents. FeatureSets are produced once per historical input, consumed
// by the growth-model fitter, and never mutated afterwards.
package feature

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cdoepmann/torsynth/consensus"
)

// QuantileCount is the number of evenly spaced quantiles used to capture
// the bandwidth distribution shape (0, 0.05, ..., 1).
const QuantileCount = 21

// FeatureSet captures the aggregates of one historical consensus.
type FeatureSet struct {
	ValidAfter     time.Time `yaml:"valid_after"`
	Routers        int       `yaml:"routers"`
	TotalBandwidth int64     `yaml:"total_bandwidth"`

	// FlagPrevalence maps every flag of the vocabulary to the fraction
	// of routers carrying it. 0 when the document is empty.
	FlagPrevalence map[consensus.Flag]float64 `yaml:"flag_prevalence"`

	// FamilySizes is the histogram of family cardinalities. Routers with
	// no declared family count as singleton groups of size 1.
	FamilySizes map[int]int `yaml:"family_sizes"`

	// ASCounts maps AS numbers to router counts; key 0 collects routers
	// with no AS annotation.
	ASCounts map[uint32]int `yaml:"as_counts"`

	// BandwidthQuantiles holds QuantileCount empirical quantiles of the
	// per-router bandwidth values, normalized by the mean bandwidth so
	// they describe shape independent of scale. Nil for empty documents.
	BandwidthQuantiles []float64 `yaml:"bandwidth_quantiles"`

	// Params and Weights are carried verbatim so the most recent
	// historical values can be forwarded into synthetic documents.
	Params  map[string]int64 `yaml:"params"`
	Weights map[string]int64 `yaml:"weights"`
}

// Extract computes the FeatureSet of a document. It is deterministic and
// has no failure modes: structurally invalid documents are rejected by
// the parser before they get here.
func Extract(doc *consensus.Document) *FeatureSet {
	fs := &FeatureSet{
		ValidAfter:     doc.ValidAfter,
		Routers:        len(doc.Routers),
		TotalBandwidth: doc.TotalBandwidth(),
		FlagPrevalence: make(map[consensus.Flag]float64, len(consensus.KnownFlags)),
		FamilySizes:    make(map[int]int),
		ASCounts:       make(map[uint32]int),
		Params:         copyInt64Map(doc.Params),
		Weights:        copyInt64Map(doc.Weights),
	}

	flagCounts := make(map[consensus.Flag]int, len(consensus.KnownFlags))
	familyMembers := make(map[string]int)
	for _, r := range doc.Routers {
		for _, f := range r.Flags {
			flagCounts[f]++
		}
		if r.Family != "" {
			familyMembers[r.Family]++
		} else {
			fs.FamilySizes[1]++
		}
		fs.ASCounts[r.ASNumber]++
	}
	for _, size := range familyMembers {
		fs.FamilySizes[size]++
	}

	for _, f := range consensus.KnownFlags {
		if fs.Routers == 0 {
			fs.FlagPrevalence[f] = 0
			continue
		}
		fs.FlagPrevalence[f] = float64(flagCounts[f]) / float64(fs.Routers)
	}

	fs.BandwidthQuantiles = bandwidthQuantiles(doc)
	return fs
}

// MeanBandwidth is the average per-router bandwidth, 0 for an empty set.
func (fs *FeatureSet) MeanBandwidth() float64 {
	if fs.Routers == 0 {
		return 0
	}
	return float64(fs.TotalBandwidth) / float64(fs.Routers)
}

// FamilyGroupCount is the total number of family groups, singletons
// included.
func (fs *FeatureSet) FamilyGroupCount() int {
	total := 0
	for _, n := range fs.FamilySizes {
		total += n
	}
	return total
}

// bandwidthQuantiles computes the normalized quantile vector of the
// per-router bandwidth distribution.
func bandwidthQuantiles(doc *consensus.Document) []float64 {
	if len(doc.Routers) == 0 {
		return nil
	}
	values := make([]float64, len(doc.Routers))
	for i, r := range doc.Routers {
		values[i] = float64(r.Bandwidth)
	}
	sort.Float64s(values)

	mean := stat.Mean(values, nil)
	if mean == 0 {
		mean = 1
	}
	quantiles := make([]float64, QuantileCount)
	for i := range quantiles {
		p := float64(i) / float64(QuantileCount-1)
		quantiles[i] = stat.Quantile(p, stat.Empirical, values, nil) / mean
	}
	return quantiles
}

func copyInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
