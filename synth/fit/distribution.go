package fit

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// QuantileSampler draws values from a distribution described by a
// vector of evenly spaced quantiles, using inverse-CDF sampling with
// linear interpolation between adjacent quantile points.
type QuantileSampler struct {
	quantiles []float64
}

// NewQuantileSampler validates a quantile vector and returns a sampler.
// Values must be finite and non-negative. Non-monotone vectors (which
// extrapolated per-quantile regressions can produce) are repaired by
// monotone rearrangement, i.e. sorting.
func NewQuantileSampler(quantiles []float64) (*QuantileSampler, error) {
	if len(quantiles) < 2 {
		return nil, fmt.Errorf("quantile sampler needs at least 2 quantiles, have %d", len(quantiles))
	}
	q := make([]float64, len(quantiles))
	for i, v := range quantiles {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("quantile %d is not finite: %v", i, v)
		}
		if v < 0 {
			return nil, fmt.Errorf("quantile %d is negative: %v", i, v)
		}
		q[i] = v
	}
	sort.Float64s(q)
	return &QuantileSampler{quantiles: q}, nil
}

// Sample draws one value.
func (s *QuantileSampler) Sample(rng *rand.Rand) float64 {
	u := rng.Float64()
	pos := u * float64(len(s.quantiles)-1)
	idx := int(pos)
	if idx >= len(s.quantiles)-1 {
		return s.quantiles[len(s.quantiles)-1]
	}
	frac := pos - float64(idx)
	return s.quantiles[idx]*(1-frac) + s.quantiles[idx+1]*frac
}

// CategoricalSampler draws from a finite weighted set of integers via
// inverse CDF over the normalized weights.
type CategoricalSampler struct {
	values []int
	cdf    []float64
}

// NewCategoricalSampler builds a sampler over values with the given
// weights. Zero and negative weights are skipped; at least one weight
// must be positive.
func NewCategoricalSampler(values []int, weights []float64) (*CategoricalSampler, error) {
	if len(values) != len(weights) {
		return nil, fmt.Errorf("categorical sampler: %d values vs %d weights", len(values), len(weights))
	}
	total := 0.0
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("categorical sampler: non-finite weight %v", w)
		}
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return nil, fmt.Errorf("categorical sampler: all weights non-positive")
	}

	s := &CategoricalSampler{}
	cumulative := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w / total
		s.values = append(s.values, values[i])
		s.cdf = append(s.cdf, cumulative)
	}
	s.cdf[len(s.cdf)-1] = 1.0
	return s, nil
}

// Sample draws one value.
func (s *CategoricalSampler) Sample(rng *rand.Rand) int {
	u := rng.Float64()
	idx := sort.SearchFloat64s(s.cdf, u)
	if idx >= len(s.values) {
		idx = len(s.values) - 1
	}
	return s.values[idx]
}
