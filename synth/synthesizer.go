// Package synth synthesizes internally consistent Tor consensus
// documents at a requested scale from a fitted growth model.
package synth

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdoepmann/torsynth/consensus"
	"github.com/cdoepmann/torsynth/synth/fit"
)

// defaultProtocols is the protocol line stamped onto synthetic routers.
const defaultProtocols = "Cons=1-2 Desc=1-2 DirCache=2 FlowCtrl=1 HSDir=2 HSIntro=4-5 HSRend=2 Link=4-5 LinkAuth=3 Microdesc=1-2 Padding=2 Relay=1-3"

// defaultVersion is the version line stamped onto synthetic routers.
const defaultVersion = "Tor 0.4.6.10"

// Synthesize samples a router population at the target scale from the
// fitted model and assembles a consistent consensus document.
//
// The output always satisfies the document-model invariants: flags from
// the vocabulary, complete bandwidth-weight key set, router count
// exactly N, and per-router bandwidths summing exactly to the modeled
// aggregate. Model evaluations that are non-finite, negative where
// disallowed, or prevalences above 1 fail with *InvalidTargetError;
// nothing is clamped.
func Synthesize(model *fit.GrowthModel, target Target, rng *PartitionedRNG) (*consensus.Document, error) {
	n, validAfter, err := targetPopulation(model, target)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("synthesizing %s: %d routers", target, n)

	doc := consensus.NewDocument(validAfter)
	for k, v := range model.Latest.Params {
		doc.Params[k] = v
	}
	for k, v := range model.Latest.Weights {
		doc.Weights[k] = v
	}

	bandwidths, err := sampleBandwidths(model, target, n, rng.ForSubsystem(SubsystemBandwidth))
	if err != nil {
		return nil, err
	}
	families, err := sampleFamilies(model, target, n, rng.ForSubsystem(SubsystemFamilies))
	if err != nil {
		return nil, err
	}
	flagSets, err := sampleFlags(model, target, n, rng.ForSubsystem(SubsystemFlags))
	if err != nil {
		return nil, err
	}
	asNumbers, err := sampleAS(model, n, rng.ForSubsystem(SubsystemAS))
	if err != nil {
		return nil, err
	}

	ids := newIdentityGenerator(n)
	published := validAfter.Add(-1 * time.Hour)
	for i := 0; i < n; i++ {
		entry := &consensus.RouterEntry{
			Published:  published,
			Flags:      flagSets[i],
			Version:    defaultVersion,
			Protocols:  defaultProtocols,
			Bandwidth:  bandwidths[i],
			Family:     families[i],
			ASNumber:   asNumbers[i],
			ORPort:     9001,
			ExitPolicy: "reject 1-65535",
		}
		ids.assign(entry, i)
		if entry.HasFlag(consensus.FlagExit) {
			entry.ExitPolicy = "accept 1-65535"
		}
		doc.Routers = append(doc.Routers, entry)
	}

	if target.RecomputeWeights {
		doc.RecomputeWeights()
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("synthesized document failed validation: %w", err)
	}
	return doc, nil
}

// targetPopulation resolves the target to a router count N and a
// valid-after timestamp for the synthetic document.
func targetPopulation(model *fit.GrowthModel, target Target) (int, time.Time, error) {
	if target.Population > 0 {
		validAfter := model.Latest.ValidAfter
		// place the document on the fitted population timeline if the
		// curve can be inverted
		if hours, ok := model.Population.Invert(float64(target.Population)); ok {
			validAfter = model.TimeOrigin.Add(time.Duration(hours * float64(time.Hour)))
		}
		return target.Population, validAfter, nil
	}

	scale := target.Date.Sub(model.TimeOrigin).Hours()
	value := model.Population.Eval(scale)
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, time.Time{}, &InvalidTargetError{Target: target.String(), Quantity: "population", Value: value}
	}
	lo, hi := model.Population.Interval(scale)
	logrus.Debugf("population at %s: %.1f (95%% interval %.1f..%.1f)", target, value, lo, hi)
	return int(math.Round(value)), target.Date, nil
}

// sampleBandwidths evaluates the aggregate-bandwidth and
// distribution-shape models at N, draws N values from the shape, and
// rescales the sample so it sums exactly to the modeled aggregate.
func sampleBandwidths(model *fit.GrowthModel, target Target, n int, rng *rand.Rand) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	popF := float64(n)

	aggregate := model.AggregateBandwidth.Eval(popF)
	if math.IsNaN(aggregate) || math.IsInf(aggregate, 0) || aggregate < 0 {
		return nil, &InvalidTargetError{Target: target.String(), Quantity: "aggregate bandwidth", Value: aggregate}
	}

	quantiles := make([]float64, len(model.BandwidthQuantiles))
	for i, curve := range model.BandwidthQuantiles {
		v := curve.Eval(popF)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, &InvalidTargetError{Target: target.String(), Quantity: fmt.Sprintf("bandwidth quantile %d", i), Value: v}
		}
		quantiles[i] = v
	}
	sampler, err := fit.NewQuantileSampler(quantiles)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", target, err)
	}

	draws := make([]float64, n)
	sum := 0.0
	for i := range draws {
		draws[i] = sampler.Sample(rng)
		sum += draws[i]
	}
	return rescaleToSum(draws, sum, int64(math.Round(aggregate))), nil
}

// rescaleToSum converts the drawn shape values to integers that sum
// exactly to total, using largest-remainder rounding.
func rescaleToSum(draws []float64, sum float64, total int64) []int64 {
	n := len(draws)
	out := make([]int64, n)
	if total == 0 {
		return out
	}
	if sum == 0 {
		// degenerate all-zero shape: split evenly
		base := total / int64(n)
		rest := total - base*int64(n)
		for i := range out {
			out[i] = base
			if int64(i) < rest {
				out[i]++
			}
		}
		return out
	}

	factor := float64(total) / sum
	type frac struct {
		idx  int
		part float64
	}
	fracs := make([]frac, n)
	var assigned int64
	for i, d := range draws {
		scaled := d * factor
		floor := math.Floor(scaled)
		out[i] = int64(floor)
		assigned += out[i]
		fracs[i] = frac{idx: i, part: scaled - floor}
	}
	// distribute the residual units to the largest fractional parts;
	// ties break on index to stay deterministic
	sort.Slice(fracs, func(a, b int) bool {
		if fracs[a].part != fracs[b].part {
			return fracs[a].part > fracs[b].part
		}
		return fracs[a].idx < fracs[b].idx
	})
	residual := total - assigned
	for i := int64(0); i < residual && int(i) < n; i++ {
		out[fracs[i].idx]++
	}
	return out
}

// sampleFamilies partitions the N routers into family groups whose
// sizes are drawn from the fitted family-size distribution and sum
// exactly to N; the last group absorbs any remainder. Groups of size 1
// are routers with no declared family.
func sampleFamilies(model *fit.GrowthModel, target Target, n int, rng *rand.Rand) ([]string, error) {
	families := make([]string, n)
	if n == 0 || len(model.FamilySizes) == 0 {
		return families, nil
	}
	popF := float64(n)

	weights := make([]float64, len(model.FamilySizes))
	anyPositive := false
	for i, size := range model.FamilySizes {
		w := model.FamilySizeFreq[size].Eval(popF)
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, &InvalidTargetError{Target: target.String(), Quantity: fmt.Sprintf("family size %d frequency", size), Value: w}
		}
		if w < 0 {
			// extrapolated frequencies can dip below zero for rare
			// sizes; a probability cannot, so the size drops out of the
			// renormalized distribution
			logrus.Warnf("family size %d: extrapolated frequency %g, treating as 0", size, w)
			w = 0
		}
		weights[i] = w
		anyPositive = anyPositive || w > 0
	}
	if !anyPositive {
		return nil, &InvalidTargetError{Target: target.String(), Quantity: "family size distribution", Value: 0}
	}
	sampler, err := fit.NewCategoricalSampler(model.FamilySizes, weights)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", target, err)
	}

	// assign group keys over a random permutation so family membership
	// is independent of listing order
	order := rng.Perm(n)
	remaining := n
	pos := 0
	group := 0
	for remaining > 0 {
		size := sampler.Sample(rng)
		if size > remaining {
			size = remaining // last group absorbs the remainder
		}
		if size >= 2 {
			key := fmt.Sprintf("f%05d", group)
			for i := 0; i < size; i++ {
				families[order[pos+i]] = key
			}
			group++
		}
		pos += size
		remaining -= size
	}
	return families, nil
}

// sampleFlags assigns each flag of the vocabulary to a uniformly
// sampled subset of exactly round(prevalence(N)*N) routers,
// independently per flag.
func sampleFlags(model *fit.GrowthModel, target Target, n int, rng *rand.Rand) ([][]consensus.Flag, error) {
	flagSets := make([][]consensus.Flag, n)
	if n == 0 {
		return flagSets, nil
	}
	popF := float64(n)

	for _, flag := range consensus.KnownFlags {
		p := model.FlagPrevalence[flag].Eval(popF)
		switch flag {
		case consensus.FlagExit:
			p *= target.exitFactor()
		case consensus.FlagGuard:
			p *= target.guardFactor()
		}
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return nil, &InvalidTargetError{Target: target.String(), Quantity: fmt.Sprintf("%s prevalence", flag), Value: p}
		}
		count := int(math.Round(p * popF))
		for _, idx := range rng.Perm(n)[:count] {
			flagSets[idx] = append(flagSets[idx], flag)
		}
	}

	return flagSets, nil
}

// sampleAS draws an AS number per router from the latest historical AS
// membership distribution, when AS membership is modeled.
func sampleAS(model *fit.GrowthModel, n int, rng *rand.Rand) ([]uint32, error) {
	numbers := make([]uint32, n)
	if n == 0 || !model.ModelAS || len(model.Latest.ASCounts) == 0 {
		return numbers, nil
	}

	asns := make([]int, 0, len(model.Latest.ASCounts))
	for asn := range model.Latest.ASCounts {
		asns = append(asns, int(asn))
	}
	sort.Ints(asns)
	weights := make([]float64, len(asns))
	for i, asn := range asns {
		weights[i] = float64(model.Latest.ASCounts[uint32(asn)])
	}
	sampler, err := fit.NewCategoricalSampler(asns, weights)
	if err != nil {
		return nil, err
	}
	for i := range numbers {
		numbers[i] = uint32(sampler.Sample(rng))
	}
	return numbers, nil
}

// identityGenerator assigns unique fingerprints, digests, nicknames,
// and addresses from an incrementing counter seeded by the target
// population, so identifier assignment is deterministic.
type identityGenerator struct {
	base uint64
}

func newIdentityGenerator(n int) *identityGenerator {
	return &identityGenerator{base: uint64(n) << 32}
}

func (g *identityGenerator) assign(entry *consensus.RouterEntry, i int) {
	counter := g.base + uint64(i) + 1

	var fp consensus.Fingerprint
	binary.BigEndian.PutUint64(fp[12:], counter)
	entry.Fingerprint = fp

	var digest consensus.Fingerprint
	digest[0] = 0x01 // keep digests disjoint from identities
	binary.BigEndian.PutUint64(digest[12:], counter)
	entry.Digest = digest

	entry.Nickname = fmt.Sprintf("torsynth%06d", i+1)
	entry.Address = fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xff, (i>>8)&0xff, i&0xff)
}
