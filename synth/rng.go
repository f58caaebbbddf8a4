package synth

import (
	"hash/fnv"
	"math/rand"
)

// SynthesisKey uniquely identifies a reproducible synthesis run. Two
// runs with the same key and identical inputs MUST produce bit-for-bit
// identical documents.
type SynthesisKey int64

// NewSynthesisKey creates a SynthesisKey from a seed value.
func NewSynthesisKey(seed int64) SynthesisKey {
	return SynthesisKey(seed)
}

// RNG subsystems. Each synthesis concern draws from its own stream so
// that, e.g., changing how many flags exist does not perturb the
// bandwidth sample.
const (
	SubsystemBandwidth = "bandwidth"
	SubsystemFamilies  = "families"
	SubsystemFlags     = "flags"
	SubsystemAS        = "as"
)

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem, derived as masterSeed XOR fnv1a64(subsystemName).
//
// Thread-safety: NOT thread-safe. Use one PartitionedRNG per goroutine.
type PartitionedRNG struct {
	key        SynthesisKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SynthesisKey.
func NewPartitionedRNG(key SynthesisKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named
// subsystem. The same name always returns the same *rand.Rand instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SynthesisKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SynthesisKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
