package synth

import (
	"fmt"
	"time"
)

// Target is one requested synthetic scale. Either Population or Date is
// set; a date is converted to a size via the population growth curve.
// The caller's Target is never mutated.
type Target struct {
	// Population is the requested router count. 0 means derive it from
	// Date instead.
	Population int
	// Date is the requested point in time, used when Population is 0.
	Date time.Time

	// ExitFactor and GuardFactor scale the modeled Exit/Guard prevalence
	// at synthesis time. Zero values mean 1 (no emphasis).
	ExitFactor  float64
	GuardFactor float64

	// RecomputeWeights rederives the bandwidth-weights from the
	// synthetic population instead of carrying the historical ones
	// forward.
	RecomputeWeights bool
}

func (t Target) String() string {
	if t.Population > 0 {
		return fmt.Sprintf("population=%d", t.Population)
	}
	return fmt.Sprintf("date=%s", t.Date.Format("2006-01-02"))
}

func (t Target) exitFactor() float64 {
	if t.ExitFactor == 0 {
		return 1
	}
	return t.ExitFactor
}

func (t Target) guardFactor() float64 {
	if t.GuardFactor == 0 {
		return 1
	}
	return t.GuardFactor
}
