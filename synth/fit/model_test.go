package fit

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cdoepmann/torsynth/consensus"
	"github.com/cdoepmann/torsynth/synth/feature"
)

// growingHistory builds n observations with linearly growing population
// and aggregate bandwidth and fixed flag prevalence.
func growingHistory(n int) []Point {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]Point, n)
	for i := 0; i < n; i++ {
		routers := 1000 * (i + 1)
		fs := &feature.FeatureSet{
			ValidAfter:     origin.Add(time.Duration(i) * 24 * time.Hour),
			Routers:        routers,
			TotalBandwidth: int64(10 * routers),
			FlagPrevalence: map[consensus.Flag]float64{},
			FamilySizes:    map[int]int{1: routers - 20, 4: 5},
			ASCounts:       map[uint32]int{64500: routers},
			Params:         map[string]int64{"circwindow": 1000},
			Weights:        map[string]int64{"Wgg": 6000},
		}
		for _, f := range consensus.KnownFlags {
			fs.FlagPrevalence[f] = 0
		}
		fs.FlagPrevalence[consensus.FlagRunning] = 1.0
		fs.FlagPrevalence[consensus.FlagExit] = 0.2
		fs.BandwidthQuantiles = make([]float64, feature.QuantileCount)
		for qi := range fs.BandwidthQuantiles {
			fs.BandwidthQuantiles[qi] = 0.5 + float64(qi)/float64(feature.QuantileCount-1)
		}
		points[i] = Point{Scale: float64(24 * i), Features: fs}
	}
	return points
}

// TestFit_LinearGrowth verifies the fitted model extrapolates a linear
// population and bandwidth history.
func TestFit_LinearGrowth(t *testing.T) {
	model, err := Fit(growingHistory(3), Config{})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	// population 1000, 2000, 3000 at scales 0, 24, 48
	if got := model.Population.Eval(72); math.Abs(got-4000) > 1e-6 {
		t.Errorf("Population.Eval(72) = %v, want 4000", got)
	}
	// aggregate bandwidth is 10 per router
	if got := model.AggregateBandwidth.Eval(4000); math.Abs(got-40000) > 1e-6 {
		t.Errorf("AggregateBandwidth.Eval(4000) = %v, want 40000", got)
	}
	// constant prevalences fit as flat lines
	if got := model.FlagPrevalence[consensus.FlagExit].Eval(4000); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("Exit prevalence at 4000 = %v, want 0.2", got)
	}
	if model.Latest.Routers != 3000 {
		t.Errorf("Latest.Routers = %d, want 3000", model.Latest.Routers)
	}
	if !model.TimeOrigin.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("TimeOrigin = %v", model.TimeOrigin)
	}
	if len(model.BandwidthQuantiles) != feature.QuantileCount {
		t.Fatalf("got %d quantile curves, want %d", len(model.BandwidthQuantiles), feature.QuantileCount)
	}
	if got := model.BandwidthQuantiles[0].Eval(4000); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("lowest quantile at 4000 = %v, want 0.5", got)
	}
}

// TestFit_InsufficientData verifies histories with fewer than two
// distinct scales are rejected with a typed error.
func TestFit_InsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   int
	}{
		{name: "empty history", points: nil, want: 0},
		{name: "single observation", points: growingHistory(1), want: 1},
		{
			name: "repeated scale",
			points: []Point{
				{Scale: 0, Features: growingHistory(1)[0].Features},
				{Scale: 0, Features: growingHistory(1)[0].Features},
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.points, Config{})
			var ierr *InsufficientDataError
			if !errors.As(err, &ierr) {
				t.Fatalf("error is %T (%v), want *InsufficientDataError", err, err)
			}
			if ierr.Distinct != tt.want {
				t.Errorf("Distinct = %d, want %d", ierr.Distinct, tt.want)
			}
		})
	}
}

// TestFit_UnmodeledQuantities verifies deselected quantities are carried
// forward from the latest observation.
func TestFit_UnmodeledQuantities(t *testing.T) {
	cfg := Config{Quantities: []Quantity{QuantityPopulation}}
	model, err := Fit(growingHistory(3), cfg)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if model.AggregateBandwidth.Method != MethodConstant {
		t.Errorf("AggregateBandwidth.Method = %s, want constant", model.AggregateBandwidth.Method)
	}
	if got := model.AggregateBandwidth.Eval(99999); got != 30000 {
		t.Errorf("carried-forward bandwidth = %v, want 30000", got)
	}
	if model.ModelAS {
		t.Error("ModelAS = true, want false when as is deselected")
	}

	// population itself still gets a real fit
	if model.Population.Method != MethodLinear {
		t.Errorf("Population.Method = %s, want linear", model.Population.Method)
	}
}

// TestFit_MethodSelection verifies per-quantity method overrides.
func TestFit_MethodSelection(t *testing.T) {
	cfg := Config{Methods: map[Quantity]Method{QuantityBandwidth: MethodPowerLaw}}
	model, err := Fit(growingHistory(3), cfg)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if model.AggregateBandwidth.Method != MethodPowerLaw {
		t.Errorf("AggregateBandwidth.Method = %s, want powerlaw", model.AggregateBandwidth.Method)
	}
	// y = 10x is a power law with exponent 1
	if got := model.AggregateBandwidth.Eval(4000); math.Abs(got-40000) > 1e-3 {
		t.Errorf("powerlaw bandwidth at 4000 = %v, want 40000", got)
	}
}

// TestFit_PowerLawWithZeroQuantile verifies a power-law bandwidth
// method still fits when the history contains zero-bandwidth routers,
// whose normalized minimum quantile is 0.
func TestFit_PowerLawWithZeroQuantile(t *testing.T) {
	points := growingHistory(3)
	for _, p := range points {
		p.Features.BandwidthQuantiles[0] = 0
	}

	cfg := Config{Methods: map[Quantity]Method{QuantityBandwidth: MethodPowerLaw}}
	model, err := Fit(points, cfg)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if model.AggregateBandwidth.Method != MethodPowerLaw {
		t.Errorf("AggregateBandwidth.Method = %s, want powerlaw", model.AggregateBandwidth.Method)
	}
	// shape curves degrade to linear so the zeros stay representable
	if model.BandwidthQuantiles[0].Method != MethodLinear {
		t.Errorf("quantile 0 method = %s, want linear", model.BandwidthQuantiles[0].Method)
	}
	if got := model.BandwidthQuantiles[0].Eval(4000); math.Abs(got) > 1e-12 {
		t.Errorf("quantile 0 at 4000 = %v, want 0", got)
	}
}

// TestFit_FamilySizeFrequencies verifies each observed family size gets
// a frequency curve.
func TestFit_FamilySizeFrequencies(t *testing.T) {
	model, err := Fit(growingHistory(3), Config{})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if len(model.FamilySizes) != 2 || model.FamilySizes[0] != 1 || model.FamilySizes[1] != 4 {
		t.Fatalf("FamilySizes = %v, want [1 4]", model.FamilySizes)
	}
	for _, size := range model.FamilySizes {
		if model.FamilySizeFreq[size] == nil {
			t.Errorf("no frequency curve for family size %d", size)
		}
	}
	// size-4 groups stay at 5 while group totals grow, so the frequency
	// declines with population
	freq := model.FamilySizeFreq[4]
	if freq.Eval(1000) <= freq.Eval(3000) {
		t.Errorf("size-4 frequency not declining: %v vs %v", freq.Eval(1000), freq.Eval(3000))
	}
}

// TestFit_InvalidConfig verifies enumerated config fields are checked.
func TestFit_InvalidConfig(t *testing.T) {
	if _, err := Fit(growingHistory(3), Config{Quantities: []Quantity{"velocity"}}); err == nil {
		t.Error("expected an error for unknown quantity")
	}
	cfg := Config{Methods: map[Quantity]Method{QuantityPopulation: "spline"}}
	if _, err := Fit(growingHistory(3), cfg); err == nil {
		t.Error("expected an error for unknown method")
	}
}
