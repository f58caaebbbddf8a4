package fit

import (
	"math"
	"testing"
)

// TestFitCurve_LinearExact verifies OLS recovers an exactly linear
// relation and extrapolates it.
func TestFitCurve_LinearExact(t *testing.T) {
	xs := []float64{1000, 2000, 3000}
	ys := []float64{10, 20, 30}

	c, err := FitCurve(MethodLinear, xs, ys)
	if err != nil {
		t.Fatalf("FitCurve failed: %v", err)
	}
	if math.Abs(c.Alpha) > 1e-9 {
		t.Errorf("Alpha = %v, want 0", c.Alpha)
	}
	if math.Abs(c.Beta-0.01) > 1e-12 {
		t.Errorf("Beta = %v, want 0.01", c.Beta)
	}
	if got := c.Eval(4000); math.Abs(got-40) > 1e-9 {
		t.Errorf("Eval(4000) = %v, want 40", got)
	}

	// an exact fit has zero residual variance, so the interval collapses
	lo, hi := c.Interval(4000)
	if math.Abs(lo-40) > 1e-9 || math.Abs(hi-40) > 1e-9 {
		t.Errorf("Interval(4000) = [%v, %v], want [40, 40]", lo, hi)
	}
}

// TestFitCurve_PowerLaw verifies the log-log fit on data following
// y = 2 * x^1.5.
func TestFitCurve_PowerLaw(t *testing.T) {
	xs := []float64{1, 4, 9, 16}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 2 * math.Pow(x, 1.5)
	}

	c, err := FitCurve(MethodPowerLaw, xs, ys)
	if err != nil {
		t.Fatalf("FitCurve failed: %v", err)
	}
	if math.Abs(c.Beta-1.5) > 1e-9 {
		t.Errorf("Beta = %v, want 1.5", c.Beta)
	}
	if got := c.Eval(25); math.Abs(got-2*math.Pow(25, 1.5)) > 1e-6 {
		t.Errorf("Eval(25) = %v, want %v", got, 2*math.Pow(25, 1.5))
	}
	if !math.IsNaN(c.Eval(0)) {
		t.Errorf("Eval(0) = %v, want NaN", c.Eval(0))
	}
}

// TestFitCurve_Errors verifies the rejected input shapes.
func TestFitCurve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		xs, ys []float64
	}{
		{name: "length mismatch", method: MethodLinear, xs: []float64{1, 2}, ys: []float64{1}},
		{name: "single observation", method: MethodLinear, xs: []float64{1}, ys: []float64{1}},
		{name: "identical xs", method: MethodLinear, xs: []float64{5, 5, 5}, ys: []float64{1, 2, 3}},
		{name: "powerlaw with zero", method: MethodPowerLaw, xs: []float64{0, 2}, ys: []float64{1, 2}},
		{name: "powerlaw with negative y", method: MethodPowerLaw, xs: []float64{1, 2}, ys: []float64{-1, 2}},
		{name: "constant not fittable", method: MethodConstant, xs: []float64{1, 2}, ys: []float64{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FitCurve(tt.method, tt.xs, tt.ys); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

// TestCurve_Interval verifies noisy fits produce intervals that contain
// the point estimate and widen away from the data.
func TestCurve_Interval(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{1.1, 1.9, 3.2, 3.8, 5.1}

	c, err := FitCurve(MethodLinear, xs, ys)
	if err != nil {
		t.Fatalf("FitCurve failed: %v", err)
	}

	lo, hi := c.Interval(3)
	if !(lo < c.Eval(3) && c.Eval(3) < hi) {
		t.Errorf("Interval(3) = [%v, %v] does not bracket %v", lo, hi, c.Eval(3))
	}

	loFar, hiFar := c.Interval(10)
	if hiFar-loFar <= hi-lo {
		t.Errorf("interval at x=10 (%v) not wider than at x=3 (%v)", hiFar-loFar, hi-lo)
	}
}

// TestCurve_Invert verifies inversion on the supported families.
func TestCurve_Invert(t *testing.T) {
	linear, err := FitCurve(MethodLinear, []float64{0, 10}, []float64{5, 25})
	if err != nil {
		t.Fatalf("FitCurve failed: %v", err)
	}
	x, ok := linear.Invert(15)
	if !ok || math.Abs(x-5) > 1e-9 {
		t.Errorf("linear Invert(15) = %v, %v, want 5, true", x, ok)
	}

	power, err := FitCurve(MethodPowerLaw, []float64{1, 4}, []float64{3, 6})
	if err != nil {
		t.Fatalf("FitCurve failed: %v", err)
	}
	x, ok = power.Invert(6)
	if !ok || math.Abs(x-4) > 1e-9 {
		t.Errorf("powerlaw Invert(6) = %v, %v, want 4, true", x, ok)
	}

	if _, ok := Constant(7).Invert(7); ok {
		t.Error("constant curves must not be invertible")
	}
}

// TestConstant verifies the carry-forward curve.
func TestConstant(t *testing.T) {
	c := Constant(42)
	for _, x := range []float64{-1, 0, 1e9} {
		if got := c.Eval(x); got != 42 {
			t.Errorf("Eval(%v) = %v, want 42", x, got)
		}
	}
	lo, hi := c.Interval(5)
	if lo != 42 || hi != 42 {
		t.Errorf("Interval = [%v, %v], want [42, 42]", lo, hi)
	}
}
