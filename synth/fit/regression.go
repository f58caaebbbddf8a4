// Package fit fits the growth model: per-quantity extrapolation curves
// over a time series of consensus FeatureSets.
package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Method selects the regression family for a fitted quantity.
type Method string

const (
	// MethodLinear fits y = alpha + beta*x by ordinary least squares.
	MethodLinear Method = "linear"
	// MethodPowerLaw fits y = exp(alpha) * x^beta, i.e. OLS in log-log
	// space. Requires strictly positive observations.
	MethodPowerLaw Method = "powerlaw"
	// MethodConstant carries the most recent observation forward.
	MethodConstant Method = "constant"
)

// ParseMethod validates an enumerated method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodLinear, MethodPowerLaw, MethodConstant:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown fit method %q (want linear, powerlaw, or constant)", s)
}

// Curve is one fitted extrapolation function. Evaluation is valid over
// the whole real line; extrapolating beyond the observed range is
// permitted and reflected in widening prediction intervals rather than
// clamped.
type Curve struct {
	Method Method
	Alpha  float64
	Beta   float64

	// OLS bookkeeping in fit space (log space for powerlaw), used for
	// prediction intervals.
	n      int
	meanX  float64
	sxx    float64
	sigma2 float64 // residual variance, 0 when n <= 2
}

// Constant returns a curve that always evaluates to v.
func Constant(v float64) *Curve {
	return &Curve{Method: MethodConstant, Alpha: v}
}

// FitCurve fits a curve of the given method to the observations.
// xs and ys must have equal length >= 2 with at least two distinct xs.
func FitCurve(method Method, xs, ys []float64) (*Curve, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("fit: %d xs vs %d ys", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("fit: need at least 2 observations, have %d", len(xs))
	}

	fx, fy := xs, ys
	if method == MethodPowerLaw {
		fx = make([]float64, len(xs))
		fy = make([]float64, len(ys))
		for i := range xs {
			if xs[i] <= 0 || ys[i] <= 0 {
				return nil, fmt.Errorf("powerlaw fit requires positive observations, got (%g, %g)", xs[i], ys[i])
			}
			fx[i] = math.Log(xs[i])
			fy[i] = math.Log(ys[i])
		}
	} else if method != MethodLinear {
		return nil, fmt.Errorf("cannot fit method %q", method)
	}

	meanX := stat.Mean(fx, nil)
	sxx := 0.0
	for _, x := range fx {
		sxx += (x - meanX) * (x - meanX)
	}
	if sxx == 0 {
		return nil, fmt.Errorf("fit: all scale values identical")
	}

	alpha, beta := stat.LinearRegression(fx, fy, nil, false)

	c := &Curve{
		Method: method,
		Alpha:  alpha,
		Beta:   beta,
		n:      len(fx),
		meanX:  meanX,
		sxx:    sxx,
	}
	if len(fx) > 2 {
		ssr := 0.0
		for i := range fx {
			resid := fy[i] - (alpha + beta*fx[i])
			ssr += resid * resid
		}
		c.sigma2 = ssr / float64(len(fx)-2)
	}
	return c, nil
}

// Eval returns the point estimate at x.
func (c *Curve) Eval(x float64) float64 {
	switch c.Method {
	case MethodConstant:
		return c.Alpha
	case MethodPowerLaw:
		if x <= 0 {
			return math.NaN()
		}
		return math.Exp(c.Alpha + c.Beta*math.Log(x))
	default:
		return c.Alpha + c.Beta*x
	}
}

// Interval returns an approximate 95% prediction interval at x. For
// constant curves (and fits with too few points for a residual
// estimate) it degenerates to the point estimate.
func (c *Curve) Interval(x float64) (lo, hi float64) {
	y := c.Eval(x)
	if c.Method == MethodConstant || c.sigma2 == 0 {
		return y, y
	}
	fx := x
	if c.Method == MethodPowerLaw {
		if x <= 0 {
			return math.NaN(), math.NaN()
		}
		fx = math.Log(x)
	}
	se := math.Sqrt(c.sigma2 * (1 + 1/float64(c.n) + (fx-c.meanX)*(fx-c.meanX)/c.sxx))
	mid := c.Alpha + c.Beta*fx
	lo, hi = mid-1.96*se, mid+1.96*se
	if c.Method == MethodPowerLaw {
		return math.Exp(lo), math.Exp(hi)
	}
	return lo, hi
}

// Invert solves Eval(x) = y for x where the curve family permits it.
// Returns false for constant curves and zero slopes.
func (c *Curve) Invert(y float64) (float64, bool) {
	switch c.Method {
	case MethodLinear:
		if c.Beta == 0 {
			return 0, false
		}
		return (y - c.Alpha) / c.Beta, true
	case MethodPowerLaw:
		if c.Beta == 0 || y <= 0 {
			return 0, false
		}
		return math.Exp((math.Log(y) - c.Alpha) / c.Beta), true
	default:
		return 0, false
	}
}
