package synth

import "fmt"

// InvalidTargetError reports a fitted model evaluating to a value that
// would violate a document invariant at the requested target. It fails
// the affected target only; other targets in a batch proceed.
type InvalidTargetError struct {
	Target   string
	Quantity string
	Value    float64
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target %s: %s evaluates to %g", e.Target, e.Quantity, e.Value)
}
