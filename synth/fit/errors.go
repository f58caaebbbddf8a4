package fit

import "fmt"

// InsufficientDataError reports a fit attempt with fewer than two
// distinct scale points. The run aborts; there is nothing to retry.
type InsufficientDataError struct {
	Distinct int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient historical data: %d distinct scale point(s), need at least 2", e.Distinct)
}
