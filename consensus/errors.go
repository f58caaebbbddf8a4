package consensus

import "fmt"

// FormatError reports a malformed or out-of-range consensus document.
// It is never recovered from automatically: a document that fails to
// parse aborts the unit of work that consumed it.
type FormatError struct {
	Line int    // 1-based line number, 0 when not line-specific
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("consensus format error at line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("consensus format error: %s", e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErrorf(line int, format string, args ...interface{}) *FormatError {
	return &FormatError{Line: line, Msg: fmt.Sprintf(format, args...)}
}
