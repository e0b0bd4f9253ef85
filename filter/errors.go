package filter

import "fmt"

// InvalidQueryParameterError is returned when a query parameter is rejected at build time:
// an unknown field name, an empty pattern or an impossible numeric range.
type InvalidQueryParameterError struct {
	Parameter string
	Reason    string
}

func (e *InvalidQueryParameterError) Error() string {
	return fmt.Sprintf("invalid query parameter %q: %s", e.Parameter, e.Reason)
}

// NewInvalidQueryParameterError creates a new InvalidQueryParameterError.
func NewInvalidQueryParameterError(parameter, reason string) error {
	return &InvalidQueryParameterError{Parameter: parameter, Reason: reason}
}

// InvalidPatternError is returned when a regular expression or glob fails to compile.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}
