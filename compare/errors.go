package compare

import "fmt"

// InvalidComparisonParameterError is returned when a comparison parameter is rejected.
type InvalidComparisonParameterError struct {
	Parameter string
	Value     any
	Reason    string
}

func (e *InvalidComparisonParameterError) Error() string {
	return fmt.Sprintf("invalid comparison parameter %s=%v: %s", e.Parameter, e.Value, e.Reason)
}
