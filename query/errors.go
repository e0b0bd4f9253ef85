package query

import "fmt"

// QueryStateError is returned when an operation is not allowed in the builder's current mode.
type QueryStateError struct {
	Operation string
	Mode      Mode
}

func (e *QueryStateError) Error() string {
	return fmt.Sprintf("cannot call %s while query is in %s mode", e.Operation, e.Mode)
}
