package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome is the result state of a single test execution.
type Outcome string

const (
	OutcomePassed  Outcome = "PASSED"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
	OutcomeXFailed Outcome = "XFAILED"
	OutcomeXPassed Outcome = "XPASSED"
	OutcomeError   Outcome = "ERROR"
	OutcomeRerun   Outcome = "RERUN"
)

// Outcomes lists every valid outcome in declaration order.
var Outcomes = []Outcome{
	OutcomePassed,
	OutcomeFailed,
	OutcomeSkipped,
	OutcomeXFailed,
	OutcomeXPassed,
	OutcomeError,
	OutcomeRerun,
}

// ParseOutcome converts a string into an Outcome. Matching is case-insensitive.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", fmt.Errorf("invalid test outcome: %q", s)
	}
	return o, nil
}

// Valid reports whether o is one of the closed set of outcomes.
func (o Outcome) Valid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// IsFailure reports whether the outcome is FAILED or ERROR.
func (o Outcome) IsFailure() bool {
	return o == OutcomeFailed || o == OutcomeError
}

// IsPass reports whether the outcome is PASSED or XPASSED.
func (o Outcome) IsPass() bool {
	return o == OutcomePassed || o == OutcomeXPassed
}

func (o Outcome) String() string {
	return string(o)
}

// MarshalJSON writes the outcome in lowercase, the format used on disk.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(string(o)))
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
