package model

import (
	"encoding/json"
	"sort"
	"time"
)

// TestResult is one execution of one test within a session.
type TestResult struct {
	// Fully-qualified test identifier (e.g. "tests/test_api.py::test_login")
	NodeID string `json:"nodeid"`
	// Outcome of this execution
	Outcome Outcome `json:"outcome"`
	// When the test started
	StartTime time.Time `json:"start_time"`
	// When the test stopped; derived from StartTime+Duration when absent
	StopTime time.Time `json:"stop_time,omitempty"`
	// Duration in seconds
	Duration float64 `json:"duration"`
	// Captured output
	CapturedLog    string `json:"caplog,omitempty"`
	CapturedStdout string `json:"capstdout,omitempty"`
	CapturedStderr string `json:"capstderr,omitempty"`
	// Long failure representation (traceback)
	LongRepr string `json:"longreprtext,omitempty"`
	// Whether the test emitted a warning
	HasWarning bool `json:"has_warning"`
}

// UnmarshalJSON fills in whichever of duration and stop time is missing.
func (r *TestResult) UnmarshalJSON(data []byte) error {
	type plain TestResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = TestResult(p)
	switch {
	case r.Duration == 0 && !r.StopTime.IsZero():
		r.Duration = r.StopTime.Sub(r.StartTime).Seconds()
	case r.StopTime.IsZero() && !r.StartTime.IsZero():
		r.StopTime = r.StartTime.Add(secondsToDuration(r.Duration))
	}
	return nil
}

// RerunTestGroup holds every attempt of one test that was rerun within a session.
// Attempts are chronological; the last attempt is the final one.
type RerunTestGroup struct {
	NodeID   string       `json:"nodeid"`
	Attempts []TestResult `json:"tests"`
}

// NewRerunTestGroup creates a group with attempts sorted by start time.
func NewRerunTestGroup(nodeID string, attempts ...TestResult) RerunTestGroup {
	sorted := append([]TestResult(nil), attempts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})
	return RerunTestGroup{NodeID: nodeID, Attempts: sorted}
}

// FinalAttempt returns the last attempt. The zero TestResult is returned for an empty group.
func (g RerunTestGroup) FinalAttempt() TestResult {
	if len(g.Attempts) == 0 {
		return TestResult{}
	}
	return g.Attempts[len(g.Attempts)-1]
}

func (g RerunTestGroup) FinalOutcome() Outcome {
	return g.FinalAttempt().Outcome
}

// PriorAttempts returns every attempt before the final one.
func (g RerunTestGroup) PriorAttempts() []TestResult {
	if len(g.Attempts) == 0 {
		return nil
	}
	return g.Attempts[:len(g.Attempts)-1]
}

func (g RerunTestGroup) AllAttempts() []TestResult {
	return g.Attempts
}

// Recovered reports whether the test eventually passed after at least one earlier attempt.
func (g RerunTestGroup) Recovered() bool {
	return len(g.Attempts) > 1 && g.FinalOutcome() == OutcomePassed
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
