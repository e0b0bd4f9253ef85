package model

// This file contains the Session type and its validation and JSON codec.

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Session is one test-run of a system under test.
type Session struct {
	SessionID         string            `json:"session_id"`
	SUTName           string            `json:"sut_name"`
	TestingSystemName string            `json:"testing_system_name,omitempty"`
	TestingSystem     map[string]string `json:"testing_system,omitempty"`
	StartTime         time.Time         `json:"session_start_time"`
	StopTime          time.Time         `json:"session_stop_time"`
	TestResults       []TestResult      `json:"test_results"`
	RerunGroups       []RerunTestGroup  `json:"rerun_test_groups"`
	Tags              map[string]string `json:"session_tags"`
}

// sessionJSON adds the derived duration to the on-disk form.
type sessionJSON struct {
	plainSession
	SessionDuration float64 `json:"session_duration"`
}

type plainSession Session

func (s Session) MarshalJSON() ([]byte, error) {
	p := plainSession(s)
	if p.TestResults == nil {
		p.TestResults = []TestResult{}
	}
	if p.RerunGroups == nil {
		p.RerunGroups = []RerunTestGroup{}
	}
	if p.Tags == nil {
		p.Tags = map[string]string{}
	}
	return json.Marshal(sessionJSON{plainSession: p, SessionDuration: s.Duration().Seconds()})
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Session(raw.plainSession)
	if s.StopTime.IsZero() && raw.SessionDuration > 0 {
		s.StopTime = s.StartTime.Add(secondsToDuration(raw.SessionDuration))
	}
	if s.TestingSystemName == "" && s.TestingSystem != nil {
		s.TestingSystemName = s.TestingSystem["name"]
	}
	return nil
}

// Duration returns the wall-clock length of the session.
func (s *Session) Duration() time.Duration {
	if s.StopTime.IsZero() || s.StopTime.Before(s.StartTime) {
		return 0
	}
	return s.StopTime.Sub(s.StartTime)
}

// HasWarnings reports whether any test in the session emitted a warning.
func (s *Session) HasWarnings() bool {
	for _, t := range s.TestResults {
		if t.HasWarning {
			return true
		}
	}
	return false
}

func (s *Session) HasReruns() bool {
	return len(s.RerunGroups) > 0
}

// RerunGroup returns the rerun group for nodeID, if any.
func (s *Session) RerunGroup(nodeID string) (RerunTestGroup, bool) {
	for _, g := range s.RerunGroups {
		if g.NodeID == nodeID {
			return g, true
		}
	}
	return RerunTestGroup{}, false
}

// Result returns the first test result recorded for nodeID.
func (s *Session) Result(nodeID string) (TestResult, bool) {
	for _, t := range s.TestResults {
		if t.NodeID == nodeID {
			return t, true
		}
	}
	return TestResult{}, false
}

// Validate checks the session invariants and reports every violation found.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	var result *multierror.Error

	if s.SessionID == "" {
		result = multierror.Append(result, fmt.Errorf("session_id must not be empty"))
	}
	if !s.StopTime.IsZero() && s.StopTime.Before(s.StartTime) {
		result = multierror.Append(result, fmt.Errorf("session %s stops before it starts", s.SessionID))
	}

	nodeIDs := make(map[string]struct{}, len(s.TestResults))
	for i, t := range s.TestResults {
		if t.NodeID == "" {
			result = multierror.Append(result, fmt.Errorf("test result %d has an empty nodeid", i))
		}
		if !t.Outcome.Valid() {
			result = multierror.Append(result, fmt.Errorf("test %s has invalid outcome %q", t.NodeID, t.Outcome))
		}
		if t.Duration < 0 {
			result = multierror.Append(result, fmt.Errorf("test %s has negative duration %v", t.NodeID, t.Duration))
		}
		nodeIDs[t.NodeID] = struct{}{}
	}

	for _, g := range s.RerunGroups {
		if len(g.Attempts) < 2 {
			result = multierror.Append(result, fmt.Errorf("rerun group %s needs at least one prior attempt", g.NodeID))
		}
		for _, a := range g.Attempts {
			if a.NodeID != g.NodeID {
				result = multierror.Append(result, fmt.Errorf("rerun group %s contains attempt for %s", g.NodeID, a.NodeID))
			}
		}
		if _, ok := nodeIDs[g.NodeID]; !ok {
			result = multierror.Append(result, fmt.Errorf("rerun group %s has no matching test result", g.NodeID))
		}
	}

	return result.ErrorOrNil()
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.TestingSystem = maps.Clone(s.TestingSystem)
	c.Tags = maps.Clone(s.Tags)
	c.TestResults = append([]TestResult(nil), s.TestResults...)
	if s.RerunGroups != nil {
		c.RerunGroups = make([]RerunTestGroup, len(s.RerunGroups))
		for i, g := range s.RerunGroups {
			c.RerunGroups[i] = RerunTestGroup{
				NodeID:   g.NodeID,
				Attempts: append([]TestResult(nil), g.Attempts...),
			}
		}
	}
	return &c
}
