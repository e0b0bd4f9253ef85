package filter

// This file contains the predicate types and their constructors. Constructors validate
// their arguments up front so that a bad parameter is reported where it was supplied.

import (
	"math"
	"time"

	"github.com/perfgo/testinsight/model"
)

// TestPredicate reports whether a single test result matches.
type TestPredicate func(t *model.TestResult) bool

// SessionPredicate reports whether a session matches.
type SessionPredicate func(s *model.Session) bool

// AllTests combines predicates with AND. An empty list matches everything.
func AllTests(preds ...TestPredicate) TestPredicate {
	return func(t *model.TestResult) bool {
		for _, p := range preds {
			if !p(t) {
				return false
			}
		}
		return true
	}
}

// AllSessions combines predicates with AND. An empty list matches everything.
func AllSessions(preds ...SessionPredicate) SessionPredicate {
	return func(s *model.Session) bool {
		for _, p := range preds {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// AnyTest lifts a test predicate to a session predicate that holds when at least one of
// the session's test results matches.
func AnyTest(pred TestPredicate) SessionPredicate {
	return func(s *model.Session) bool {
		for i := range s.TestResults {
			if pred(&s.TestResults[i]) {
				return true
			}
		}
		return false
	}
}

// TestPattern matches pattern against the named test field.
func TestPattern(field, pattern string, useRegex bool) (TestPredicate, error) {
	f, err := ParseTestField(field)
	if err != nil {
		return nil, err
	}
	p, err := CompilePattern(pattern, useRegex)
	if err != nil {
		return nil, err
	}
	return func(t *model.TestResult) bool {
		return p.Match(Stringify(testValue(t, f)))
	}, nil
}

func TestOutcome(outcome model.Outcome) (TestPredicate, error) {
	if !outcome.Valid() {
		return nil, NewInvalidQueryParameterError("outcome", "unknown outcome "+string(outcome))
	}
	return func(t *model.TestResult) bool {
		return t.Outcome == outcome
	}, nil
}

// TestDurationBetween matches durations in [low, high), or [low, +Inf] when high is infinite.
func TestDurationBetween(low, high float64) (TestPredicate, error) {
	if err := ValidateRange("duration", low, high); err != nil {
		return nil, err
	}
	return func(t *model.TestResult) bool {
		return InRange(t.Duration, low, high)
	}, nil
}

func TestWarning(want bool) TestPredicate {
	return func(t *model.TestResult) bool {
		return t.HasWarning == want
	}
}

func SessionSUT(name string) (SessionPredicate, error) {
	if name == "" {
		return nil, NewInvalidQueryParameterError("sut_name", "must not be empty")
	}
	return func(s *model.Session) bool {
		return s.SUTName == name
	}, nil
}

func SessionTestingSystem(name string) (SessionPredicate, error) {
	if name == "" {
		return nil, NewInvalidQueryParameterError("testing_system", "must not be empty")
	}
	return func(s *model.Session) bool {
		return s.TestingSystemName == name
	}, nil
}

// SessionIDGlob matches session ids against a shell glob such as "nightly-2024-*".
func SessionIDGlob(pattern string) (SessionPredicate, error) {
	g, err := CompileGlob(pattern)
	if err != nil {
		return nil, err
	}
	return func(s *model.Session) bool {
		return g.Match(s.SessionID)
	}, nil
}

// SessionStartedAfter matches sessions starting at or after ts.
func SessionStartedAfter(ts time.Time) SessionPredicate {
	return func(s *model.Session) bool {
		return !s.StartTime.Before(ts)
	}
}

// SessionStartedBefore matches sessions starting strictly before ts.
func SessionStartedBefore(ts time.Time) SessionPredicate {
	return func(s *model.Session) bool {
		return s.StartTime.Before(ts)
	}
}

// SessionStartedBetween matches sessions starting in [from, to).
func SessionStartedBetween(from, to time.Time) (SessionPredicate, error) {
	if to.Before(from) {
		return nil, NewInvalidQueryParameterError("date_range", "end must not be before start")
	}
	after, before := SessionStartedAfter(from), SessionStartedBefore(to)
	return func(s *model.Session) bool {
		return after(s) && before(s)
	}, nil
}

// SessionWithin matches sessions started within window of now.
func SessionWithin(now time.Time, window time.Duration) (SessionPredicate, error) {
	if window <= 0 {
		return nil, NewInvalidQueryParameterError("window", "must be positive")
	}
	return SessionStartedAfter(now.Add(-window)), nil
}

func SessionWarning(want bool) SessionPredicate {
	return func(s *model.Session) bool {
		return s.HasWarnings() == want
	}
}

func SessionReruns(want bool) SessionPredicate {
	return func(s *model.Session) bool {
		return s.HasReruns() == want
	}
}

// SessionTag matches sessions whose tag key equals value.
func SessionTag(key, value string) (SessionPredicate, error) {
	if key == "" {
		return nil, NewInvalidQueryParameterError("tag", "key must not be empty")
	}
	return func(s *model.Session) bool {
		v, ok := s.Tags[key]
		return ok && v == value
	}, nil
}

// SessionPattern matches pattern against the named session field.
func SessionPattern(field, pattern string, useRegex bool) (SessionPredicate, error) {
	f, err := ParseSessionField(field)
	if err != nil {
		return nil, err
	}
	p, err := CompilePattern(pattern, useRegex)
	if err != nil {
		return nil, err
	}
	return func(s *model.Session) bool {
		return p.Match(Stringify(sessionValue(s, f)))
	}, nil
}

// SessionDurationBetween matches session durations in seconds, with InRange semantics.
func SessionDurationBetween(low, high float64) (SessionPredicate, error) {
	if err := ValidateRange("session_duration", low, high); err != nil {
		return nil, err
	}
	return func(s *model.Session) bool {
		return InRange(s.Duration().Seconds(), low, high)
	}, nil
}

// Inf is a convenience for open-ended ranges.
var Inf = math.Inf(1)
