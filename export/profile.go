package export

// This file contains the pprof export. Each test result becomes a sample whose stack is
// sut -> test file -> test, so `go tool pprof` can aggregate time by file or by test.

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/pprof/profile"

	"github.com/perfgo/testinsight/model"
)

// DurationProfile builds a profile with two sample values per test result: the duration
// in nanoseconds and a run count of 1. Samples carry outcome and session labels.
func DurationProfile(sessions []*model.Session) (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "duration", Unit: "nanoseconds"},
			{Type: "runs", Unit: "count"},
		},
		PeriodType: &profile.ValueType{Type: "duration", Unit: "nanoseconds"},
		Period:     1,
	}

	functions := make(map[string]*profile.Function)
	locations := make(map[string]*profile.Location)
	location := func(name, file string) *profile.Location {
		if loc, ok := locations[name]; ok {
			return loc
		}
		fn := &profile.Function{
			ID:         uint64(len(functions) + 1),
			Name:       name,
			SystemName: name,
			Filename:   file,
		}
		functions[name] = fn
		p.Function = append(p.Function, fn)

		loc := &profile.Location{
			ID:   uint64(len(locations) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		locations[name] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	var start, end time.Time
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if start.IsZero() || s.StartTime.Before(start) {
			start = s.StartTime
		}
		if s.StopTime.After(end) {
			end = s.StopTime
		}

		sut := s.SUTName
		if sut == "" {
			sut = "unknown"
		}
		for _, t := range s.TestResults {
			file := testFile(t.NodeID)
			stack := []*profile.Location{location(t.NodeID, file)}
			if file != t.NodeID {
				stack = append(stack, location(file, file))
			}
			stack = append(stack, location("sut:"+sut, ""))
			p.Sample = append(p.Sample, &profile.Sample{
				Location: stack,
				Value:    []int64{int64(t.Duration * float64(time.Second)), 1},
				Label: map[string][]string{
					"outcome": {t.Outcome.String()},
					"session": {s.SessionID},
				},
			})
		}
	}

	if !start.IsZero() {
		p.TimeNanos = start.UnixNano()
		p.DurationNanos = end.Sub(start).Nanoseconds()
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid duration profile: %w", err)
	}
	return p, nil
}

// WriteProfile writes p in gzipped protobuf form.
func WriteProfile(w io.Writer, p *profile.Profile) error {
	if err := p.Write(w); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// testFile returns the file part of a pytest nodeid, "tests/test_a.py" for
// "tests/test_a.py::TestX::test_y".
func testFile(nodeID string) string {
	if i := strings.Index(nodeID, "::"); i >= 0 {
		return nodeID[:i]
	}
	return nodeID
}
