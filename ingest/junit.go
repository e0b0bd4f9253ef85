// Package ingest converts JUnit XML reports into sessions.
package ingest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jstemmer/go-junit-report/v2/junit"

	"github.com/perfgo/testinsight/model"
)

var (
	retryRegex          = regexp.MustCompile(`\s*\((retry \d+|final)\)$`)
	trailingSuffixRegex = regexp.MustCompile(`\s*\([^)]+\)$`)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Options describe the session a report is converted into.
type Options struct {
	SessionID     string
	SUTName       string
	TestingSystem string
	Tags          map[string]string
	// Now supplies the session start when the report carries no timestamp.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// ParseJUnitFile reads a JUnit XML file with either a <testsuites> or a single
// <testsuite> root element.
func ParseJUnitFile(path string) (*junit.Testsuites, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	suites, err := ParseJUnit(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JUnit XML %s: %w", path, err)
	}
	return suites, nil
}

// ParseJUnit decodes JUnit XML from memory.
func ParseJUnit(data []byte) (*junit.Testsuites, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("no JUnit root element: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "testsuites":
			var suites junit.Testsuites
			if err := decoder.DecodeElement(&suites, &start); err != nil {
				return nil, err
			}
			return &suites, nil
		case "testsuite":
			var suite junit.Testsuite
			if err := decoder.DecodeElement(&suite, &start); err != nil {
				return nil, err
			}
			return &junit.Testsuites{Suites: []junit.Testsuite{suite}}, nil
		default:
			return nil, fmt.Errorf("unexpected root element <%s>", start.Name.Local)
		}
	}
}

// normalizeTestName strips trailing parenthesised suffixes such as "(retry 1)" or "(final)".
func normalizeTestName(name string) string {
	for {
		stripped := trailingSuffixRegex.ReplaceAllString(name, "")
		if stripped == name {
			return name
		}
		name = stripped
	}
}

func isRetryAttempt(name string) bool {
	return retryRegex.MatchString(name)
}

func nodeID(tc junit.Testcase) string {
	name := normalizeTestName(tc.Name)
	if tc.Classname == "" {
		return name
	}
	return tc.Classname + "::" + name
}

func outcomeOf(tc junit.Testcase) model.Outcome {
	switch {
	case tc.Failure != nil:
		return model.OutcomeFailed
	case tc.Error != nil:
		return model.OutcomeError
	case tc.Skipped != nil:
		if tc.Skipped.Type == "pytest.xfail" || strings.HasPrefix(strings.ToLower(tc.Skipped.Message), "xfail") {
			return model.OutcomeXFailed
		}
		return model.OutcomeSkipped
	default:
		return model.OutcomePassed
	}
}

func longRepr(tc junit.Testcase) string {
	r := tc.Failure
	if r == nil {
		r = tc.Error
	}
	if r == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join([]string{r.Message, strings.TrimSpace(r.Data)}, "\n"))
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

type attempt struct {
	nodeID string
	result model.TestResult
	retry  bool
}

// FromJUnit converts parsed suites into one session. Test cases are laid out back to
// back from the suite timestamp. Cases named "<test> (retry N)" or "<test> (final)" are
// folded into a rerun group whose last attempt is the final result; earlier failing
// attempts are recorded as RERUN.
func FromJUnit(suites *junit.Testsuites, opts Options) (*model.Session, error) {
	if suites == nil {
		return nil, fmt.Errorf("no test suites")
	}

	s := &model.Session{
		SessionID:         opts.SessionID,
		SUTName:           opts.SUTName,
		TestingSystemName: opts.TestingSystem,
		TestResults:       []model.TestResult{},
		Tags:              map[string]string{},
	}
	if s.SessionID == "" {
		s.SessionID = uuid.NewString()
	}

	fallback := opts.now()
	var attempts []attempt
	var start, stop time.Time

	for _, suite := range suites.Suites {
		suiteStart, ok := parseTimestamp(suite.Timestamp)
		if !ok {
			suiteStart = fallback
		}
		if s.SUTName == "" {
			s.SUTName = suite.Name
		}
		if s.TestingSystemName == "" {
			s.TestingSystemName = suite.Hostname
		}
		if suite.Properties != nil {
			for _, p := range *suite.Properties {
				s.Tags[p.Name] = p.Value
			}
		}

		cursor := suiteStart
		for _, tc := range suite.Testcases {
			duration := parseSeconds(tc.Time)
			r := model.TestResult{
				NodeID:    nodeID(tc),
				Outcome:   outcomeOf(tc),
				StartTime: cursor,
				StopTime:  cursor.Add(time.Duration(duration * float64(time.Second))),
				Duration:  duration,
				LongRepr:  longRepr(tc),
			}
			if tc.SystemOut != nil {
				r.CapturedStdout = tc.SystemOut.Data
			}
			if tc.SystemErr != nil {
				r.CapturedStderr = tc.SystemErr.Data
			}
			attempts = append(attempts, attempt{nodeID: r.NodeID, result: r, retry: isRetryAttempt(tc.Name)})
			cursor = r.StopTime
		}

		suiteStop := suiteStart.Add(time.Duration(parseSeconds(suite.Time) * float64(time.Second)))
		if cursor.After(suiteStop) {
			suiteStop = cursor
		}
		if start.IsZero() || suiteStart.Before(start) {
			start = suiteStart
		}
		if suiteStop.After(stop) {
			stop = suiteStop
		}
	}

	if start.IsZero() {
		start, stop = fallback, fallback
	}
	s.StartTime, s.StopTime = start, stop

	for k, v := range opts.Tags {
		s.Tags[k] = v
	}

	s.TestResults, s.RerunGroups = groupAttempts(attempts)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("converted session is invalid: %w", err)
	}
	return s, nil
}

// groupAttempts keeps one final result per nodeid, in order of first appearance, and
// builds rerun groups for nodeids that ran more than once with retry markers.
func groupAttempts(attempts []attempt) ([]model.TestResult, []model.RerunTestGroup) {
	var order []string
	byNode := make(map[string][]attempt)
	for _, a := range attempts {
		if _, ok := byNode[a.nodeID]; !ok {
			order = append(order, a.nodeID)
		}
		byNode[a.nodeID] = append(byNode[a.nodeID], a)
	}

	results := make([]model.TestResult, 0, len(order))
	var groups []model.RerunTestGroup
	for _, id := range order {
		runs := byNode[id]
		retried := false
		for _, a := range runs {
			retried = retried || a.retry
		}

		if len(runs) == 1 || !retried {
			for _, a := range runs {
				results = append(results, a.result)
			}
			continue
		}

		all := make([]model.TestResult, 0, len(runs))
		for i, a := range runs {
			r := a.result
			if i < len(runs)-1 && r.Outcome.IsFailure() {
				r.Outcome = model.OutcomeRerun
			}
			all = append(all, r)
		}
		results = append(results, all[len(all)-1])
		groups = append(groups, model.NewRerunTestGroup(id, all...))
	}
	return results, groups
}
