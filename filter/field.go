package filter

// This file contains the field allow-list used to resolve named attributes off
// test results and sessions.

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/perfgo/testinsight/model"
)

// Field is a canonical attribute name from the allow-list.
type Field string

const (
	FieldNodeID         Field = "nodeid"
	FieldOutcome        Field = "outcome"
	FieldDuration       Field = "duration"
	FieldStartTime      Field = "start_time"
	FieldStopTime       Field = "stop_time"
	FieldHasWarning     Field = "has_warning"
	FieldCapturedLog    Field = "captured_log"
	FieldCapturedStdout Field = "captured_stdout"
	FieldCapturedStderr Field = "captured_stderr"
	FieldLongRepr       Field = "long_representation"

	FieldSessionID     Field = "session_id"
	FieldSUTName       Field = "sut_name"
	FieldTestingSystem Field = "testing_system"
	FieldHasWarnings   Field = "has_warnings"

	// TagPrefix selects a session tag, e.g. "tags.env".
	TagPrefix = "tags."
)

var testFields = map[Field]struct{}{
	FieldNodeID:         {},
	FieldOutcome:        {},
	FieldDuration:       {},
	FieldStartTime:      {},
	FieldStopTime:       {},
	FieldHasWarning:     {},
	FieldCapturedLog:    {},
	FieldCapturedStdout: {},
	FieldCapturedStderr: {},
	FieldLongRepr:       {},
}

var sessionFields = map[Field]struct{}{
	FieldSessionID:     {},
	FieldSUTName:       {},
	FieldTestingSystem: {},
	FieldStartTime:     {},
	FieldStopTime:      {},
	FieldDuration:      {},
	FieldHasWarnings:   {},
}

// Short names used by the on-disk format.
var aliases = map[string]Field{
	"caplog":       FieldCapturedLog,
	"capstdout":    FieldCapturedStdout,
	"capstderr":    FieldCapturedStderr,
	"longreprtext": FieldLongRepr,
}

func canonical(name string) Field {
	if f, ok := aliases[name]; ok {
		return f
	}
	return Field(name)
}

// ParseTestField resolves name against the test result allow-list.
func ParseTestField(name string) (Field, error) {
	f := canonical(name)
	if _, ok := testFields[f]; !ok {
		return "", NewInvalidQueryParameterError("field", fmt.Sprintf("unknown test field %q (allowed: %s)", name, allowed(testFields)))
	}
	return f, nil
}

// ParseSessionField resolves name against the session allow-list, including "tags.<key>".
func ParseSessionField(name string) (Field, error) {
	if key, ok := strings.CutPrefix(name, TagPrefix); ok {
		if key == "" {
			return "", NewInvalidQueryParameterError("field", "tag field needs a key, e.g. tags.env")
		}
		return Field(name), nil
	}
	f := Field(name)
	if _, ok := sessionFields[f]; !ok {
		return "", NewInvalidQueryParameterError("field", fmt.Sprintf("unknown session field %q (allowed: %s, tags.<key>)", name, allowed(sessionFields)))
	}
	return f, nil
}

func allowed(fields map[Field]struct{}) string {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// FieldValue resolves a named field off a test result or session. Entity must be a
// model.TestResult, *model.TestResult, model.Session or *model.Session.
func FieldValue(entity any, name string) (any, error) {
	switch e := entity.(type) {
	case model.TestResult:
		return testFieldValue(&e, name)
	case *model.TestResult:
		return testFieldValue(e, name)
	case model.Session:
		return sessionFieldValue(&e, name)
	case *model.Session:
		return sessionFieldValue(e, name)
	default:
		return nil, NewInvalidQueryParameterError("entity", fmt.Sprintf("unsupported type %T", entity))
	}
}

func testFieldValue(t *model.TestResult, name string) (any, error) {
	f, err := ParseTestField(name)
	if err != nil {
		return nil, err
	}
	return testValue(t, f), nil
}

func testValue(t *model.TestResult, f Field) any {
	switch f {
	case FieldNodeID:
		return t.NodeID
	case FieldOutcome:
		return t.Outcome
	case FieldDuration:
		return t.Duration
	case FieldStartTime:
		return t.StartTime
	case FieldStopTime:
		return t.StopTime
	case FieldHasWarning:
		return t.HasWarning
	case FieldCapturedLog:
		return t.CapturedLog
	case FieldCapturedStdout:
		return t.CapturedStdout
	case FieldCapturedStderr:
		return t.CapturedStderr
	case FieldLongRepr:
		return t.LongRepr
	}
	return nil
}

func sessionFieldValue(s *model.Session, name string) (any, error) {
	f, err := ParseSessionField(name)
	if err != nil {
		return nil, err
	}
	return sessionValue(s, f), nil
}

func sessionValue(s *model.Session, f Field) any {
	if key, ok := strings.CutPrefix(string(f), TagPrefix); ok {
		return s.Tags[key]
	}
	switch f {
	case FieldSessionID:
		return s.SessionID
	case FieldSUTName:
		return s.SUTName
	case FieldTestingSystem:
		return s.TestingSystemName
	case FieldStartTime:
		return s.StartTime
	case FieldStopTime:
		return s.StopTime
	case FieldDuration:
		return s.Duration().Seconds()
	case FieldHasWarnings:
		return s.HasWarnings()
	}
	return nil
}

// Stringify renders a field value for pattern matching.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case model.Outcome:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
