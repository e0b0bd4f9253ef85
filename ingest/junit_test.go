package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfgo/testinsight/model"
)

const suitesXML = `<?xml version="1.0" encoding="utf-8"?>
<testsuites>
  <testsuite name="pytest" tests="6" failures="1" errors="1" skipped="2" time="7.5" timestamp="2024-10-01T12:00:00" hostname="ci-runner-3">
    <properties>
      <property name="branch" value="main"/>
    </properties>
    <testcase classname="tests.test_api" name="test_get" time="1.0"/>
    <testcase classname="tests.test_api" name="test_post" time="2.0">
      <failure message="AssertionError: 500 != 200">Traceback here</failure>
      <system-out>request sent</system-out>
    </testcase>
    <testcase classname="tests.test_api" name="test_boom" time="0.5">
      <error message="fixture exploded"/>
    </testcase>
    <testcase classname="tests.test_api" name="test_later" time="0">
      <skipped message="not yet"/>
    </testcase>
    <testcase classname="tests.test_api" name="test_known_bug" time="0.1">
      <skipped type="pytest.xfail" message="bug 12"/>
    </testcase>
    <testcase classname="tests.test_db" name="test_flaky (retry 1)" time="1.0">
      <failure message="timeout"/>
    </testcase>
    <testcase classname="tests.test_db" name="test_flaky (final)" time="1.5"/>
  </testsuite>
</testsuites>`

const singleSuiteXML = `<testsuite name="unit" tests="1" time="0.2">
  <testcase classname="pkg" name="test_one" time="0.2"/>
</testsuite>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNormalizeTestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "test_a", want: "test_a"},
		{in: "test_a (retry 1)", want: "test_a"},
		{in: "test_a (final)", want: "test_a"},
		{in: "test_a (retry 2) (final)", want: "test_a"},
		{in: "test_a[param]", want: "test_a[param]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeTestName(tt.in), tt.in)
	}

	assert.True(t, isRetryAttempt("x (retry 3)"))
	assert.True(t, isRetryAttempt("x (final)"))
	assert.False(t, isRetryAttempt("x (timeout)"))
}

func TestFromJUnit(t *testing.T) {
	suites, err := ParseJUnit([]byte(suitesXML))
	require.NoError(t, err)

	s, err := FromJUnit(suites, Options{SessionID: "run-1", SUTName: "api", Tags: map[string]string{"env": "ci"}})
	require.NoError(t, err)

	assert.Equal(t, "run-1", s.SessionID)
	assert.Equal(t, "api", s.SUTName)
	assert.Equal(t, "ci-runner-3", s.TestingSystemName)
	assert.Equal(t, map[string]string{"branch": "main", "env": "ci"}, s.Tags)
	assert.Equal(t, time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC), s.StartTime)
	assert.Equal(t, 7500*time.Millisecond, s.Duration())

	outcomes := map[string]model.Outcome{}
	for _, r := range s.TestResults {
		outcomes[r.NodeID] = r.Outcome
	}
	assert.Equal(t, map[string]model.Outcome{
		"tests.test_api::test_get":       model.OutcomePassed,
		"tests.test_api::test_post":      model.OutcomeFailed,
		"tests.test_api::test_boom":      model.OutcomeError,
		"tests.test_api::test_later":     model.OutcomeSkipped,
		"tests.test_api::test_known_bug": model.OutcomeXFailed,
		"tests.test_db::test_flaky":      model.OutcomePassed,
	}, outcomes)

	post, ok := s.Result("tests.test_api::test_post")
	require.True(t, ok)
	assert.Contains(t, post.LongRepr, "AssertionError: 500 != 200")
	assert.Equal(t, "request sent", post.CapturedStdout)
	assert.Equal(t, s.StartTime.Add(time.Second), post.StartTime)

	require.Len(t, s.RerunGroups, 1)
	g := s.RerunGroups[0]
	assert.Equal(t, "tests.test_db::test_flaky", g.NodeID)
	assert.Len(t, g.AllAttempts(), 2)
	assert.Equal(t, model.OutcomeRerun, g.PriorAttempts()[0].Outcome)
	assert.Equal(t, model.OutcomePassed, g.FinalOutcome())
	assert.True(t, g.Recovered())
}

func TestFromJUnitDefaults(t *testing.T) {
	suites, err := ParseJUnit([]byte(singleSuiteXML))
	require.NoError(t, err)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := FromJUnit(suites, Options{Now: func() time.Time { return now }})
	require.NoError(t, err)

	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, "unit", s.SUTName)
	assert.Equal(t, now, s.StartTime)
	require.Len(t, s.TestResults, 1)
	assert.Equal(t, "pkg::test_one", s.TestResults[0].NodeID)
	assert.Empty(t, s.RerunGroups)
}

func TestParseJUnitFileErrors(t *testing.T) {
	_, err := ParseJUnitFile(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)

	path := writeFile(t, t.TempDir(), "bad.xml", "<html>")
	_, err = ParseJUnitFile(path)
	require.Error(t, err)
}

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a.xml", suitesXML),
		writeFile(t, dir, "broken.xml", "not xml at all"),
		writeFile(t, dir, "b.xml", singleSuiteXML),
	}

	sessions, err := ImportFiles(context.Background(), zerolog.Nop(), paths, Options{SessionID: "batch"}, 2)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)

	require.Len(t, sessions, 2)
	assert.Equal(t, "batch-1", sessions[0].SessionID)
	assert.Equal(t, "batch-3", sessions[1].SessionID)

	none, err := ImportFiles(context.Background(), zerolog.Nop(), nil, Options{}, 4)
	require.NoError(t, err)
	assert.Empty(t, none)
}
