package query_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfgo/testinsight/filter"
	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/query"
)

type sliceSource []*model.Session

func (s sliceSource) LoadAll(context.Context) ([]*model.Session, error) {
	return s, nil
}

type failingSource struct{}

func (failingSource) LoadAll(context.Context) ([]*model.Session, error) {
	return nil, errors.New("disk on fire")
}

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func session(id, sut string, start time.Time, tests ...model.TestResult) *model.Session {
	return &model.Session{
		SessionID:   id,
		SUTName:     sut,
		StartTime:   start,
		StopTime:    start.Add(time.Minute),
		TestResults: tests,
		Tags:        map[string]string{},
	}
}

func result(nodeID string, outcome model.Outcome, duration float64) model.TestResult {
	return model.TestResult{NodeID: nodeID, Outcome: outcome, Duration: duration}
}

func ids(sessions []*model.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.SessionID)
	}
	return out
}

// Three sessions for "svc" where test t1 ran for 1s, 12s and 3s.
func durationFixture() sliceSource {
	return sliceSource{
		session("s1", "svc", now.Add(-3*time.Hour), result("t1", model.OutcomePassed, 1.0), result("t2", model.OutcomePassed, 0.1)),
		session("s2", "svc", now.Add(-2*time.Hour), result("t1", model.OutcomePassed, 12.0), result("t2", model.OutcomeFailed, 0.2), result("t3", model.OutcomeSkipped, 0)),
		session("s3", "svc", now.Add(-1*time.Hour), result("t1", model.OutcomePassed, 3.0)),
	}
}

func TestExistentialFilterReturnsFullSession(t *testing.T) {
	t.Parallel()

	src := durationFixture()
	got, err := query.New(src).
		FilterByTest().
		WithDurationBetween(10.0, math.Inf(1)).
		Apply().
		Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"s2"}, ids(got))
	assert.Len(t, got[0].TestResults, 3)
	assert.Same(t, src[1], got[0])
}

func TestTestPredicatesMustMatchTheSameTest(t *testing.T) {
	t.Parallel()

	// s2 has a slow test (t1) and a failing test (t2) but no slow failing test.
	got, err := query.New(durationFixture()).
		FilterByTest().
		WithDurationBetween(10, filter.Inf).
		WithOutcome(model.OutcomeFailed).
		Apply().
		Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExecuteIsIdempotentAndKeepsStoreOrder(t *testing.T) {
	t.Parallel()

	src := sliceSource{
		session("b", "svc", now.Add(-time.Hour)),
		session("a", "svc", now.Add(-3*time.Hour)),
		session("c", "other", now.Add(-2*time.Hour)),
	}
	q := query.New(src).WithSUT("svc")

	first, err := q.Execute(context.Background())
	require.NoError(t, err)
	second, err := q.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, ids(first))
	assert.Equal(t, ids(first), ids(second))
}

func TestAndConjunctionIsMonotonic(t *testing.T) {
	t.Parallel()

	src := durationFixture()
	src[2].Tags["env"] = "prod"

	broad, err := query.New(src).WithSUT("svc").Execute(context.Background())
	require.NoError(t, err)
	narrow, err := query.New(src).WithSUT("svc").WithSessionTag("env", "prod").Execute(context.Background())
	require.NoError(t, err)

	assert.Subset(t, ids(broad), ids(narrow))
	assert.Equal(t, []string{"s3"}, ids(narrow))
}

func TestSessionPredicates(t *testing.T) {
	t.Parallel()

	src := durationFixture()
	src[0].SessionID = "nightly-1"
	src[0].TestResults[0].HasWarning = true
	src[1].RerunGroups = []model.RerunTestGroup{model.NewRerunTestGroup("t2",
		model.TestResult{NodeID: "t2", Outcome: model.OutcomeRerun},
		model.TestResult{NodeID: "t2", Outcome: model.OutcomeFailed, StartTime: now},
	)}

	tests := []struct {
		name  string
		build func(q *query.Query) *query.Query
		want  []string
	}{
		{name: "in last hours", build: func(q *query.Query) *query.Query { return q.InLastHours(2) }, want: []string{"s2", "s3"}},
		{name: "in last minutes", build: func(q *query.Query) *query.Query { return q.InLastMinutes(61) }, want: []string{"s3"}},
		{name: "in last days", build: func(q *query.Query) *query.Query { return q.InLastDays(1) }, want: []string{"nightly-1", "s2", "s3"}},
		{name: "after is inclusive", build: func(q *query.Query) *query.Query { return q.After(now.Add(-2 * time.Hour)) }, want: []string{"s2", "s3"}},
		{name: "before is exclusive", build: func(q *query.Query) *query.Query { return q.Before(now.Add(-2 * time.Hour)) }, want: []string{"nightly-1"}},
		{name: "date range", build: func(q *query.Query) *query.Query {
			return q.DateRange(now.Add(-3*time.Hour), now.Add(-time.Hour))
		}, want: []string{"nightly-1", "s2"}},
		{name: "session id glob", build: func(q *query.Query) *query.Query { return q.WithSessionID("nightly-*") }, want: []string{"nightly-1"}},
		{name: "warnings", build: func(q *query.Query) *query.Query { return q.WithWarning(true) }, want: []string{"nightly-1"}},
		{name: "reruns", build: func(q *query.Query) *query.Query { return q.WithReruns(true) }, want: []string{"s2"}},
		{name: "no reruns", build: func(q *query.Query) *query.Query { return q.WithReruns(false) }, want: []string{"nightly-1", "s3"}},
		{name: "session outcome", build: func(q *query.Query) *query.Query { return q.WithOutcome(model.OutcomeSkipped) }, want: []string{"s2"}},
		{name: "session field regex", build: func(q *query.Query) *query.Query { return q.WithSessionField("session_id", "^s[23]$", true) }, want: []string{"s2", "s3"}},
		{name: "custom", build: func(q *query.Query) *query.Query {
			return q.Where(func(s *model.Session) bool { return len(s.TestResults) == 1 })
		}, want: []string{"s3"}},
		{name: "order descending with limit", build: func(q *query.Query) *query.Query { return q.OrderByStartTime(true).Limit(2) }, want: []string{"s3", "s2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := tt.build(query.New(src, query.WithClock(clock)))
			require.NoError(t, q.Err())
			got, err := q.Execute(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestTestFilterPredicates(t *testing.T) {
	t.Parallel()

	src := sliceSource{
		session("a", "svc", now, model.TestResult{NodeID: "tests/test_api.py::test_login", Outcome: model.OutcomeFailed, LongRepr: "KeyError: token", CapturedLog: "retrying"}),
		session("b", "svc", now, model.TestResult{NodeID: "tests/test_db.py::test_insert", Outcome: model.OutcomePassed, HasWarning: true}),
	}

	tests := []struct {
		name  string
		build func(f *query.TestFilter) *query.TestFilter
		want  []string
	}{
		{name: "nodeid substring", build: func(f *query.TestFilter) *query.TestFilter { return f.WithPattern("test_api") }, want: []string{"a"}},
		{name: "regex alternation", build: func(f *query.TestFilter) *query.TestFilter { return f.WithPattern("api|db", query.AsRegex()) }, want: []string{"a", "b"}},
		{name: "other field", build: func(f *query.TestFilter) *query.TestFilter {
			return f.WithPattern("KeyError", query.InField("longreprtext"))
		}, want: []string{"a"}},
		{name: "warning", build: func(f *query.TestFilter) *query.TestFilter { return f.WithWarning(true) }, want: []string{"b"}},
		{name: "nodeid containing", build: func(f *query.TestFilter) *query.TestFilter { return f.WithNodeIDContaining("insert") }, want: []string{"b"}},
		{name: "log containing", build: func(f *query.TestFilter) *query.TestFilter { return f.WithLogContaining("retry") }, want: []string{"a"}},
		{name: "error containing", build: func(f *query.TestFilter) *query.TestFilter { return f.WithErrorContaining("token") }, want: []string{"a"}},
		{name: "custom", build: func(f *query.TestFilter) *query.TestFilter {
			return f.WithCustom(func(t *model.TestResult) bool { return t.Outcome.IsPass() })
		}, want: []string{"b"}},
		{name: "empty sub-filter keeps all", build: func(f *query.TestFilter) *query.TestFilter { return f }, want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.build(query.New(src).FilterByTest()).Apply().Execute(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestBuildErrorsSurfaceImmediately(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func(q *query.Query) *query.Query
	}{
		{name: "non-positive days", build: func(q *query.Query) *query.Query { return q.InLastDays(0) }},
		{name: "negative hours", build: func(q *query.Query) *query.Query { return q.InLastHours(-1) }},
		{name: "negative duration", build: func(q *query.Query) *query.Query {
			return q.FilterByTest().WithDurationBetween(-1, 5).Apply()
		}},
		{name: "unknown field", build: func(q *query.Query) *query.Query {
			return q.FilterByTest().WithPattern("x", query.InField("secret")).Apply()
		}},
		{name: "inverted date range", build: func(q *query.Query) *query.Query { return q.DateRange(now, now.Add(-time.Hour)) }},
		{name: "empty sut", build: func(q *query.Query) *query.Query { return q.WithSUT("") }},
		{name: "zero limit", build: func(q *query.Query) *query.Query { return q.Limit(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := tt.build(query.New(durationFixture()))
			var paramErr *filter.InvalidQueryParameterError
			require.ErrorAs(t, q.Err(), &paramErr)

			_, err := q.Execute(context.Background())
			require.ErrorAs(t, err, &paramErr)
		})
	}
}

func TestInvalidRegexIsPatternError(t *testing.T) {
	t.Parallel()

	q := query.New(durationFixture()).FilterByTest().WithPattern("(", query.AsRegex()).Apply()
	var patErr *filter.InvalidPatternError
	require.ErrorAs(t, q.Err(), &patErr)
}

func TestFirstBuildErrorWins(t *testing.T) {
	t.Parallel()

	q := query.New(durationFixture()).InLastDays(0).WithSessionID("[")
	var paramErr *filter.InvalidQueryParameterError
	require.ErrorAs(t, q.Err(), &paramErr)
	assert.Equal(t, "days", paramErr.Parameter)
}

func TestStateMachine(t *testing.T) {
	t.Parallel()

	t.Run("execute while in test mode", func(t *testing.T) {
		t.Parallel()

		q := query.New(durationFixture())
		q.FilterByTest().WithOutcome(model.OutcomeFailed)
		assert.Equal(t, query.ModeTest, q.Mode())

		_, err := q.Execute(context.Background())
		var stateErr *query.QueryStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, "Execute", stateErr.Operation)
		assert.Equal(t, query.ModeTest, stateErr.Mode)
		assert.NoError(t, q.Err())
	})

	t.Run("session predicate while in test mode", func(t *testing.T) {
		t.Parallel()

		q := query.New(durationFixture())
		q.FilterByTest()
		q.WithSUT("svc")

		var stateErr *query.QueryStateError
		require.ErrorAs(t, q.Err(), &stateErr)
		assert.Equal(t, "WithSUT", stateErr.Operation)
	})

	t.Run("apply twice", func(t *testing.T) {
		t.Parallel()

		q := query.New(durationFixture())
		f := q.FilterByTest()
		f.Apply()
		f.Apply()

		var stateErr *query.QueryStateError
		require.ErrorAs(t, q.Err(), &stateErr)
		assert.Equal(t, "Apply", stateErr.Operation)
	})

	t.Run("two test filters in sequence", func(t *testing.T) {
		t.Parallel()

		got, err := query.New(durationFixture()).
			FilterByTest().WithOutcome(model.OutcomeFailed).Apply().
			FilterByTest().WithOutcome(model.OutcomeSkipped).Apply().
			Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"s2"}, ids(got))
	})
}

func TestEmptySourceReturnsEmpty(t *testing.T) {
	t.Parallel()

	got, err := query.New(sliceSource{}).WithSUT("svc").Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestSourceErrorIsWrapped(t *testing.T) {
	t.Parallel()

	_, err := query.New(failingSource{}).Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestExecuteOn(t *testing.T) {
	t.Parallel()

	src := durationFixture()
	got, err := query.New(nil).FilterByTest().WithOutcome(model.OutcomeFailed).Apply().ExecuteOn(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids(got))
}
