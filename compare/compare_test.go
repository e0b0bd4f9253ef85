package compare_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfgo/testinsight/compare"
	"github.com/perfgo/testinsight/model"
)

var t0 = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func session(id string, start time.Time, tests ...model.TestResult) *model.Session {
	return &model.Session{
		SessionID:   id,
		SUTName:     "svc",
		StartTime:   start,
		StopTime:    start.Add(time.Minute),
		TestResults: tests,
		Tags:        map[string]string{},
	}
}

func result(nodeID string, outcome model.Outcome, duration float64) model.TestResult {
	return model.TestResult{NodeID: nodeID, Outcome: outcome, Duration: duration}
}

func withRerun(s *model.Session, nodeID string) *model.Session {
	s.RerunGroups = append(s.RerunGroups, model.NewRerunTestGroup(nodeID,
		model.TestResult{NodeID: nodeID, Outcome: model.OutcomeRerun, StartTime: s.StartTime},
		model.TestResult{NodeID: nodeID, Outcome: model.OutcomePassed, StartTime: s.StartTime.Add(time.Second)},
	))
	return s
}

func nodeIDs(diffs []compare.TestDiff) []string {
	out := make([]string, 0, len(diffs))
	for _, d := range diffs {
		out = append(out, d.NodeID)
	}
	return out
}

func TestNewFailure(t *testing.T) {
	t.Parallel()

	res, err := compare.Compare(
		[]*model.Session{session("b", t0, result("t1", model.OutcomePassed, 1))},
		[]*model.Session{session("t", t0.Add(time.Hour), result("t1", model.OutcomeFailed, 1))},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"t1"}, nodeIDs(res.NewFailures))
	assert.Empty(t, res.FixedTests)
	assert.Equal(t, compare.VerdictRegressed, res.Verdict())
	assert.True(t, res.HasChanges())
}

func TestOutcomeCategories(t *testing.T) {
	t.Parallel()

	base := []*model.Session{withRerun(session("b", t0,
		result("fixed", model.OutcomeError, 1),
		result("xpass-broke", model.OutcomeXPassed, 1),
		result("still-failing", model.OutcomeFailed, 1),
		result("flaky-resolved", model.OutcomePassed, 1),
		result("flaky-new", model.OutcomePassed, 1),
		result("gone", model.OutcomePassed, 1),
	), "flaky-resolved")}
	target := []*model.Session{withRerun(session("t", t0.Add(time.Hour),
		result("fixed", model.OutcomePassed, 1),
		result("xpass-broke", model.OutcomeError, 1),
		result("still-failing", model.OutcomeFailed, 1),
		result("flaky-resolved", model.OutcomePassed, 1),
		result("flaky-new", model.OutcomePassed, 1),
		result("added", model.OutcomeSkipped, 1),
	), "flaky-new")}

	res, err := compare.Compare(base, target)
	require.NoError(t, err)

	assert.Equal(t, []string{"xpass-broke"}, nodeIDs(res.NewFailures))
	assert.Equal(t, []string{"fixed"}, nodeIDs(res.FixedTests))
	assert.Equal(t, []string{"flaky-new"}, nodeIDs(res.NewUnreliable))
	assert.Equal(t, []string{"flaky-resolved"}, nodeIDs(res.ResolvedUnreliable))
	assert.Equal(t, []string{"still-failing"}, res.Unchanged)
	assert.Equal(t, []string{"gone"}, res.UnmatchedBase)
	assert.Equal(t, []string{"added"}, res.UnmatchedTarget)
	assert.Equal(t, compare.VerdictMixed, res.Verdict())
}

func TestOutcomeChangeTakesPrecedenceOverReliability(t *testing.T) {
	t.Parallel()

	res, err := compare.Compare(
		[]*model.Session{session("b", t0, result("t1", model.OutcomePassed, 1))},
		[]*model.Session{withRerun(session("t", t0, result("t1", model.OutcomeFailed, 1)), "t1")},
	)
	require.NoError(t, err)
	assert.Equal(t, []compare.Category{compare.CategoryNewFailure}, res.Categories("t1"))
}

func TestEveryNodeIDLandsInExactlyOneOutcomeBucket(t *testing.T) {
	t.Parallel()

	outcomes := model.Outcomes
	var baseTests, targetTests []model.TestResult
	for i, b := range outcomes {
		for j, tg := range outcomes {
			id := string(b) + "->" + string(tg)
			baseTests = append(baseTests, result(id, b, float64(i+1)))
			targetTests = append(targetTests, result(id, tg, float64(j+1)))
		}
	}
	baseTests = append(baseTests, result("only-base", model.OutcomePassed, 1))
	targetTests = append(targetTests, result("only-target", model.OutcomePassed, 1))

	res, err := compare.Compare(
		[]*model.Session{session("b", t0, baseTests...)},
		[]*model.Session{session("t", t0, targetTests...)},
	)
	require.NoError(t, err)

	primary := map[compare.Category]bool{
		compare.CategoryNewFailure:         true,
		compare.CategoryFixed:              true,
		compare.CategoryNewUnreliable:      true,
		compare.CategoryResolvedUnreliable: true,
		compare.CategoryUnchanged:          true,
		compare.CategoryUnmatchedBase:      true,
		compare.CategoryUnmatchedTarget:    true,
	}
	all := append(append([]model.TestResult{}, baseTests...), targetTests[len(targetTests)-1])
	for _, tr := range all {
		n := 0
		for _, c := range res.Categories(tr.NodeID) {
			if primary[c] {
				n++
			}
		}
		assert.Equal(t, 1, n, "nodeid %s", tr.NodeID)
	}
}

func TestMostRecentOutcomeAndMeanDuration(t *testing.T) {
	t.Parallel()

	base := []*model.Session{
		session("b1", t0, result("t1", model.OutcomeFailed, 10)),
		session("b2", t0.Add(2*time.Hour), result("t1", model.OutcomePassed, 10)),
		session("b0", t0.Add(-time.Hour), result("t1", model.OutcomeFailed, 10)),
	}
	target := []*model.Session{
		session("t1", t0.Add(3*time.Hour), result("t1", model.OutcomeFailed, 12)),
		session("t2", t0.Add(4*time.Hour), result("t1", model.OutcomeFailed, 14)),
	}

	res, err := compare.Compare(base, target)
	require.NoError(t, err)

	require.Len(t, res.NewFailures, 1)
	d := res.NewFailures[0]
	assert.Equal(t, model.OutcomePassed, d.BaseOutcome)
	assert.InDelta(t, 10.0, d.BaseDuration, 1e-9)
	assert.InDelta(t, 13.0, d.TargetDuration, 1e-9)
	assert.InDelta(t, 0.3, d.Delta, 1e-9)
	assert.Equal(t, []string{"t1"}, nodeIDs(res.SlowerTests))
}

func TestPerformanceThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		base      float64
		target    float64
		threshold float64
		want      compare.Category
	}{
		{name: "thirty percent slower", base: 10, target: 13, threshold: 0.2, want: compare.CategorySlower},
		{name: "exactly at threshold", base: 10, target: 12, threshold: 0.2, want: compare.CategorySlower},
		{name: "exactly at threshold with rounding", base: 1.0, target: 1.2, threshold: 0.2, want: compare.CategorySlower},
		{name: "just below threshold", base: 1.0, target: 1.199999, threshold: 0.2, want: compare.CategoryUnchanged},
		{name: "faster", base: 10, target: 8, threshold: 0.2, want: compare.CategoryFaster},
		{name: "zero base slower", base: 0, target: 0.5, threshold: 0.2, want: compare.CategorySlower},
		{name: "both zero", base: 0, target: 0, threshold: 0.2, want: compare.CategoryUnchanged},
		{name: "custom threshold", base: 10, target: 14, threshold: 0.5, want: compare.CategoryUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := compare.Compare(
				[]*model.Session{session("b", t0, result("t1", model.OutcomePassed, tt.base))},
				[]*model.Session{session("t", t0, result("t1", model.OutcomePassed, tt.target))},
				compare.WithThreshold(tt.threshold),
			)
			require.NoError(t, err)

			var perf []compare.Category
			for _, c := range res.Categories("t1") {
				if c == compare.CategorySlower || c == compare.CategoryFaster {
					perf = append(perf, c)
				}
			}
			if tt.want == compare.CategoryUnchanged {
				assert.Empty(t, perf)
				return
			}
			assert.Equal(t, []compare.Category{tt.want}, perf)
		})
	}
}

func TestZeroBaseDeltaIsInfinite(t *testing.T) {
	t.Parallel()

	res, err := compare.Compare(
		[]*model.Session{session("b", t0, result("t1", model.OutcomePassed, 0))},
		[]*model.Session{session("t", t0, result("t1", model.OutcomePassed, 2))},
	)
	require.NoError(t, err)
	require.Len(t, res.SlowerTests, 1)
	assert.True(t, math.IsInf(res.SlowerTests[0].Delta, 1))

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"delta":null`)
}

func TestPerformanceOrdering(t *testing.T) {
	t.Parallel()

	res, err := compare.Compare(
		[]*model.Session{session("b", t0,
			result("a", model.OutcomePassed, 1), result("b", model.OutcomePassed, 1),
			result("c", model.OutcomePassed, 1), result("d", model.OutcomePassed, 1),
			result("e", model.OutcomePassed, 10), result("f", model.OutcomePassed, 10),
		)},
		[]*model.Session{session("t", t0,
			result("a", model.OutcomePassed, 2), result("b", model.OutcomePassed, 3),
			result("c", model.OutcomePassed, 3), result("d", model.OutcomePassed, 1.5),
			result("e", model.OutcomePassed, 5), result("f", model.OutcomePassed, 1),
		)},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "d"}, nodeIDs(res.SlowerTests))
	assert.Equal(t, []string{"f", "e"}, nodeIDs(res.FasterTests))
}

func TestInvalidThreshold(t *testing.T) {
	t.Parallel()

	for _, threshold := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		_, err := compare.Compare(nil, nil, compare.WithThreshold(threshold))
		var paramErr *compare.InvalidComparisonParameterError
		require.ErrorAs(t, err, &paramErr, "threshold %v", threshold)
		assert.Equal(t, "threshold", paramErr.Parameter)
	}
}

func TestZeroThresholdCountsAnyChange(t *testing.T) {
	t.Parallel()

	res, err := compare.Compare(
		[]*model.Session{session("b", t0,
			result("slower", model.OutcomePassed, 1), result("faster", model.OutcomePassed, 1),
			result("same", model.OutcomePassed, 1),
		)},
		[]*model.Session{session("t", t0.Add(time.Hour),
			result("slower", model.OutcomePassed, 1.001), result("faster", model.OutcomePassed, 0.999),
			result("same", model.OutcomePassed, 1),
		)},
		compare.WithThreshold(0),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"slower"}, nodeIDs(res.SlowerTests))
	assert.Equal(t, []string{"faster"}, nodeIDs(res.FasterTests))
}

func TestEmptySetsYieldEmptyResult(t *testing.T) {
	t.Parallel()

	res, err := compare.Compare(nil, nil)
	require.NoError(t, err)

	assert.Empty(t, res.NewFailures)
	assert.Empty(t, res.FixedTests)
	assert.Empty(t, res.NewUnreliable)
	assert.Empty(t, res.ResolvedUnreliable)
	assert.Empty(t, res.SlowerTests)
	assert.Empty(t, res.FasterTests)
	assert.Empty(t, res.UnmatchedBase)
	assert.Empty(t, res.UnmatchedTarget)
	assert.False(t, res.HasChanges())
	assert.Equal(t, compare.VerdictUnchanged, res.Verdict())
	assert.Equal(t, compare.VerdictUnchanged, res.Summary().Verdict)
}

func TestOnlyTests(t *testing.T) {
	t.Parallel()

	res, err := compare.Compare(
		[]*model.Session{session("b", t0, result("api::a", model.OutcomePassed, 1), result("db::b", model.OutcomePassed, 1))},
		[]*model.Session{session("t", t0, result("api::a", model.OutcomeFailed, 1), result("db::b", model.OutcomeFailed, 1))},
		compare.OnlyTests(func(tr *model.TestResult) bool { return tr.NodeID == "api::a" }),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"api::a"}, nodeIDs(res.NewFailures))
}

func TestRerunCommand(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", compare.RerunCommand(nil))
	assert.Equal(t,
		"pytest -x tests/test_a.py::test_ok 'tests/test_a.py::test_p[a b]'",
		compare.RerunCommand([]compare.TestDiff{
			{NodeID: "tests/test_a.py::test_ok"},
			{NodeID: "tests/test_a.py::test_p[a b]"},
		}, "-x"),
	)
}

type memSource []*model.Session

func (m memSource) LoadAll(context.Context) ([]*model.Session, error) {
	return m, nil
}

func TestComparisonBuilder(t *testing.T) {
	t.Parallel()

	src := memSource{
		session("v1-a", t0, result("api::login", model.OutcomePassed, 1), result("db::write", model.OutcomePassed, 1)),
		session("v2-a", t0.Add(48*time.Hour), result("api::login", model.OutcomeFailed, 1), result("db::write", model.OutcomeFailed, 3)),
	}
	src[0].SUTName = "svc-v1"
	src[1].SUTName = "svc-v2"
	src[0].Tags["env"] = "staging"
	src[1].Tags["env"] = "prod"

	res, err := compare.NewComparison(src).
		BetweenSUTs("svc-v1", "svc-v2").
		WithEnvironment(map[string]string{"env": "staging"}, map[string]string{"env": "prod"}).
		WithTestPattern("api::").
		WithThreshold(0.5).
		Execute(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.BaseSessions, 1)
	assert.Len(t, res.TargetSessions, 1)
	assert.Equal(t, []string{"api::login"}, nodeIDs(res.NewFailures))
	assert.Empty(t, res.SlowerTests)
	assert.InDelta(t, 0.5, res.Threshold, 1e-9)
}

func TestComparisonDateWindowAndErrors(t *testing.T) {
	t.Parallel()

	src := memSource{
		session("old", t0, result("t1", model.OutcomePassed, 1)),
		session("new", t0.Add(2*time.Hour), result("t1", model.OutcomePassed, 1)),
	}
	res, err := compare.NewComparison(src).InDateWindow(t0.Add(-time.Hour), t0.Add(time.Hour)).Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.BaseSessions, 1)
	assert.Equal(t, "old", res.BaseSessions[0].SessionID)
	assert.Equal(t, "new", res.TargetSessions[0].SessionID)

	c := compare.NewComparison(src).WithThreshold(-1)
	var paramErr *compare.InvalidComparisonParameterError
	require.ErrorAs(t, c.Err(), &paramErr)

	_, err = compare.NewComparison(src).InLastDays(0).Execute(context.Background())
	require.Error(t, err)
}

func TestPairingStrategies(t *testing.T) {
	t.Parallel()

	base := []*model.Session{
		session("b2", t0.Add(10*time.Hour)),
		session("b1", t0),
	}
	target := []*model.Session{
		session("t1", t0.Add(time.Hour)),
		session("t2", t0.Add(8*time.Hour)),
	}
	base[0].Tags["build"] = "42"
	target[0].Tags["build"] = "42"

	pairIDs := func(pairs []compare.Pair) [][2]string {
		out := make([][2]string, 0, len(pairs))
		for _, p := range pairs {
			out = append(out, [2]string{p.Base.SessionID, p.Target.SessionID})
		}
		return out
	}

	assert.Equal(t, [][2]string{{"b1", "t1"}, {"b2", "t2"}},
		pairIDs(compare.PairSessions(base, target, compare.TimestampProximity{})))
	assert.Equal(t, [][2]string{{"b1", "t1"}},
		pairIDs(compare.PairSessions(base, target, compare.TimestampProximity{MaxGap: time.Hour})))
	assert.Equal(t, [][2]string{{"b2", "t1"}},
		pairIDs(compare.PairSessions(base, target, compare.TagEquality{Key: "build"})))
	assert.Equal(t, [][2]string{{"b1", "t2"}},
		pairIDs(compare.PairSessions(base, target, compare.ExplicitPairs{"b1": "t2", "b2": "missing"})))

	results, err := compare.ComparePairs(compare.PairSessions(base, target, nil))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestComparisonExecutePairs(t *testing.T) {
	t.Parallel()

	src := memSource{
		session("v1-a", t0, result("t1", model.OutcomePassed, 1)),
		session("v1-b", t0.Add(24*time.Hour), result("t1", model.OutcomePassed, 1)),
		session("v2-a", t0.Add(time.Hour), result("t1", model.OutcomeFailed, 1)),
		session("v2-b", t0.Add(25*time.Hour), result("t1", model.OutcomePassed, 2)),
	}
	src[0].SUTName, src[1].SUTName = "svc-v1", "svc-v1"
	src[2].SUTName, src[3].SUTName = "svc-v2", "svc-v2"

	results, err := compare.NewComparison(src).
		BetweenSUTs("svc-v1", "svc-v2").
		ExecutePairs(context.Background(), compare.TimestampProximity{MaxGap: 2 * time.Hour})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "v2-a", results[0].Target.SessionID)
	assert.Equal(t, compare.VerdictRegressed, results[0].Result.Verdict())
	assert.Equal(t, "v2-b", results[1].Target.SessionID)
	assert.Equal(t, []string{"t1"}, nodeIDs(results[1].Result.SlowerTests))

	_, err = compare.NewComparison(src).WithThreshold(-0.5).ExecutePairs(context.Background(), nil)
	require.Error(t, err)
}
