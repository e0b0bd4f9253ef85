package compare

// This file contains the set-vs-set comparator. Both sides are flattened into one
// state per nodeid before categorisation, so which sessions are compared is decided
// entirely by the caller's scoping of base and target.

import (
	"math"
	"sort"
	"time"

	"github.com/perfgo/testinsight/filter"
	"github.com/perfgo/testinsight/model"
)

// DefaultThreshold is the fractional duration change that counts as slower or faster.
const DefaultThreshold = 0.20

// epsilon absorbs float rounding so that a change exactly at the threshold is included.
const epsilon = 1e-9

// Option configures Compare.
type Option func(*config)

type config struct {
	threshold float64
	tests     filter.TestPredicate
	err       error
}

// WithThreshold sets the performance threshold as a fraction, e.g. 0.2 for 20%.
func WithThreshold(threshold float64) Option {
	return func(c *config) {
		if err := ValidateThreshold(threshold); err != nil && c.err == nil {
			c.err = err
		}
		c.threshold = threshold
	}
}

// OnlyTests restricts the comparison to test results matching pred.
func OnlyTests(pred filter.TestPredicate) Option {
	return func(c *config) {
		c.tests = pred
	}
}

// ValidateThreshold rejects non-finite and negative thresholds. Zero counts any change.
func ValidateThreshold(threshold float64) error {
	switch {
	case math.IsNaN(threshold) || math.IsInf(threshold, 0):
		return &InvalidComparisonParameterError{Parameter: "threshold", Value: threshold, Reason: "must be a finite number"}
	case threshold < 0:
		return &InvalidComparisonParameterError{Parameter: "threshold", Value: threshold, Reason: "must not be negative"}
	}
	return nil
}

// testState is one side's view of a single nodeid.
type testState struct {
	latest     model.TestResult
	latestTime time.Time
	total      float64
	count      int
	rerun      bool
}

func (s *testState) meanDuration() float64 {
	if s.count == 0 {
		return 0
	}
	return s.total / float64(s.count)
}

// flatten builds per-nodeid state: the most recent result by start time and the
// running duration total. A rerun on any session marks the nodeid as rerun.
func flatten(sessions []*model.Session, keep filter.TestPredicate) map[string]*testState {
	states := make(map[string]*testState)
	for _, s := range sessions {
		if s == nil {
			continue
		}
		for _, t := range s.TestResults {
			if keep != nil && !keep(&t) {
				continue
			}
			st, ok := states[t.NodeID]
			if !ok {
				st = &testState{}
				states[t.NodeID] = st
			}
			at := t.StartTime
			if at.IsZero() {
				at = s.StartTime
			}
			if st.count == 0 || !at.Before(st.latestTime) {
				st.latest = t
				st.latestTime = at
			}
			st.total += t.Duration
			st.count++
		}
		for _, g := range s.RerunGroups {
			if st, ok := states[g.NodeID]; ok {
				st.rerun = true
			}
		}
	}
	return states
}

// PercentChange returns (target-base)/base. A zero base with a positive target is +Inf;
// a zero base with a zero target is 0.
func PercentChange(base, target float64) float64 {
	if base == 0 {
		if target > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return (target - base) / base
}

// Compare categorises every nodeid found in base or target.
func Compare(base, target []*model.Session, opts ...Option) (*Result, error) {
	cfg := config{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}

	res := newResult(base, target, cfg.threshold)
	baseStates := flatten(base, cfg.tests)
	targetStates := flatten(target, cfg.tests)

	for nodeID := range baseStates {
		if _, ok := targetStates[nodeID]; !ok {
			res.UnmatchedBase = append(res.UnmatchedBase, nodeID)
		}
	}

	for nodeID, t := range targetStates {
		b, ok := baseStates[nodeID]
		if !ok {
			res.UnmatchedTarget = append(res.UnmatchedTarget, nodeID)
			continue
		}

		diff := TestDiff{
			NodeID:         nodeID,
			BaseOutcome:    b.latest.Outcome,
			TargetOutcome:  t.latest.Outcome,
			BaseDuration:   b.meanDuration(),
			TargetDuration: t.meanDuration(),
			BaseRerun:      b.rerun,
			TargetRerun:    t.rerun,
		}
		diff.Delta = PercentChange(diff.BaseDuration, diff.TargetDuration)

		switch {
		case diff.BaseOutcome.IsPass() && diff.TargetOutcome.IsFailure():
			res.NewFailures = append(res.NewFailures, diff)
		case diff.BaseOutcome.IsFailure() && diff.TargetOutcome.IsPass():
			res.FixedTests = append(res.FixedTests, diff)
		case diff.TargetRerun && !diff.BaseRerun:
			res.NewUnreliable = append(res.NewUnreliable, diff)
		case diff.BaseRerun && !diff.TargetRerun:
			res.ResolvedUnreliable = append(res.ResolvedUnreliable, diff)
		default:
			res.Unchanged = append(res.Unchanged, nodeID)
		}

		switch {
		case diff.Delta > 0 && diff.Delta >= cfg.threshold-epsilon:
			res.SlowerTests = append(res.SlowerTests, diff)
		case diff.Delta < 0 && diff.Delta <= -cfg.threshold+epsilon:
			res.FasterTests = append(res.FasterTests, diff)
		}
	}

	res.sort()
	return res, nil
}

func sortByNodeID(diffs []TestDiff) {
	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i].NodeID < diffs[j].NodeID
	})
}

// sortByDelta orders by delta, largest first when descending, with nodeid breaking ties.
func sortByDelta(diffs []TestDiff, descending bool) {
	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].Delta != diffs[j].Delta {
			if descending {
				return diffs[i].Delta > diffs[j].Delta
			}
			return diffs[i].Delta < diffs[j].Delta
		}
		return diffs[i].NodeID < diffs[j].NodeID
	})
}
