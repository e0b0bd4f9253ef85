// Package analysis provides stateless metrics over a collection of sessions.
// Every function is total: an empty or nil collection yields a zero value.
package analysis

import (
	"sort"

	"github.com/perfgo/testinsight/model"
)

func countResults(sessions []*model.Session) int {
	n := 0
	for _, s := range sessions {
		if s != nil {
			n += len(s.TestResults)
		}
	}
	return n
}

func eachResult(sessions []*model.Session, fn func(s *model.Session, t *model.TestResult)) {
	for _, s := range sessions {
		if s == nil {
			continue
		}
		for i := range s.TestResults {
			fn(s, &s.TestResults[i])
		}
	}
}

// PassRate is the fraction of test results that PASSED. It is 0 when there are no results.
func PassRate(sessions []*model.Session) float64 {
	total := countResults(sessions)
	if total == 0 {
		return 0
	}
	passed := 0
	eachResult(sessions, func(_ *model.Session, t *model.TestResult) {
		if t.Outcome == model.OutcomePassed {
			passed++
		}
	})
	return float64(passed) / float64(total)
}

// FailureRate is the fraction of test results that FAILED or ERRORed.
func FailureRate(sessions []*model.Session) float64 {
	total := countResults(sessions)
	if total == 0 {
		return 0
	}
	failed := 0
	eachResult(sessions, func(_ *model.Session, t *model.TestResult) {
		if t.Outcome.IsFailure() {
			failed++
		}
	})
	return float64(failed) / float64(total)
}

// ReliabilityIndex is 1 minus the share of distinct nodeids that needed a rerun in any
// session. It is 0 when no tests were observed.
func ReliabilityIndex(sessions []*model.Session) float64 {
	observed := make(map[string]struct{})
	rerun := make(map[string]struct{})
	for _, s := range sessions {
		if s == nil {
			continue
		}
		for _, t := range s.TestResults {
			observed[t.NodeID] = struct{}{}
		}
		for _, g := range s.RerunGroups {
			observed[g.NodeID] = struct{}{}
			rerun[g.NodeID] = struct{}{}
		}
	}
	if len(observed) == 0 {
		return 0
	}
	return 1 - float64(len(rerun))/float64(len(observed))
}

// RerunRecoveryRate is the fraction of rerun groups whose final outcome was PASSED.
// It is 0 when nothing was rerun.
func RerunRecoveryRate(sessions []*model.Session) float64 {
	total, recovered := 0, 0
	for _, s := range sessions {
		if s == nil {
			continue
		}
		for _, g := range s.RerunGroups {
			total++
			if g.FinalOutcome() == model.OutcomePassed {
				recovered++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(recovered) / float64(total)
}

// OutcomeDistribution counts test results per outcome.
func OutcomeDistribution(sessions []*model.Session) map[model.Outcome]int {
	dist := make(map[model.Outcome]int)
	eachResult(sessions, func(_ *model.Session, t *model.TestResult) {
		dist[t.Outcome]++
	})
	return dist
}

// SlowestTests returns the limit longest test results, longest first, ties broken by
// nodeid. A non-positive limit yields an empty slice.
func SlowestTests(sessions []*model.Session, limit int) []model.TestResult {
	if limit <= 0 {
		return []model.TestResult{}
	}
	var all []model.TestResult
	eachResult(sessions, func(_ *model.Session, t *model.TestResult) {
		all = append(all, *t)
	})
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Duration != all[j].Duration {
			return all[i].Duration > all[j].Duration
		}
		return all[i].NodeID < all[j].NodeID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	if all == nil {
		return []model.TestResult{}
	}
	return all
}

// TestCount pairs a nodeid with a count.
type TestCount struct {
	NodeID string `json:"nodeid"`
	Count  int    `json:"count"`
}

// MostFailingTests returns the nodeids with the most FAILED or ERROR results.
func MostFailingTests(sessions []*model.Session, limit int) []TestCount {
	if limit <= 0 {
		return []TestCount{}
	}
	counts := make(map[string]int)
	eachResult(sessions, func(_ *model.Session, t *model.TestResult) {
		if t.Outcome.IsFailure() {
			counts[t.NodeID]++
		}
	})

	out := make([]TestCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, TestCount{NodeID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].NodeID < out[j].NodeID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FlakyTests returns, sorted, the nodeids that were rerun in any session or that both
// passed and failed across sessions.
func FlakyTests(sessions []*model.Session) []string {
	passed := make(map[string]bool)
	failed := make(map[string]bool)
	flaky := make(map[string]struct{})

	for _, s := range sessions {
		if s == nil {
			continue
		}
		for _, g := range s.RerunGroups {
			flaky[g.NodeID] = struct{}{}
		}
		for _, t := range s.TestResults {
			switch {
			case t.Outcome.IsPass():
				passed[t.NodeID] = true
			case t.Outcome.IsFailure():
				failed[t.NodeID] = true
			}
		}
	}
	for id := range passed {
		if failed[id] {
			flaky[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(flaky))
	for id := range flaky {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
