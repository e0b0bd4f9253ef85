package compare

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/perfgo/testinsight/model"
)

// TestDiff describes one nodeid present on both sides.
type TestDiff struct {
	NodeID string `json:"nodeid"`
	// Most recent outcome on each side
	BaseOutcome   model.Outcome `json:"base_outcome"`
	TargetOutcome model.Outcome `json:"target_outcome"`
	// Mean duration in seconds on each side
	BaseDuration   float64 `json:"base_duration"`
	TargetDuration float64 `json:"target_duration"`
	// Fractional duration change, (target-base)/base
	Delta float64 `json:"delta"`
	// Whether any session on that side reran the test
	BaseRerun   bool `json:"base_rerun"`
	TargetRerun bool `json:"target_rerun"`
}

// MarshalJSON writes an infinite delta (zero base duration) as null.
func (d TestDiff) MarshalJSON() ([]byte, error) {
	type plain TestDiff
	out := struct {
		plain
		Delta *float64 `json:"delta"`
	}{plain: plain(d)}
	if !math.IsInf(d.Delta, 0) && !math.IsNaN(d.Delta) {
		out.Delta = &d.Delta
	}
	return json.Marshal(out)
}

// Category names a bucket of a comparison result.
type Category string

const (
	CategoryNewFailure         Category = "new_failure"
	CategoryFixed              Category = "fixed"
	CategoryNewUnreliable      Category = "new_unreliable"
	CategoryResolvedUnreliable Category = "resolved_unreliable"
	CategoryUnchanged          Category = "unchanged"
	CategorySlower             Category = "slower"
	CategoryFaster             Category = "faster"
	CategoryUnmatchedBase      Category = "unmatched_base"
	CategoryUnmatchedTarget    Category = "unmatched_target"
)

// Verdict is the overall direction of a comparison.
type Verdict string

const (
	VerdictImproved  Verdict = "improved"
	VerdictRegressed Verdict = "regressed"
	VerdictMixed     Verdict = "mixed"
	VerdictUnchanged Verdict = "unchanged"
)

// Result is the outcome of comparing a base and a target session set. Outcome buckets
// are mutually exclusive; the performance buckets are independent of them.
type Result struct {
	BaseSessions   []*model.Session `json:"-"`
	TargetSessions []*model.Session `json:"-"`
	Threshold      float64          `json:"threshold"`

	NewFailures        []TestDiff `json:"new_failures"`
	FixedTests         []TestDiff `json:"fixed_tests"`
	NewUnreliable      []TestDiff `json:"new_unreliable_tests"`
	ResolvedUnreliable []TestDiff `json:"resolved_unreliable_tests"`
	SlowerTests        []TestDiff `json:"slower_tests"`
	FasterTests        []TestDiff `json:"faster_tests"`

	Unchanged       []string `json:"unchanged"`
	UnmatchedBase   []string `json:"unmatched_base"`
	UnmatchedTarget []string `json:"unmatched_target"`
}

func newResult(base, target []*model.Session, threshold float64) *Result {
	return &Result{
		BaseSessions:       base,
		TargetSessions:     target,
		Threshold:          threshold,
		NewFailures:        []TestDiff{},
		FixedTests:         []TestDiff{},
		NewUnreliable:      []TestDiff{},
		ResolvedUnreliable: []TestDiff{},
		SlowerTests:        []TestDiff{},
		FasterTests:        []TestDiff{},
		Unchanged:          []string{},
		UnmatchedBase:      []string{},
		UnmatchedTarget:    []string{},
	}
}

func (r *Result) sort() {
	sortByNodeID(r.NewFailures)
	sortByNodeID(r.FixedTests)
	sortByNodeID(r.NewUnreliable)
	sortByNodeID(r.ResolvedUnreliable)
	sortByDelta(r.SlowerTests, true)
	sortByDelta(r.FasterTests, false)
	sort.Strings(r.Unchanged)
	sort.Strings(r.UnmatchedBase)
	sort.Strings(r.UnmatchedTarget)
}

// HasChanges reports whether any outcome, reliability or performance bucket is non-empty.
func (r *Result) HasChanges() bool {
	return len(r.NewFailures)+len(r.FixedTests)+len(r.NewUnreliable)+
		len(r.ResolvedUnreliable)+len(r.SlowerTests)+len(r.FasterTests) > 0
}

// Verdict summarises the result. New failures, new unreliable tests and slowdowns are
// regressions; fixes, resolved unreliable tests and speedups are improvements.
func (r *Result) Verdict() Verdict {
	regressed := len(r.NewFailures)+len(r.NewUnreliable)+len(r.SlowerTests) > 0
	improved := len(r.FixedTests)+len(r.ResolvedUnreliable)+len(r.FasterTests) > 0

	switch {
	case regressed && improved:
		return VerdictMixed
	case regressed:
		return VerdictRegressed
	case improved:
		return VerdictImproved
	default:
		return VerdictUnchanged
	}
}

// Summary holds bucket sizes for display.
type Summary struct {
	BaseSessions       int     `json:"base_sessions"`
	TargetSessions     int     `json:"target_sessions"`
	NewFailures        int     `json:"new_failures"`
	FixedTests         int     `json:"fixed_tests"`
	NewUnreliable      int     `json:"new_unreliable_tests"`
	ResolvedUnreliable int     `json:"resolved_unreliable_tests"`
	SlowerTests        int     `json:"slower_tests"`
	FasterTests        int     `json:"faster_tests"`
	Unchanged          int     `json:"unchanged"`
	UnmatchedBase      int     `json:"unmatched_base"`
	UnmatchedTarget    int     `json:"unmatched_target"`
	Verdict            Verdict `json:"verdict"`
}

func (r *Result) Summary() Summary {
	return Summary{
		BaseSessions:       len(r.BaseSessions),
		TargetSessions:     len(r.TargetSessions),
		NewFailures:        len(r.NewFailures),
		FixedTests:         len(r.FixedTests),
		NewUnreliable:      len(r.NewUnreliable),
		ResolvedUnreliable: len(r.ResolvedUnreliable),
		SlowerTests:        len(r.SlowerTests),
		FasterTests:        len(r.FasterTests),
		Unchanged:          len(r.Unchanged),
		UnmatchedBase:      len(r.UnmatchedBase),
		UnmatchedTarget:    len(r.UnmatchedTarget),
		Verdict:            r.Verdict(),
	}
}

// Categories returns every bucket nodeID was placed in.
func (r *Result) Categories(nodeID string) []Category {
	var cats []Category
	inDiffs := func(diffs []TestDiff, c Category) {
		for _, d := range diffs {
			if d.NodeID == nodeID {
				cats = append(cats, c)
				return
			}
		}
	}
	inIDs := func(ids []string, c Category) {
		for _, id := range ids {
			if id == nodeID {
				cats = append(cats, c)
				return
			}
		}
	}

	inDiffs(r.NewFailures, CategoryNewFailure)
	inDiffs(r.FixedTests, CategoryFixed)
	inDiffs(r.NewUnreliable, CategoryNewUnreliable)
	inDiffs(r.ResolvedUnreliable, CategoryResolvedUnreliable)
	inIDs(r.Unchanged, CategoryUnchanged)
	inIDs(r.UnmatchedBase, CategoryUnmatchedBase)
	inIDs(r.UnmatchedTarget, CategoryUnmatchedTarget)
	inDiffs(r.SlowerTests, CategorySlower)
	inDiffs(r.FasterTests, CategoryFaster)
	return cats
}
