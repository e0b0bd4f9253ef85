package compare

// This file contains the optional one-to-one session pairing strategies. Compare itself
// is set-vs-set; pairing is only used when a caller wants per-session comparisons.

import (
	"sort"
	"time"

	"github.com/perfgo/testinsight/model"
)

// Pair is a base session matched with a target session.
type Pair struct {
	Base   *model.Session
	Target *model.Session
}

// PairingStrategy decides which base session corresponds to which target session.
type PairingStrategy interface {
	Pair(base, target []*model.Session) []Pair
}

// PairSessions pairs base and target sessions with strategy.
func PairSessions(base, target []*model.Session, strategy PairingStrategy) []Pair {
	if strategy == nil {
		strategy = TimestampProximity{}
	}
	return strategy.Pair(base, target)
}

// TimestampProximity pairs each base session, in start order, with the closest unused
// target session by start time. A zero MaxGap means no limit.
type TimestampProximity struct {
	MaxGap time.Duration
}

func (p TimestampProximity) Pair(base, target []*model.Session) []Pair {
	bases := byStart(base)
	targets := byStart(target)
	used := make([]bool, len(targets))

	var pairs []Pair
	for _, b := range bases {
		best := -1
		var bestGap time.Duration
		for i, t := range targets {
			if used[i] {
				continue
			}
			gap := absDuration(t.StartTime.Sub(b.StartTime))
			if p.MaxGap > 0 && gap > p.MaxGap {
				continue
			}
			if best == -1 || gap < bestGap {
				best, bestGap = i, gap
			}
		}
		if best >= 0 {
			used[best] = true
			pairs = append(pairs, Pair{Base: b, Target: targets[best]})
		}
	}
	return pairs
}

// TagEquality pairs sessions that carry the same value for Key, e.g. a build number.
// Sessions with equal values are paired in start order.
type TagEquality struct {
	Key string
}

func (p TagEquality) Pair(base, target []*model.Session) []Pair {
	pending := make(map[string][]*model.Session)
	for _, t := range byStart(target) {
		if v, ok := t.Tags[p.Key]; ok {
			pending[v] = append(pending[v], t)
		}
	}

	var pairs []Pair
	for _, b := range byStart(base) {
		v, ok := b.Tags[p.Key]
		if !ok || len(pending[v]) == 0 {
			continue
		}
		pairs = append(pairs, Pair{Base: b, Target: pending[v][0]})
		pending[v] = pending[v][1:]
	}
	return pairs
}

// ExplicitPairs maps base session ids to target session ids.
type ExplicitPairs map[string]string

func (p ExplicitPairs) Pair(base, target []*model.Session) []Pair {
	targets := make(map[string]*model.Session, len(target))
	for _, t := range target {
		targets[t.SessionID] = t
	}

	var pairs []Pair
	for _, b := range byStart(base) {
		id, ok := p[b.SessionID]
		if !ok {
			continue
		}
		if t, ok := targets[id]; ok {
			pairs = append(pairs, Pair{Base: b, Target: t})
		}
	}
	return pairs
}

// PairResult is the comparison of a single pair.
type PairResult struct {
	Pair
	Result *Result
}

// ComparePairs runs Compare on each pair as a pair of single-session sets.
func ComparePairs(pairs []Pair, opts ...Option) ([]PairResult, error) {
	results := make([]PairResult, 0, len(pairs))
	for _, p := range pairs {
		res, err := Compare([]*model.Session{p.Base}, []*model.Session{p.Target}, opts...)
		if err != nil {
			return nil, err
		}
		results = append(results, PairResult{Pair: p, Result: res})
	}
	return results, nil
}

func byStart(sessions []*model.Session) []*model.Session {
	out := make([]*model.Session, 0, len(sessions))
	for _, s := range sessions {
		if s != nil {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
