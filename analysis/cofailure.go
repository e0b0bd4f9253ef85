package analysis

// This file contains co-failure clustering: maximal groups of tests that FAILED together
// in at least min-support distinct sessions. Every maximal group is an intersection of
// per-session failure sets, so only the distinct intersections are enumerated.

import (
	"sort"
	"strings"

	"github.com/perfgo/testinsight/model"
)

// Cluster is a group of nodeids that failed together.
type Cluster struct {
	NodeIDs []string `json:"nodeids"`
	// Number of distinct sessions in which every nodeid FAILED
	Support int `json:"support"`
}

type itemset []string

func (s itemset) key() string {
	return strings.Join(s, "\x00")
}

// CoFailureClusters returns maximal sets of at least two nodeids that FAILED together in
// at least minSupport distinct sessions. A minSupport below 1 is treated as 1. Clusters
// are ordered by size, then support, both descending, then by nodeids.
func CoFailureClusters(sessions []*model.Session, minSupport int) []Cluster {
	if minSupport < 1 {
		minSupport = 1
	}

	var baskets []map[string]struct{}
	seen := make(map[string]struct{})
	for _, s := range sessions {
		if s == nil {
			continue
		}
		key := s.SessionID
		if _, dup := seen[key]; dup && key != "" {
			continue
		}
		seen[key] = struct{}{}

		basket := make(map[string]struct{})
		for _, t := range s.TestResults {
			if t.Outcome == model.OutcomeFailed {
				basket[t.NodeID] = struct{}{}
			}
		}
		if len(basket) >= 2 {
			baskets = append(baskets, basket)
		}
	}

	// Closed failure sets: the baskets and every distinct intersection of them with at
	// least two nodeids.
	closed := make(map[string]itemset)
	var queue []itemset
	push := func(set itemset) {
		if len(set) < 2 {
			return
		}
		k := set.key()
		if _, ok := closed[k]; ok {
			return
		}
		closed[k] = set
		queue = append(queue, set)
	}
	for _, b := range baskets {
		push(sortedIDs(b))
	}
	for len(queue) > 0 {
		set := queue[0]
		queue = queue[1:]
		for _, b := range baskets {
			push(intersect(set, b))
		}
	}

	var frequent []Cluster
	for _, set := range closed {
		n := 0
		for _, b := range baskets {
			if containsSet(b, set) {
				n++
			}
		}
		if n >= minSupport {
			frequent = append(frequent, Cluster{NodeIDs: set, Support: n})
		}
	}

	clusters := make([]Cluster, 0, len(frequent))
	for _, c := range frequent {
		if !hasFrequentSuperset(c.NodeIDs, frequent) {
			clusters = append(clusters, c)
		}
	}
	sort.Slice(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if len(a.NodeIDs) != len(b.NodeIDs) {
			return len(a.NodeIDs) > len(b.NodeIDs)
		}
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		return itemset(a.NodeIDs).key() < itemset(b.NodeIDs).key()
	})
	return clusters
}

func sortedIDs(b map[string]struct{}) itemset {
	out := make(itemset, 0, len(b))
	for id := range b {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func intersect(set itemset, b map[string]struct{}) itemset {
	out := make(itemset, 0, len(set))
	for _, id := range set {
		if _, ok := b[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func containsSet(b map[string]struct{}, set itemset) bool {
	for _, id := range set {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// hasFrequentSuperset reports whether another frequent set strictly contains ids.
func hasFrequentSuperset(ids []string, frequent []Cluster) bool {
	for _, other := range frequent {
		if len(other.NodeIDs) > len(ids) && containsAll(other.NodeIDs, ids) {
			return true
		}
	}
	return false
}

func containsAll(set, subset []string) bool {
	i := 0
	for _, id := range set {
		if i < len(subset) && id == subset[i] {
			i++
		}
	}
	return i == len(subset)
}
