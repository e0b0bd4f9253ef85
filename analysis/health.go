package analysis

import (
	"math"

	"github.com/perfgo/testinsight/model"
)

// Health is a 0-100 score with its components.
type Health struct {
	Overall     float64 `json:"overall"`
	Stability   float64 `json:"stability"`
	Performance float64 `json:"performance"`
	Warnings    float64 `json:"warnings"`
}

const (
	stabilityWeight   = 0.5
	performanceWeight = 0.3
	warningWeight     = 0.2

	// Points removed from stability when every test needed a rerun.
	rerunPenalty = 20
)

// HealthScore weighs stability (failures and reruns), performance consistency (the
// coefficient of variation of durations) and warning frequency. It is zero when there
// are no test results.
func HealthScore(sessions []*model.Session) Health {
	total := countResults(sessions)
	if total == 0 {
		return Health{}
	}

	stability := 100*(1-FailureRate(sessions)) - rerunPenalty*(1-ReliabilityIndex(sessions))

	performance := 100.0
	if d := DurationStats(sessions); d.Mean > 0 {
		performance = 100 * (1 - d.StdDev/d.Mean)
	}

	warnings := 0
	eachResult(sessions, func(_ *model.Session, t *model.TestResult) {
		if t.HasWarning {
			warnings++
		}
	})
	warning := 100 * (1 - float64(warnings)/float64(total))

	h := Health{
		Stability:   clamp(stability),
		Performance: clamp(performance),
		Warnings:    clamp(warning),
	}
	h.Overall = stabilityWeight*h.Stability + performanceWeight*h.Performance + warningWeight*h.Warnings
	return h
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
