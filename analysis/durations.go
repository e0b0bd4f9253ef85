package analysis

import (
	"github.com/montanaflynn/stats"

	"github.com/perfgo/testinsight/model"
)

// DurationSummary describes the distribution of test durations in seconds.
type DurationSummary struct {
	Count  int     `json:"count"`
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// DurationStats summarises every test result duration.
func DurationStats(sessions []*model.Session) DurationSummary {
	var data stats.Float64Data
	eachResult(sessions, func(_ *model.Session, t *model.TestResult) {
		data = append(data, t.Duration)
	})
	return summarize(data)
}

func summarize(data stats.Float64Data) DurationSummary {
	if len(data) == 0 {
		return DurationSummary{}
	}

	// The stats calls only fail on empty input, which is handled above.
	sum, _ := stats.Sum(data)
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)
	stddev, _ := stats.StandardDeviation(data)
	minimum, _ := stats.Min(data)
	maximum, _ := stats.Max(data)
	p95, err := stats.Percentile(data, 95)
	if err != nil {
		p95 = maximum
	}

	return DurationSummary{
		Count:  len(data),
		Total:  sum,
		Mean:   mean,
		Median: median,
		P95:    p95,
		StdDev: stddev,
		Min:    minimum,
		Max:    maximum,
	}
}
