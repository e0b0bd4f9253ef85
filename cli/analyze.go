package cli

// This file contains the analyze command.

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/analysis"
	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/query"
)

type analysisReport struct {
	Sessions          int                      `json:"sessions"`
	Tests             int                      `json:"tests"`
	PassRate          float64                  `json:"pass_rate"`
	FailureRate       float64                  `json:"failure_rate"`
	ReliabilityIndex  float64                  `json:"reliability_index"`
	RerunRecoveryRate float64                  `json:"rerun_recovery_rate"`
	Outcomes          map[string]int           `json:"outcomes"`
	Durations         analysis.DurationSummary `json:"durations"`
	Health            analysis.Health          `json:"health"`
	Slowest           []model.TestResult       `json:"slowest_tests"`
	MostFailing       []analysis.TestCount     `json:"most_failing_tests"`
	Flaky             []string                 `json:"flaky_tests"`
	CoFailures        []analysis.Cluster       `json:"co_failure_clusters"`
}

func buildReport(sessions []*model.Session, limit, minSupport int) analysisReport {
	outcomes := make(map[string]int)
	tests := 0
	for o, n := range analysis.OutcomeDistribution(sessions) {
		outcomes[strings.ToLower(string(o))] = n
		tests += n
	}
	return analysisReport{
		Sessions:          len(sessions),
		Tests:             tests,
		PassRate:          analysis.PassRate(sessions),
		FailureRate:       analysis.FailureRate(sessions),
		ReliabilityIndex:  analysis.ReliabilityIndex(sessions),
		RerunRecoveryRate: analysis.RerunRecoveryRate(sessions),
		Outcomes:          outcomes,
		Durations:         analysis.DurationStats(sessions),
		Health:            analysis.HealthScore(sessions),
		Slowest:           analysis.SlowestTests(sessions, limit),
		MostFailing:       analysis.MostFailingTests(sessions, limit),
		Flaky:             analysis.FlakyTests(sessions),
		CoFailures:        analysis.CoFailureClusters(sessions, minSupport),
	}
}

func (a *App) analyze(ctx *cli.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	opts := queryOptions{SUT: ctx.String("sut"), Days: ctx.Int("days")}
	q, err := opts.build(query.New(st))
	if err != nil {
		return err
	}
	sessions, err := q.Execute(ctx.Context)
	if err != nil {
		return err
	}

	report := buildReport(sessions, ctx.Int("limit"), ctx.Int("min-support"))
	if ctx.Bool("json") {
		return a.writeJSON(report)
	}
	a.printReport(report)
	return nil
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func (a *App) printReport(r analysisReport) {
	fmt.Fprintf(a.out, "\n=== Analysis (%s sessions, %s test results) ===\n\n",
		humanize.Comma(int64(r.Sessions)), humanize.Comma(int64(r.Tests)))
	if r.Tests == 0 {
		fmt.Fprintln(a.out, "No test results")
		return
	}

	fmt.Fprintf(a.out, "Pass rate:           %s\n", percent(r.PassRate))
	fmt.Fprintf(a.out, "Failure rate:        %s\n", percent(r.FailureRate))
	fmt.Fprintf(a.out, "Reliability index:   %s\n", percent(r.ReliabilityIndex))
	fmt.Fprintf(a.out, "Rerun recovery rate: %s\n", percent(r.RerunRecoveryRate))
	fmt.Fprintf(a.out, "Health:              %.0f/100 (stability %.0f, performance %.0f, warnings %.0f)\n",
		r.Health.Overall, r.Health.Stability, r.Health.Performance, r.Health.Warnings)

	var parts []string
	for _, o := range model.Outcomes {
		name := strings.ToLower(string(o))
		if n := r.Outcomes[name]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", name, n))
		}
	}
	fmt.Fprintf(a.out, "Outcomes:            %s\n", strings.Join(parts, " "))

	d := r.Durations
	fmt.Fprintf(a.out, "Durations:           total %s, mean %s, median %s, p95 %s, max %s\n",
		formatSeconds(d.Total), formatSeconds(d.Mean), formatSeconds(d.Median), formatSeconds(d.P95), formatSeconds(d.Max))

	if len(r.Slowest) > 0 {
		fmt.Fprintln(a.out, "\nSlowest tests:")
		for _, t := range r.Slowest {
			fmt.Fprintf(a.out, "  %10s  %s\n", formatSeconds(t.Duration), t.NodeID)
		}
	}
	if len(r.MostFailing) > 0 {
		fmt.Fprintln(a.out, "\nMost failing tests:")
		for _, tc := range r.MostFailing {
			fmt.Fprintf(a.out, "  %4d  %s\n", tc.Count, tc.NodeID)
		}
	}
	if len(r.Flaky) > 0 {
		fmt.Fprintln(a.out, "\nFlaky tests:")
		for _, id := range r.Flaky {
			fmt.Fprintf(a.out, "  %s\n", id)
		}
	}
	if len(r.CoFailures) > 0 {
		fmt.Fprintln(a.out, "\nTests failing together:")
		for _, c := range r.CoFailures {
			fmt.Fprintf(a.out, "  %d sessions: %s\n", c.Support, strings.Join(c.NodeIDs, ", "))
		}
	}
}
