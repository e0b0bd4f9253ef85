package cli

// This file contains the compare command.

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/compare"
	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/query"
)

func compareFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "base-sut",
			Usage:    "System under test used as the baseline",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "target-sut",
			Usage:    "System under test compared against the baseline",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "days",
			Usage: "Only sessions started in the last N days",
		},
		&cli.Float64Flag{
			Name:  "threshold",
			Usage: "Relative duration change that counts as slower or faster",
			Value: compare.DefaultThreshold,
		},
		&cli.StringFlag{
			Name:    "pattern",
			Aliases: []string{"p"},
			Usage:   "Only compare tests whose nodeid contains this text",
		},
		&cli.BoolFlag{
			Name:  "regex",
			Usage: "Treat the pattern as a regular expression",
		},
		&cli.StringSliceFlag{
			Name:  "base-tag",
			Usage: "Session tag KEY=VALUE required on the base side (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "target-tag",
			Usage: "Session tag KEY=VALUE required on the target side (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "exclude-unreliable",
			Usage: "Ignore sessions with rerun tests",
		},
		&cli.BoolFlag{
			Name:  "only-failures",
			Usage: "Only use sessions with at least one failed test",
		},
		&cli.StringFlag{
			Name:  "pair-by",
			Usage: "Compare session by session instead of set against set: 'time' or 'tag:KEY'",
		},
		&cli.BoolFlag{
			Name:  "rerun-command",
			Usage: "Print a pytest command that reruns the new failures",
		},
		&cli.BoolFlag{
			Name:  "fail-on-regression",
			Usage: "Exit with an error when the verdict is regressed or mixed",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the comparison as JSON",
		},
	}
}

// pairingStrategy parses the --pair-by value.
func pairingStrategy(value string) (compare.PairingStrategy, error) {
	switch {
	case value == "time":
		return compare.TimestampProximity{}, nil
	case strings.HasPrefix(value, "tag:") && len(value) > len("tag:"):
		return compare.TagEquality{Key: strings.TrimPrefix(value, "tag:")}, nil
	default:
		return nil, fmt.Errorf("invalid pairing %q: expected 'time' or 'tag:KEY'", value)
	}
}

func (a *App) compare(ctx *cli.Context) error {
	baseTags, err := parseTags(ctx.StringSlice("base-tag"))
	if err != nil {
		return err
	}
	targetTags, err := parseTags(ctx.StringSlice("target-tag"))
	if err != nil {
		return err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	c := compare.NewComparison(st).
		BetweenSUTs(ctx.String("base-sut"), ctx.String("target-sut")).
		WithEnvironment(baseTags, targetTags).
		WithThreshold(ctx.Float64("threshold"))
	if ctx.IsSet("days") {
		c = c.InLastDays(ctx.Int("days"))
	}
	if pattern := ctx.String("pattern"); pattern != "" {
		var opts []query.PatternOption
		if ctx.Bool("regex") {
			opts = append(opts, query.AsRegex())
		}
		c = c.WithTestPattern(pattern, opts...)
	}
	if ctx.Bool("exclude-unreliable") {
		c = c.ExcludeUnreliable()
	}
	if ctx.Bool("only-failures") {
		c = c.OnlyFailures()
	}

	if pairBy := ctx.String("pair-by"); pairBy != "" {
		strategy, err := pairingStrategy(pairBy)
		if err != nil {
			return err
		}
		results, err := c.ExecutePairs(ctx.Context, strategy)
		if err != nil {
			return err
		}
		return a.printPairs(ctx, results)
	}

	result, err := c.Execute(ctx.Context)
	if err != nil {
		return err
	}
	a.logger.Debug().
		Int("base_sessions", len(result.BaseSessions)).
		Int("target_sessions", len(result.TargetSessions)).
		Msg("Compared session sets")

	if ctx.Bool("json") {
		if err := a.writeJSON(result); err != nil {
			return err
		}
	} else {
		a.printComparison(ctx.String("base-sut"), ctx.String("target-sut"), result)
	}

	if ctx.Bool("rerun-command") {
		if cmd := compare.RerunCommand(result.NewFailures); cmd != "" {
			fmt.Fprintf(a.out, "\nRerun new failures:\n  %s\n", cmd)
		}
	}

	return regressionError(ctx.Bool("fail-on-regression"), result.Verdict())
}

func regressionError(enabled bool, verdict compare.Verdict) error {
	if enabled && (verdict == compare.VerdictRegressed || verdict == compare.VerdictMixed) {
		return fmt.Errorf("comparison verdict is %s", verdict)
	}
	return nil
}

func (a *App) printComparison(baseSUT, targetSUT string, r *compare.Result) {
	fmt.Fprintf(a.out, "\n=== Comparison: %s (%d sessions) vs %s (%d sessions) ===\n",
		baseSUT, len(r.BaseSessions), targetSUT, len(r.TargetSessions))
	fmt.Fprintf(a.out, "Verdict: %s (threshold %s)\n", r.Verdict(), formatPercent(r.Threshold))

	outcomeSection := func(title string, diffs []compare.TestDiff) {
		if len(diffs) == 0 {
			return
		}
		fmt.Fprintf(a.out, "\n%s (%d):\n", title, len(diffs))
		for _, d := range diffs {
			fmt.Fprintf(a.out, "  %s  %s -> %s\n", d.NodeID, outcomeName(d.BaseOutcome), outcomeName(d.TargetOutcome))
		}
	}
	perfSection := func(title string, diffs []compare.TestDiff) {
		if len(diffs) == 0 {
			return
		}
		fmt.Fprintf(a.out, "\n%s (%d):\n", title, len(diffs))
		for _, d := range diffs {
			fmt.Fprintf(a.out, "  %s  %s -> %s  (%s)\n", d.NodeID,
				formatSeconds(d.BaseDuration), formatSeconds(d.TargetDuration), formatPercent(d.Delta))
		}
	}
	nodeSection := func(title string, nodeIDs []string) {
		if len(nodeIDs) == 0 {
			return
		}
		fmt.Fprintf(a.out, "\n%s (%d):\n", title, len(nodeIDs))
		for _, id := range nodeIDs {
			fmt.Fprintf(a.out, "  %s\n", id)
		}
	}

	outcomeSection("New failures", r.NewFailures)
	outcomeSection("Fixed tests", r.FixedTests)
	outcomeSection("New unreliable tests", r.NewUnreliable)
	outcomeSection("Resolved unreliable tests", r.ResolvedUnreliable)
	perfSection("Slower tests", r.SlowerTests)
	perfSection("Faster tests", r.FasterTests)
	nodeSection("Only in base", r.UnmatchedBase)
	nodeSection("Only in target", r.UnmatchedTarget)

	fmt.Fprintf(a.out, "\nUnchanged: %d tests\n", len(r.Unchanged))
}

func (a *App) printPairs(ctx *cli.Context, results []compare.PairResult) error {
	if ctx.Bool("json") {
		type pairJSON struct {
			BaseSession   string          `json:"base_session"`
			TargetSession string          `json:"target_session"`
			Result        *compare.Result `json:"result"`
		}
		out := make([]pairJSON, 0, len(results))
		for _, pr := range results {
			out = append(out, pairJSON{BaseSession: pr.Base.SessionID, TargetSession: pr.Target.SessionID, Result: pr.Result})
		}
		if err := a.writeJSON(out); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(a.out, "\n=== Paired comparison (%d pairs) ===\n\n", len(results))
		for _, pr := range results {
			s := pr.Result.Summary()
			fmt.Fprintf(a.out, "%s  %s -> %s  %s  new_failures=%d fixed=%d slower=%d faster=%d\n",
				statusMarker(s.Verdict == compare.VerdictRegressed || s.Verdict == compare.VerdictMixed),
				pr.Base.SessionID, pr.Target.SessionID, s.Verdict,
				s.NewFailures, s.FixedTests, s.SlowerTests, s.FasterTests)
		}
	}

	worst := compare.VerdictUnchanged
	for _, pr := range results {
		if v := pr.Result.Verdict(); v == compare.VerdictRegressed || v == compare.VerdictMixed {
			worst = v
			break
		}
	}
	return regressionError(ctx.Bool("fail-on-regression"), worst)
}

func outcomeName(o model.Outcome) string {
	if o == "" {
		return "-"
	}
	return strings.ToLower(string(o))
}
