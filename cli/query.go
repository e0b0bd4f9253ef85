package cli

// This file contains the query command and the flag-to-query translation it shares with
// analyze and export.

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/export"
	"github.com/perfgo/testinsight/filter"
	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/query"
)

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "sut",
			Usage: "Only sessions of this system under test",
		},
		&cli.StringFlag{
			Name:  "testing-system",
			Usage: "Only sessions run on this testing system",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session id glob, e.g. 'nightly-*'",
		},
		&cli.IntFlag{
			Name:  "days",
			Usage: "Only sessions started in the last N days",
		},
		&cli.IntFlag{
			Name:  "hours",
			Usage: "Only sessions started in the last N hours",
		},
		&cli.StringSliceFlag{
			Name:  "tag",
			Usage: "Session tag KEY=VALUE that must match (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "reruns",
			Usage: "Only sessions with rerun tests",
		},
		&cli.StringFlag{
			Name:    "pattern",
			Aliases: []string{"p"},
			Usage:   "Keep sessions with a test whose field contains this text",
		},
		&cli.StringFlag{
			Name:  "field",
			Usage: "Test field the pattern is matched against",
			Value: string(filter.FieldNodeID),
		},
		&cli.BoolFlag{
			Name:  "regex",
			Usage: "Treat the pattern as a regular expression",
		},
		&cli.StringFlag{
			Name:  "outcome",
			Usage: "Keep sessions with a test of this outcome",
		},
		&cli.Float64Flag{
			Name:  "min-duration",
			Usage: "Keep sessions with a test running at least this many seconds",
		},
		&cli.Float64Flag{
			Name:  "max-duration",
			Usage: "Keep sessions with a test running at most this many seconds",
		},
		&cli.BoolFlag{
			Name:  "warnings",
			Usage: "Keep sessions with a test that emitted warnings",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Limit number of results",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print matching sessions as JSON",
		},
	}
}

// queryOptions is the command line view of a query. Zero values mean "not set". All test
// criteria must hold for the same test.
type queryOptions struct {
	SUT           string
	TestingSystem string
	SessionID     string
	Days          int
	Hours         int
	Tags          map[string]string
	Reruns        bool

	Pattern     string
	Field       string
	Regex       bool
	Outcome     string
	MinDuration float64
	MaxDuration float64
	Warnings    bool

	Limit int
}

func queryOptionsFrom(ctx *cli.Context) (queryOptions, error) {
	tags, err := parseTags(ctx.StringSlice("tag"))
	if err != nil {
		return queryOptions{}, err
	}
	o := queryOptions{
		SUT:           ctx.String("sut"),
		TestingSystem: ctx.String("testing-system"),
		SessionID:     ctx.String("session-id"),
		Days:          ctx.Int("days"),
		Hours:         ctx.Int("hours"),
		Tags:          tags,
		Reruns:        ctx.Bool("reruns"),
		Pattern:       ctx.String("pattern"),
		Field:         ctx.String("field"),
		Regex:         ctx.Bool("regex"),
		Outcome:       ctx.String("outcome"),
		MinDuration:   ctx.Float64("min-duration"),
		MaxDuration:   ctx.Float64("max-duration"),
		Warnings:      ctx.Bool("warnings"),
		Limit:         ctx.Int("limit"),
	}
	return o, nil
}

func (o queryOptions) hasTestCriteria() bool {
	return o.Pattern != "" || o.Outcome != "" || o.MinDuration != 0 || o.MaxDuration != 0 || o.Warnings
}

// build applies the options to q, newest sessions first. Build errors are left on the
// query for Execute to report.
func (o queryOptions) build(q *query.Query) (*query.Query, error) {
	if o.SUT != "" {
		q = q.WithSUT(o.SUT)
	}
	if o.TestingSystem != "" {
		q = q.WithTestingSystem(o.TestingSystem)
	}
	if o.SessionID != "" {
		q = q.WithSessionID(o.SessionID)
	}
	if o.Days != 0 {
		q = q.InLastDays(o.Days)
	}
	if o.Hours != 0 {
		q = q.InLastHours(o.Hours)
	}
	keys := make([]string, 0, len(o.Tags))
	for k := range o.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q = q.WithSessionTag(k, o.Tags[k])
	}
	if o.Reruns {
		q = q.WithReruns(true)
	}

	if o.hasTestCriteria() {
		f := q.FilterByTest()
		if o.Pattern != "" {
			opts := []query.PatternOption{query.InField(o.Field)}
			if o.Regex {
				opts = append(opts, query.AsRegex())
			}
			f = f.WithPattern(o.Pattern, opts...)
		}
		if o.Outcome != "" {
			outcome, err := model.ParseOutcome(o.Outcome)
			if err != nil {
				return nil, err
			}
			f = f.WithOutcome(outcome)
		}
		if o.MinDuration != 0 || o.MaxDuration != 0 {
			high := o.MaxDuration
			if high == 0 {
				high = filter.Inf
			}
			f = f.WithDurationBetween(o.MinDuration, high)
		}
		if o.Warnings {
			f = f.WithWarning(true)
		}
		q = f.Apply()
	}

	q = q.OrderByStartTime(true)
	if o.Limit != 0 {
		q = q.Limit(o.Limit)
	}
	return q, nil
}

func (a *App) query(ctx *cli.Context) error {
	opts, err := queryOptionsFrom(ctx)
	if err != nil {
		return err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	q, err := opts.build(query.New(st))
	if err != nil {
		return err
	}
	sessions, err := q.Execute(ctx.Context)
	if err != nil {
		return err
	}

	if ctx.Bool("json") {
		return export.WriteJSON(a.out, sessions)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(a.out, "No sessions matched")
		return nil
	}
	fmt.Fprintf(a.out, "\n=== Query (%d sessions) ===\n\n", len(sessions))
	for _, s := range sessions {
		a.printSessionSummary(s)
	}
	return nil
}
