package cli

// This file contains the show and view commands for inspecting a single session.

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/export"
	"github.com/perfgo/testinsight/model"
)

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

func parseViewArgs(in []string) (idArg string, pprofArgs []string) {
	if len(in) == 0 {
		return "0", nil
	}

	// If first arg is "--", use default "0" and rest are pprof args
	if in[0] == "--" {
		return "0", in[1:]
	}

	// "-1" is an index, "-top" or "-http=:8080" is a pprof flag
	if len(in[0]) > 1 && in[0][0] == '-' {
		if _, err := strconv.ParseInt(in[0], 10, 64); err != nil {
			return "0", in
		}
	}

	return in[0], removeFirstDashDash(in[1:])
}

// selectSession picks a session from a newest-first list. arg is either 0 or a negative
// index counting back from the latest session, or a session id prefix. An exact id match
// wins over prefix matches; several prefix matches are ambiguous.
func selectSession(sessions []*model.Session, arg string) (*model.Session, error) {
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no sessions found")
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for latest, -1 for second latest, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(sessions) {
			return nil, fmt.Errorf("index %s out of range (only %d sessions)", arg, len(sessions))
		}
		return sessions[index], nil
	}

	var matches []*model.Session
	for _, s := range sessions {
		if s.SessionID == arg {
			return s, nil
		}
		if strings.HasPrefix(s.SessionID, arg) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no session found matching ID: %s", arg)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("session ID prefix %s is ambiguous (%d matches)", arg, len(matches))
	}
}

func (a *App) show(ctx *cli.Context) error {
	arg := "0"
	if ctx.Args().Present() {
		arg = ctx.Args().First()
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	sessions, err := newestFirst(ctx.Context, st)
	if err != nil {
		return err
	}
	s, err := selectSession(sessions, arg)
	if err != nil {
		return err
	}

	if ctx.Bool("json") {
		return a.writeJSON(s)
	}
	a.displaySession(s, ctx.Bool("failed"))
	return nil
}

func (a *App) displaySession(s *model.Session, failedOnly bool) {
	fmt.Fprintf(a.out, "=== Session: %s ===\n", s.SessionID)
	fmt.Fprintf(a.out, "SUT: %s\n", s.SUTName)
	if s.TestingSystemName != "" {
		fmt.Fprintf(a.out, "Testing System: %s\n", s.TestingSystemName)
	}
	fmt.Fprintf(a.out, "Time: %s (%s)\n", s.StartTime.Local().Format(timeLayout), humanize.Time(s.StartTime))
	fmt.Fprintf(a.out, "Duration: %s\n", s.Duration().Round(time.Millisecond))
	if len(s.Tags) > 0 {
		fmt.Fprintf(a.out, "Tags: %s\n", formatTags(s.Tags))
	}
	fmt.Fprintf(a.out, "Tests: %s\n\n", outcomeCounts(s))

	for i := range s.TestResults {
		t := &s.TestResults[i]
		if failedOnly && !t.Outcome.IsFailure() {
			continue
		}
		fmt.Fprintf(a.out, "  %-8s %10s  %s\n", t.Outcome, formatSeconds(t.Duration), t.NodeID)
		if t.Outcome.IsFailure() && t.LongRepr != "" {
			for _, line := range strings.Split(strings.TrimRight(t.LongRepr, "\n"), "\n") {
				fmt.Fprintf(a.out, "      %s\n", line)
			}
		}
	}

	if len(s.RerunGroups) > 0 {
		fmt.Fprintln(a.out, "\nReruns:")
		for _, g := range s.RerunGroups {
			outcomes := make([]string, 0, len(g.Attempts))
			for _, attempt := range g.AllAttempts() {
				outcomes = append(outcomes, strings.ToLower(string(attempt.Outcome)))
			}
			fmt.Fprintf(a.out, "  %s: %s\n", g.NodeID, strings.Join(outcomes, " -> "))
		}
	}
}

func (a *App) view(ctx *cli.Context) error {
	// Parse arguments to extract ID/index and pprof args
	arg, pprofArgs := parseViewArgs(ctx.Args().Slice())

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	sessions, err := newestFirst(ctx.Context, st)
	if err != nil {
		return err
	}
	s, err := selectSession(sessions, arg)
	if err != nil {
		return err
	}

	prof, err := export.DurationProfile([]*model.Session{s})
	if err != nil {
		return fmt.Errorf("failed to build duration profile: %w", err)
	}

	dir, err := os.MkdirTemp("", AppName+"-view-")
	if err != nil {
		return fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			a.logger.Debug().Err(err).Str("path", dir).Msg("Failed to clean up profile directory")
		}
	}()

	profilePath := filepath.Join(dir, "durations.pb.gz")
	f, err := os.Create(profilePath)
	if err != nil {
		return fmt.Errorf("failed to create profile file: %w", err)
	}
	if err := export.WriteProfile(f, prof); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}

	fmt.Fprintf(a.out, "Profile: session %s (%d tests)\n", s.SessionID, len(s.TestResults))

	// Build pprof command with any additional args
	args := []string{"tool", "pprof"}
	args = append(args, pprofArgs...)
	args = append(args, profilePath)

	cmd := exec.Command("go", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = dir

	return cmd.Run()
}
