package cli

// This file contains the list command for displaying recorded sessions.

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/query"
	"github.com/perfgo/testinsight/store"
)

// newestFirst loads every session ordered by start time, newest first.
func newestFirst(ctx context.Context, st store.Store) ([]*model.Session, error) {
	sessions, err := query.New(st).OrderByStartTime(true).Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return sessions, nil
}

func (a *App) list(ctx *cli.Context) error {
	filterSUT := ctx.String("sut")
	limit := ctx.Int("limit")

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	q := query.New(st).OrderByStartTime(true)
	if filterSUT != "" {
		q = q.WithSUT(filterSUT)
	}
	sessions, err := q.Execute(ctx.Context)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	if len(sessions) == 0 {
		if filterSUT != "" {
			fmt.Fprintf(a.out, "No sessions found for SUT: %s\n", filterSUT)
		} else {
			fmt.Fprintln(a.out, "No sessions found")
		}
		return nil
	}

	// Apply limit
	displaySessions := sessions
	if limit > 0 && limit < len(displaySessions) {
		displaySessions = displaySessions[:limit]
	}

	fmt.Fprintf(a.out, "\n=== Sessions (%d total) ===\n\n", len(sessions))
	for _, s := range displaySessions {
		a.printSessionSummary(s)
	}

	fmt.Fprintf(a.out, "\nShow test results: %s show <ID>\n", AppName)
	fmt.Fprintf(a.out, "View duration profile: %s view <ID>\n", AppName)

	return nil
}
