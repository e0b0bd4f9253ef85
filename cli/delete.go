package cli

// This file contains the delete command.

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/store"
)

func (a *App) deleteSessions(ctx *cli.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	if ctx.Bool("all") {
		n, err := store.Clear(ctx.Context, st)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %d sessions\n", n)
		return nil
	}

	args := ctx.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("no sessions specified: pass session ids or indexes, or --all")
	}

	sessions, err := newestFirst(ctx.Context, st)
	if err != nil {
		return err
	}

	// Resolve every argument before deleting so indexes refer to the same listing.
	targets := make([]*model.Session, 0, len(args))
	for _, arg := range args {
		s, err := selectSession(sessions, arg)
		if err != nil {
			return err
		}
		targets = append(targets, s)
	}

	deleted := 0
	for _, s := range targets {
		if err := st.Delete(ctx.Context, s.SessionID); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", s.SessionID, err)
		}
		a.logger.Debug().Str("session", s.SessionID).Msg("Deleted session")
		deleted++
	}
	fmt.Fprintf(a.out, "Deleted %d sessions\n", deleted)
	return nil
}
