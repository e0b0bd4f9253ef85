package cli

// This file contains the export command.

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/export"
	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/query"
)

var exportFormats = []string{"json", "csv", "pprof"}

// writeSessions renders sessions in format to w.
func writeSessions(w io.Writer, format string, sessions []*model.Session) error {
	switch format {
	case "json":
		return export.WriteJSON(w, sessions)
	case "csv":
		return export.WriteCSV(w, sessions)
	case "pprof":
		prof, err := export.DurationProfile(sessions)
		if err != nil {
			return fmt.Errorf("failed to build duration profile: %w", err)
		}
		return export.WriteProfile(w, prof)
	default:
		return fmt.Errorf("unknown export format %q (want json, csv or pprof)", format)
	}
}

func (a *App) exportSessions(ctx *cli.Context) error {
	format := ctx.String("format")
	if !slices.Contains(exportFormats, format) {
		return fmt.Errorf("unknown export format %q (want json, csv or pprof)", format)
	}

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

	output := ctx.String("output")
	if output == "" || output == "-" {
		return writeSessions(a.out, format, sessions)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeSessions(f, format, sessions); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	a.logger.Info().
		Str("path", output).
		Str("format", format).
		Int("sessions", len(sessions)).
		Msg("Sessions exported")
	return nil
}
