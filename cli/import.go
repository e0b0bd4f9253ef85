package cli

// This file contains the import command, which loads JUnit XML reports and exported
// JSON session files into the configured store.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/export"
	"github.com/perfgo/testinsight/ingest"
	"github.com/perfgo/testinsight/model"
	"github.com/perfgo/testinsight/store"
)

// splitInputs separates exported JSON files from JUnit reports by extension.
func splitInputs(paths []string) (junitPaths, jsonPaths []string) {
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ".json") {
			jsonPaths = append(jsonPaths, p)
		} else {
			junitPaths = append(junitPaths, p)
		}
	}
	return junitPaths, jsonPaths
}

func readSessionsFile(path string) ([]*model.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sessions, err := export.ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sessions, nil
}

func (a *App) importFiles(ctx *cli.Context) error {
	paths := ctx.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("no input files specified: please provide JUnit XML reports or exported JSON files")
	}

	strategy, err := store.ParseStrategy(ctx.String("strategy"))
	if err != nil {
		return err
	}
	tags, err := parseTags(ctx.StringSlice("tag"))
	if err != nil {
		return err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	junitPaths, jsonPaths := splitInputs(paths)

	var sessions []*model.Session
	var result *multierror.Error

	if len(junitPaths) > 0 {
		opts := ingest.Options{
			SessionID:     ctx.String("session-id"),
			SUTName:       ctx.String("sut"),
			TestingSystem: ctx.String("testing-system"),
			Tags:          tags,
		}
		parsed, err := ingest.ImportFiles(ctx.Context, a.logger, junitPaths, opts, ctx.Int("concurrency"))
		if err != nil {
			result = multierror.Append(result, err)
		}
		sessions = append(sessions, parsed...)
	}

	for _, p := range jsonPaths {
		loaded, err := readSessionsFile(p)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		a.logger.Debug().Str("path", p).Int("sessions", len(loaded)).Msg("Read exported sessions")
		sessions = append(sessions, loaded...)
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("failed to read input files: %w", err)
	}

	stats, err := store.Import(ctx.Context, st, sessions, strategy)
	if err != nil {
		return fmt.Errorf("failed to import sessions: %w", err)
	}

	a.logger.Info().
		Int("imported", stats.Imported).
		Int("skipped", stats.Skipped).
		Int("replaced", stats.Replaced).
		Int("renamed", stats.Renamed).
		Str("strategy", string(strategy)).
		Msg("Import finished")

	fmt.Fprintf(a.out, "Imported %d sessions (%d skipped, %d replaced, %d renamed)\n",
		stats.Imported, stats.Skipped, stats.Replaced, stats.Renamed)
	return nil
}
