package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/store"
)

const AppName = "testinsight"

type App struct {
	logger zerolog.Logger
	out    io.Writer
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		out:    os.Stdout,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Query, compare and analyze recorded test sessions",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "profile",
					Usage:   "Storage profile to use",
					Value:   store.DefaultProfileName,
					EnvVars: []string{"TESTINSIGHT_PROFILE"},
				},
				&cli.StringFlag{
					Name:    "profiles-file",
					Usage:   "YAML file with storage profiles",
					Value:   store.DefaultProfilesPath(),
					EnvVars: []string{"TESTINSIGHT_PROFILES_FILE"},
				},
				&cli.StringFlag{
					Name:    "storage",
					Usage:   "Session store path, overrides the profile (*.json is a single file, anything else a directory)",
					EnvVars: []string{"TESTINSIGHT_STORAGE"},
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}

	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List recorded sessions, newest first",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sut",
				Usage: "Only sessions of this system under test",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "show",
		Usage:     "Show the test results of a session",
		ArgsUsage: "[ID|INDEX]",
		Action:    app.show,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Only show failed and errored tests",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the session as JSON",
			},
		},
		Description: `Show a session from the store.

Arguments:
  0           Show the latest session (default)
  -1          Show the 2nd latest session
  <id>        Show the session whose id starts with <id>`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "View the test duration profile of a session with pprof",
		ArgsUsage:       "[ID|INDEX] [PPROF ARGS]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `Build a pprof profile of test durations and open it with go tool pprof.

Arguments:
  0           View the latest session (default)
  -1          View the 2nd latest session
  <id>        View the session whose id starts with <id>

Examples:
  testinsight view                 # Interactive pprof on the latest session
  testinsight view -1 -top         # Top tests of the 2nd latest session
  testinsight view abc123 -http=:8080`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "query",
		Usage:  "Find sessions by session and test attributes",
		Action: app.query,
		Flags:  queryFlags(),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "compare",
		Usage:  "Compare test results of a base and a target system under test",
		Action: app.compare,
		Flags:  compareFlags(),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "analyze",
		Usage:  "Print reliability, duration and co-failure metrics",
		Action: app.analyze,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sut",
				Usage: "Only sessions of this system under test",
			},
			&cli.IntFlag{
				Name:  "days",
				Usage: "Only sessions started in the last N days",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of slowest and most failing tests to show",
				Value:   10,
			},
			&cli.IntFlag{
				Name:  "min-support",
				Usage: "Minimum number of sessions a co-failure cluster must fail together in",
				Value: 2,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the report as JSON",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "import",
		Usage:     "Import JUnit XML reports or exported JSON sessions into the store",
		ArgsUsage: "FILE...",
		Action:    app.importFiles,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sut",
				Usage: "System under test name for JUnit reports (default: suite name)",
			},
			&cli.StringFlag{
				Name:  "session-id",
				Usage: "Session id for JUnit reports (default: random)",
			},
			&cli.StringFlag{
				Name:  "testing-system",
				Usage: "Testing system name for JUnit reports (default: report hostname)",
			},
			&cli.StringSliceFlag{
				Name:  "tag",
				Usage: "Session tag KEY=VALUE added to JUnit reports (repeatable)",
			},
			&cli.StringFlag{
				Name:  "strategy",
				Usage: "What to do with existing session ids: skip_existing, replace_existing or keep_both",
				Value: string(store.SkipExisting),
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Number of reports parsed in parallel",
				Value: 4,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "export",
		Usage:  "Export sessions as JSON, CSV or a pprof duration profile",
		Action: app.exportSessions,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: json, csv or pprof",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (default: stdout)",
			},
			&cli.StringFlag{
				Name:  "sut",
				Usage: "Only sessions of this system under test",
			},
			&cli.IntFlag{
				Name:  "days",
				Usage: "Only sessions started in the last N days",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "delete",
		Usage:     "Delete sessions from the store",
		ArgsUsage: "[ID|INDEX]...",
		Action:    app.deleteSessions,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Delete every session",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:  "profiles",
		Usage: "Manage storage profiles",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List configured profiles",
				Action: app.profilesList,
			},
			{
				Name:      "add",
				Usage:     "Add or replace a profile",
				ArgsUsage: "NAME",
				Action:    app.profilesAdd,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Storage type: json, dir or memory",
						Value: string(store.TypeJSON),
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "Store path (default: ~/.testinsight/<name>.json)",
					},
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a profile",
				ArgsUsage: "NAME",
				Action:    app.profilesRemove,
			},
		},
		// Default action when no subcommand is specified
		Action: app.profilesList,
	})
	return app
}

func (a *App) Run(args []string) error {
	a.cli.Writer = a.out
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		if len(commit) > 8 {
			commit = commit[:8]
		}
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	}
}

// resolveProfile picks the storage profile for a command. An explicit storage path wins
// over the named profile.
func resolveProfile(name, profilesPath, storagePath string) (store.Profile, error) {
	if storagePath != "" {
		typ := store.TypeDir
		if strings.EqualFold(filepath.Ext(storagePath), ".json") {
			typ = store.TypeJSON
		}
		return store.Profile{Name: "storage", Type: typ, Path: storagePath}, nil
	}

	profiles, err := store.LoadProfiles(profilesPath)
	if err != nil {
		return store.Profile{}, err
	}
	return profiles.Get(name)
}

func (a *App) openStore(ctx *cli.Context) (store.Store, error) {
	profile, err := resolveProfile(ctx.String("profile"), ctx.String("profiles-file"), ctx.String("storage"))
	if err != nil {
		return nil, err
	}

	a.logger.Debug().
		Str("profile", profile.Name).
		Str("type", string(profile.Type)).
		Str("path", profile.Path).
		Msg("Opening session store")

	return store.Open(a.logger, profile)
}

// parseTags turns KEY=VALUE pairs into a map.
func parseTags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid tag %q: expected KEY=VALUE", pair)
		}
		tags[key] = value
	}
	return tags, nil
}
