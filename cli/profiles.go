package cli

// This file contains the profiles commands for managing named storage configurations.

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/testinsight/store"
)

func (a *App) profilesList(ctx *cli.Context) error {
	path := ctx.String("profiles-file")
	profiles, err := store.LoadProfiles(path)
	if err != nil {
		return err
	}

	active := ctx.String("profile")
	if _, ok := profiles[store.DefaultProfileName]; !ok {
		profiles[store.DefaultProfileName] = store.DefaultProfile(store.DefaultProfileName)
	}

	fmt.Fprintf(a.out, "\n=== Profiles (%s) ===\n\n", path)
	for _, name := range profiles.Names() {
		p := profiles[name]
		marker := " "
		if name == active {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %-16s %-7s %s\n", marker, name, p.Type, p.Path)
	}
	return nil
}

func (a *App) profilesAdd(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return fmt.Errorf("no profile name specified")
	}

	path := ctx.String("profiles-file")
	profiles, err := store.LoadProfiles(path)
	if err != nil {
		return err
	}

	p := store.Profile{Name: name, Type: store.Type(ctx.String("type")), Path: ctx.String("path")}
	if p.Path == "" && p.Type == store.TypeJSON {
		p.Path = store.DefaultProfile(name).Path
	}
	if err := p.Validate(); err != nil {
		return err
	}
	profiles[name] = p

	if err := store.SaveProfiles(path, profiles); err != nil {
		return err
	}
	a.logger.Info().Str("profile", name).Str("type", string(p.Type)).Str("path", p.Path).Msg("Profile saved")
	return nil
}

func (a *App) profilesRemove(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return fmt.Errorf("no profile name specified")
	}

	path := ctx.String("profiles-file")
	profiles, err := store.LoadProfiles(path)
	if err != nil {
		return err
	}
	if _, ok := profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	delete(profiles, name)

	if err := store.SaveProfiles(path, profiles); err != nil {
		return err
	}
	a.logger.Info().Str("profile", name).Msg("Profile removed")
	return nil
}
