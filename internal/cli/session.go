package cli

import (
	"context"
	stderrors "errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/host"
	"github.com/spf13/cobra"
)

// defaultEnvFile is loaded when --env-file is not given and it exists.
const defaultEnvFile = ".env"

// session is the loaded inventory and resolved settings for one command.
type session struct {
	cfg      *config.Config
	dir      *config.Directory
	settings config.Settings
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing default file is fine; a missing explicit one is not.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't load env file "+path,
			"Check the file exists and uses KEY=value lines")
	}
	return nil
}

// openSession loads the env file and the inventory, then layers settings
// from the source, HERD_* variables and any changed flags on cmd.
func openSession(ctx context.Context, app *App, g *globalFlags, cmd *cobra.Command) (*session, error) {
	if err := loadEnvFile(g.envFile); err != nil {
		return nil, err
	}

	uri, err := config.ParseURI(g.config)
	if err != nil {
		return nil, err
	}
	cfg, err := app.Registry.Load(ctx, uri)
	if err != nil {
		return nil, err
	}
	dir, err := config.NewDirectory(cfg.Servers)
	if err != nil {
		return nil, err
	}

	v, err := config.NewSettingsViper(cfg)
	if err != nil {
		return nil, err
	}
	bind := func(keys map[string]string) error {
		for key, name := range keys {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't bind --"+name, "")
			}
		}
		return nil
	}
	if err := bind(settingFlags); err != nil {
		return nil, err
	}
	if err := bind(persistentSettingFlags); err != nil {
		return nil, err
	}

	settings, err := config.DecodeSettings(v)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, dir: dir, settings: settings}, nil
}

// targets resolves the selection against the session's inventory.
func (s *session) targets(f *SelectionFlags) ([]*config.Server, error) {
	return host.Resolve(f.Pattern(), s.dir)
}
