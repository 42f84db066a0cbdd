package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waabox/modeldeck/internal/auth"
	"github.com/waabox/modeldeck/internal/config"
	"github.com/waabox/modeldeck/internal/logging"
	"github.com/waabox/modeldeck/internal/session"
	"github.com/waabox/modeldeck/internal/signin"
)

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	configPath string
	cfg        config.Config
	log        zerolog.Logger
	store      *session.Store
	auth       *signin.Authenticator
}

func newRootCmd() *cobra.Command {
	var (
		verbose bool
		a       app
	)

	root := &cobra.Command{
		Use:           "modeldeck",
		Short:         "Sign in with GitHub and browse the models available to you",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(a.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			a.cfg = cfg
			a.log = logging.New(level, true)

			storage := session.NewFileStorage(filepath.Join(cfg.StateDirOrDefault(), "session"))
			a.store = session.NewStore(storage, cfg.Retention(), nil)
			a.auth = signin.New(
				signin.NewProxyClient(cfg.ProxyURLOrDefault()),
				auth.NewProfileClient(cfg.APIBaseURLOrDefault()),
				a.store,
				signin.WithSlowDownStep(cfg.SlowDownStep()),
				signin.WithLogger(a.log),
			)
			if err := a.auth.Load(); err != nil {
				a.log.Warn().Err(err).Msg("could not load persisted session")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath(), "path to the config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newSignInCmd(&a),
		newSignOutCmd(&a),
		newStatusCmd(&a),
		newModelsCmd(&a),
		newConfigCmd(&a),
	)
	return root
}

var errNotSignedIn = errors.New("not signed in: run 'modeldeck signin'")
