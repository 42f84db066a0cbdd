package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/waabox/modeldeck/internal/catalog"
	"github.com/waabox/modeldeck/internal/config"
	"github.com/waabox/modeldeck/internal/domain"
	"github.com/waabox/modeldeck/internal/signin"
	"github.com/waabox/modeldeck/internal/tui"
)

func newSignInCmd(a *app) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with the GitHub device flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				final signin.Snapshot
				err   error
			)
			if plain {
				final, err = runPlainSignIn(cmd, a.auth)
			} else {
				final, err = tui.RunSignIn(cmd.Context(), a.auth)
			}
			if err != nil {
				return err
			}
			switch final.State {
			case domain.StateSucceeded:
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", final.User.Login)
				return nil
			case domain.StateFailed:
				return fmt.Errorf("sign-in failed (%s): %s", final.Reason, final.Error)
			default:
				return domain.ErrCancelled
			}
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print the code instead of opening the interactive view")
	return cmd
}

// runPlainSignIn writes prompts to stderr so stdout remains clean for piping.
func runPlainSignIn(cmd *cobra.Command, auth *signin.Authenticator) (signin.Snapshot, error) {
	ctx := cmd.Context()
	updates, unsubscribe := auth.Subscribe()
	defer unsubscribe()

	auth.SignIn(ctx)
	for snap := range updates {
		if snap.State == domain.StateAwaitingVerification && snap.Prompt != nil {
			errOut := cmd.ErrOrStderr()
			fmt.Fprintf(errOut, "Visit:      %s\n", snap.Prompt.VerificationURIComplete)
			fmt.Fprintf(errOut, "Enter code: %s\n", snap.Prompt.UserCode)
			fmt.Fprintf(errOut, "Press enter once you have authorized modeldeck...\n")
			go func() {
				bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				_ = auth.Confirm()
			}()
			break
		}
		if snap.State.Terminal() {
			break
		}
	}
	// A failed attempt is reported through the snapshot.
	if _, err := auth.Wait(ctx); errors.Is(err, context.Canceled) {
		auth.Cancel()
	}
	return auth.Snapshot(), nil
}

func newSignOutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.auth.SignOut(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without contacting GitHub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap := a.auth.Snapshot()
			out := cmd.OutOrStdout()
			if !snap.IsAuthenticated {
				fmt.Fprintln(out, "Not signed in.")
				return nil
			}
			u := snap.User
			fmt.Fprintf(out, "Signed in as %s", u.Login)
			if u.DisplayName != "" && u.DisplayName != u.Login {
				fmt.Fprintf(out, " (%s)", u.DisplayName)
			}
			fmt.Fprintln(out)
			if u.Email != "" {
				fmt.Fprintf(out, "Email: %s\n", u.Email)
			}
			if !snap.CapturedAt.IsZero() {
				validUntil := snap.CapturedAt.Add(a.store.Retention())
				fmt.Fprintf(out, "Valid until: %s\n", validUntil.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available to the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lister := catalog.NewGuarded(catalog.NewClient(a.cfg.ModelsURLOrDefault()), a.auth)
			models, err := lister.ListModels(cmd.Context())
			if errors.Is(err, catalog.ErrNotSignedIn) {
				return errNotSignedIn
			}
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPUBLISHER\tTIER")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Publisher, m.RateLimitTier)
			}
			return w.Flush()
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change the modeldeck config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Persist a setting to the config file",
		Long:      "Persist a setting to the config file.\n\nKeys: " + strings.Join(config.Keys, ", "),
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setConfigValue(a.configPath, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s.\n", args[0], a.configPath)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.configPath)
			return nil
		},
	})
	return cmd
}

// setConfigValue edits the file only, so environment overrides never get written back.
func setConfigValue(path, key, value string) error {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}
