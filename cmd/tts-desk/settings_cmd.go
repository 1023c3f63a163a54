package main

import (
	"context"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func newSettingsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the persisted settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the settings file contents",
			Args:  cobra.NoArgs,
			RunE: withEnvironment(opts, func(cmd *cobra.Command, env *environment, _ []string) error {
				data, err := toml.Marshal(env.store.Snapshot())
				if err != nil {
					return fmt.Errorf("failed to encode settings: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", env.store.Path(), data)

				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-executable PATH",
			Short: "Use PATH as the Piper executable",
			Args:  cobra.ExactArgs(1),
			RunE: withEnvironment(opts, func(cmd *cobra.Command, env *environment, args []string) error {
				err := env.app.SetExecutablePath(args[0])
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Executable: %s (valid: %t)\n", args[0], env.app.ValidateExecutablePath())

				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-models DIR",
			Short: "Use DIR as the voice model directory",
			Args:  cobra.ExactArgs(1),
			RunE: withEnvironment(opts, func(cmd *cobra.Command, env *environment, args []string) error {
				err := env.app.SetModelDirectory(args[0])
				if err != nil {
					return err
				}

				printVoices(cmd.OutOrStdout(), args[0], env.app.Voices())

				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-output PATH",
			Short: "Write audio to PATH when no output is given",
			Args:  cobra.ExactArgs(1),
			RunE: withEnvironment(opts, func(_ *cobra.Command, env *environment, args []string) error {
				return env.app.SetOutputPath(args[0])
			}),
		},
		newChooseCommand(opts, "choose-executable", "Ask for the Piper executable", func(ctx context.Context, env *environment) (string, error) {
			return env.app.ChooseExecutablePath(ctx)
		}),
		newChooseCommand(opts, "choose-models", "Ask for the voice model directory", func(ctx context.Context, env *environment) (string, error) {
			return env.app.ChooseModelDirectory(ctx)
		}),
		newChooseCommand(opts, "choose-output", "Ask where to save audio", func(ctx context.Context, env *environment) (string, error) {
			return env.app.ChooseOutputFile(ctx)
		}),
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the default settings",
			Args:  cobra.NoArgs,
			RunE: withEnvironment(opts, func(cmd *cobra.Command, env *environment, _ []string) error {
				result, err := env.app.ResetSettings()
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Executable: %s\nModel directory: %s\n", result.ExecutablePath, result.ModelDirectory)

				return nil
			}),
		},
	)

	return cmd
}

func newChooseCommand(
	opts *rootOptions,
	use, short string,
	choose func(ctx context.Context, env *environment) (string, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withEnvironment(opts, func(cmd *cobra.Command, env *environment, _ []string) error {
			chosen, err := choose(cmd.Context(), env)
			if err != nil {
				return err
			}

			if chosen == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), msgNoFileSelected)

				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", chosen)

			return nil
		}),
	}
}

// withEnvironment opens the environment around a command body.
func withEnvironment(
	opts *rootOptions,
	body func(cmd *cobra.Command, env *environment, args []string) error,
) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := opts.open(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		return body(cmd, env, args)
	}
}
