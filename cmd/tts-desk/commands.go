package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/book-expert/tts-desk/internal/fsutil"
	"github.com/book-expert/tts-desk/internal/intake"
	"github.com/book-expert/tts-desk/internal/voices"
	"github.com/spf13/cobra"
)

// interruptible returns a context that is cancelled on Ctrl-C or SIGTERM, so
// a running synthesis is cancelled instead of orphaned.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newSpeakCommand(opts *rootOptions) *cobra.Command {
	var model, output, file string

	cmd := &cobra.Command{
		Use:   "speak [text...]",
		Short: "Synthesize text, read from the arguments or standard input",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			ctx, stop := interruptible(cmd)
			defer stop()

			modelPath, err := env.resolveModel(model)
			if err != nil {
				return err
			}

			if file != "" {
				return speakFile(ctx, cmd, env, file, modelPath, output)
			}

			text := strings.Join(args, " ")
			if text == "" {
				data, readErr := io.ReadAll(cmd.InOrStdin())
				if readErr != nil {
					return fmt.Errorf("failed to read text from standard input: %w", readErr)
				}

				text = string(data)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), msgEstimate, fsutil.FormatDuration(env.app.EstimateDuration(text).Seconds()))

			outcome, err := env.app.RunSynthesis(ctx, text, modelPath, output)
			if err != nil {
				env.log.Error("Synthesis failed: %v", err)

				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), msgGenerated, outcome.OutputPath, outcome.Elapsed.Round(time.Millisecond))

			return nil
		},
	}

	cmd.Flags().StringVarP(&model, flagModel, "m", "", flagModelDesc)
	cmd.Flags().StringVarP(&output, flagOutput, "o", "", flagOutputDesc)
	cmd.Flags().StringVarP(&file, flagFile, "f", "", flagFileDesc)

	return cmd
}

func speakFile(ctx context.Context, cmd *cobra.Command, env *environment, file, modelPath, output string) error {
	info, err := os.Stat(file)
	if err == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Streaming %s (%s)\n", file, fsutil.FormatFileSize(info.Size()))
	}

	start := time.Now()

	path, err := env.app.SynthesizeFromFile(ctx, file, modelPath, output)
	if err != nil {
		env.log.Error("Synthesis of '%s' failed: %v", file, err)

		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), msgGenerated, path, time.Since(start).Round(time.Millisecond))

	return nil
}

func newPreviewCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview [model]",
		Short: "Speak a short sample sentence with a voice model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			ctx, stop := interruptible(cmd)
			defer stop()

			requested := ""
			if len(args) == 1 {
				requested = args[0]
			}

			modelPath, err := env.resolveModel(requested)
			if err != nil {
				return err
			}

			path, err := env.app.PreviewVoice(ctx, modelPath)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), msgPreview, path)

			return nil
		},
	}
}

func newVoicesCommand(opts *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voice models in the model directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			dir := env.app.ModelDirectory()
			printVoices(cmd.OutOrStdout(), dir, env.app.Voices())

			if !watch {
				return nil
			}

			ctx, stop := interruptible(cmd)
			defer stop()

			watcher, err := voices.NewWatcher(dir, env.cfg.ModelWatchDebounce(), func(models []voices.VoiceModel) {
				printVoices(cmd.OutOrStdout(), dir, models)
			}, env.log)
			if err != nil {
				return err
			}

			return watcher.Run(ctx)
		},
	}

	cmd.Flags().BoolVarP(&watch, flagWatch, "w", false, flagWatchDesc)

	return cmd
}

func printVoices(out io.Writer, dir string, models []voices.VoiceModel) {
	if len(models) == 0 {
		fmt.Fprintf(out, msgNoVoices, dir)

		return
	}

	table := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, model := range models {
		fmt.Fprintf(table, "%s\t%s\n", model.Name, model.Path)
	}

	_ = table.Flush()
}

func newLoadCommand(opts *rootOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "load [file]",
		Short: "Validate a text file and print its contents",
		Long: `load applies the text file rules used by the editor: an allow-listed
extension or text-like content, and the intake size limit. Without an
argument the file is asked for interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			if check {
				if len(args) == 0 {
					return fmt.Errorf("%w: --%s needs a file argument", errFileRejected, flagCheck)
				}

				return reportDrop(cmd, env, args[0])
			}

			var result *intake.Result

			if len(args) == 1 {
				loaded := env.app.LoadTextFile(args[0])
				result = &loaded
			} else {
				result, err = env.app.ReadTextFile(cmd.Context())
				if err != nil {
					return err
				}
			}

			if result == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), msgNoFileSelected)

				return nil
			}

			fmt.Fprintln(cmd.ErrOrStderr(), result.Message())

			if result.Status != intake.StatusOK {
				return fmt.Errorf("%w: %s", errFileRejected, result.Path)
			}

			fmt.Fprint(cmd.OutOrStdout(), result.Text)

			return nil
		},
	}

	cmd.Flags().BoolVar(&check, flagCheck, false, flagCheckDesc)

	return cmd
}

func reportDrop(cmd *cobra.Command, env *environment, name string) error {
	drop := env.app.ValidateFileForDragDrop(name)
	if !drop.Valid {
		return fmt.Errorf("%w: %s", errFileRejected, drop.Reason)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s is accepted\n", name)

	return nil
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether synthesis is possible with the current settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			last := env.app.LastSettings()
			modelPath, _ := env.resolveModel("")
			caps := env.app.Capabilities(last.LastText, modelPath)

			table := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(table, "Executable:\t%s\t(valid: %t)\n", env.app.ExecutablePath(), env.app.ValidateExecutablePath())
			fmt.Fprintf(table, "Model directory:\t%s\t(%d models)\n", env.app.ModelDirectory(), len(env.app.ListVoiceModels()))
			fmt.Fprintf(table, "Model:\t%s\t\n", modelPath)
			fmt.Fprintf(table, "Last output:\t%s\t\n", last.LastOutput)
			fmt.Fprintf(table, "Can synthesize:\t%t\t%s\n", caps.CanSynthesize, caps.Reason)
			fmt.Fprintf(table, "Can preview:\t%t\t\n", caps.CanPreview)

			return table.Flush()
		},
	}
}
