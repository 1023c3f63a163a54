package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/tts-desk/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// remoteFlags holds the arguments forwarded to a remote operation.
type remoteFlags struct {
	natsURL string
	path    string
	text    string
	model   string
	output  string
	key     string
	timeout time.Duration
}

func newRemoteCommand(opts *rootOptions) *cobra.Command {
	var flags remoteFlags

	cmd := &cobra.Command{
		Use:   "remote OPERATION",
		Short: "Call an operation on a running tts-desk server",
		Long: `remote sends one request to a tts-desk server and prints the JSON reply
data. OPERATION is the operation name, e.g. listVoiceModels, runSynthesis,
cancelSynthesis or getAudio.`,
		Args: cobra.ExactArgs(1),
		RunE: withEnvironment(opts, func(cmd *cobra.Command, env *environment, args []string) error {
			url := env.cfg.NATS.URL
			if flags.natsURL != "" {
				url = flags.natsURL
			}

			natsConnection, err := nats.Connect(url, nats.Name(natsClientName+"-remote"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
			}
			defer natsConnection.Close()

			client, err := worker.NewClient(natsConnection, env.cfg.NATS.SubjectPrefix, flags.timeout)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			return callRemote(ctx, cmd, client, args[0], flags)
		}),
	}

	cmd.Flags().StringVar(&flags.natsURL, flagNATSURL, "", flagNATSURLDesc)
	cmd.Flags().StringVar(&flags.path, flagPath, "", flagPathDesc)
	cmd.Flags().StringVar(&flags.text, flagText, "", flagTextDesc)
	cmd.Flags().StringVarP(&flags.model, flagModel, "m", "", flagModelDesc)
	cmd.Flags().StringVarP(&flags.output, flagOutput, "o", "", flagOutputDesc)
	cmd.Flags().StringVar(&flags.key, flagAudioKey, "", flagAudioKeyDesc)
	cmd.Flags().DurationVar(&flags.timeout, flagTimeout, worker.DefaultRequestTimeout, flagTimeoutDesc)

	return cmd
}

func callRemote(ctx context.Context, cmd *cobra.Command, client *worker.Client, op string, flags remoteFlags) error {
	var data json.RawMessage

	err := client.Call(ctx, op, worker.Request{
		Path:       flags.path,
		Text:       flags.text,
		ModelPath:  flags.model,
		OutputPath: flags.output,
		AudioKey:   flags.key,
		Bounds:     nil,
	}, &data)

	if len(data) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	return err
}
