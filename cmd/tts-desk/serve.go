package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/config"
	"github.com/book-expert/tts-desk/internal/objectstore"
	"github.com/book-expert/tts-desk/internal/voices"
	"github.com/book-expert/tts-desk/internal/worker"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	embeddedHost         = "127.0.0.1"
	embeddedReadyTimeout = 10 * time.Second
	natsClientName       = "tts-desk"
)

var errEmbeddedNotReady = errors.New("embedded NATS server failed to start within timeout")

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		embedded bool
		natsURL  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tts-desk operations over NATS",
		Args:  cobra.NoArgs,
		RunE: withEnvironment(opts, func(cmd *cobra.Command, env *environment, _ []string) error {
			if cmd.Flags().Changed(flagEmbedded) {
				env.cfg.NATS.Embedded = embedded
			}

			if natsURL != "" {
				env.cfg.NATS.URL = natsURL
			}

			ctx, stop := interruptible(cmd)
			defer stop()

			return serve(ctx, env)
		}),
	}

	cmd.Flags().BoolVar(&embedded, flagEmbedded, false, flagEmbeddedDesc)
	cmd.Flags().StringVar(&natsURL, flagNATSURL, "", flagNATSURLDesc)

	return cmd
}

// serve runs the worker and the model directory watcher until ctx is done.
func serve(ctx context.Context, env *environment) error {
	url := env.cfg.NATS.URL

	if env.cfg.NATS.Embedded {
		natsServer, err := startEmbeddedServer(env.cfg, env.log)
		if err != nil {
			return err
		}
		defer natsServer.Shutdown()

		url = natsServer.ClientURL()
	}

	natsConnection, err := nats.Connect(url, nats.Name(natsClientName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	defer natsConnection.Close()

	var natsWorker *worker.NatsWorker

	watcher, err := voices.NewWatcher(env.app.ModelDirectory(), env.cfg.ModelWatchDebounce(), func(models []voices.VoiceModel) {
		publishErr := natsWorker.PublishVoices(models)
		if publishErr != nil {
			env.log.Warn("Failed to publish voice model update: %v", publishErr)
		}
	}, env.log)
	if err != nil {
		return err
	}

	options := worker.Options{
		SubjectPrefix:         env.cfg.NATS.SubjectPrefix,
		QueueGroup:            env.cfg.NATS.QueueGroup,
		CompletionSubject:     env.cfg.NATS.CompletionSubject,
		Archive:               nil,
		ModelDirectoryChanged: watcher.Retarget,
	}

	if env.cfg.NATS.AudioObjectStoreBucket != "" {
		jetstreamContext, jsErr := natsConnection.JetStream()
		if jsErr != nil {
			return fmt.Errorf("failed to get JetStream context: %w", jsErr)
		}

		archive, archiveErr := objectstore.New(jetstreamContext, env.cfg.NATS.AudioObjectStoreBucket)
		if archiveErr != nil {
			return archiveErr
		}

		options.Archive = archive
	}

	natsWorker, err = worker.NewNatsWorker(natsConnection, env.app, options, env.log)
	if err != nil {
		return err
	}

	env.log.System("tts-desk serving on %s with subject prefix '%s'", url, env.cfg.NATS.SubjectPrefix)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return natsWorker.Run(groupCtx) })
	group.Go(func() error { return watcher.Run(groupCtx) })

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("tts-desk server stopped: %w", err)
	}

	env.log.System("tts-desk server stopped")

	return nil
}

func startEmbeddedServer(cfg *config.Config, log *logger.Logger) (*server.Server, error) {
	storeDir := cfg.NATS.EmbeddedStoreDir
	if storeDir == "" {
		storeDir = filepath.Join(cfg.Paths.CacheDir, "nats")
	}

	natsServer, err := server.NewServer(&server.Options{
		Host:      embeddedHost,
		Port:      cfg.NATS.EmbeddedPort,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  storeDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	go natsServer.Start()

	if !natsServer.ReadyForConnections(embeddedReadyTimeout) {
		natsServer.Shutdown()

		return nil, errEmbeddedNotReady
	}

	log.Info("Embedded NATS server listening on %s (store: %s)", natsServer.ClientURL(), storeDir)

	return natsServer, nil
}
