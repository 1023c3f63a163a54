// Package worker exposes the tts-desk operations over NATS request/reply.
//
// Every operation is served on "<prefix>.<operation>" with a JSON Request
// body and a JSON Reply. Completed synthesis jobs are optionally archived in
// an object store and announced as events.AudioChunkCreatedEvent.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/core"
	"github.com/book-expert/tts-desk/internal/desk"
	"github.com/book-expert/tts-desk/internal/fsutil"
	"github.com/book-expert/tts-desk/internal/tts"
	"github.com/book-expert/tts-desk/internal/voices"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// voicesChangedSuffix is appended to the prefix for model list updates.
	voicesChangedSuffix = ".voices.changed"
	archiveTimeout      = 2 * time.Minute
)

var (
	// ErrNoConnection indicates a worker or client built without a NATS connection.
	ErrNoConnection = errors.New("nats connection cannot be nil")
	// ErrSubjectPrefixEmpty indicates a worker or client built without a subject prefix.
	ErrSubjectPrefixEmpty = errors.New("subject prefix cannot be empty")
	// ErrShuttingDown is returned for requests that arrive while the worker drains.
	ErrShuttingDown = errors.New("worker is shutting down")
)

// Options configure a NatsWorker.
type Options struct {
	SubjectPrefix     string
	QueueGroup        string
	CompletionSubject string
	// Archive receives completed audio when set and serves getAudio.
	Archive core.ObjectStore
	// ModelDirectoryChanged, when set, is told the new model directory after
	// setModelDirectory or resetSettings, e.g. to retarget a voices.Watcher.
	ModelDirectoryChanged func(dir string)
}

type handlerFunc func(ctx context.Context, req Request) (any, error)

// NatsWorker answers tts-desk requests arriving on NATS.
type NatsWorker struct {
	natsConnection *nats.Conn
	app            *desk.App
	options        Options
	handlers       map[string]handlerFunc
	log            *logger.Logger

	mu       sync.Mutex
	runCtx   context.Context
	draining bool
	inflight sync.WaitGroup
}

// NewNatsWorker creates a worker serving app.
func NewNatsWorker(
	natsConnection *nats.Conn,
	app *desk.App,
	options Options,
	log *logger.Logger,
) (*NatsWorker, error) {
	if natsConnection == nil {
		return nil, ErrNoConnection
	}

	if options.SubjectPrefix == "" {
		return nil, ErrSubjectPrefixEmpty
	}

	w := &NatsWorker{
		natsConnection: natsConnection,
		app:            app,
		options:        options,
		handlers:       nil,
		log:            log,
		mu:             sync.Mutex{},
		runCtx:         context.Background(),
		draining:       false,
		inflight:       sync.WaitGroup{},
	}
	w.handlers = w.routes()

	return w, nil
}

// Subject returns the request subject of op.
func (w *NatsWorker) Subject(op string) string {
	return w.options.SubjectPrefix + "." + op
}

// VoicesChangedSubject is where PublishVoices announces model list updates.
func (w *NatsWorker) VoicesChangedSubject() string {
	return w.options.SubjectPrefix + voicesChangedSuffix
}

// Run subscribes to every operation subject and serves requests until ctx
// is done. Each request is handled on its own goroutine so a long synthesis
// never blocks a cancelSynthesis request.
func (w *NatsWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.runCtx = ctx
	w.draining = false
	w.mu.Unlock()

	wildcard := w.options.SubjectPrefix + ".*"

	sub, err := w.natsConnection.QueueSubscribe(wildcard, w.options.QueueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", wildcard, err)
	}

	w.log.Info("Worker listening on %s (queue group '%s')", wildcard, w.options.QueueGroup)

	<-ctx.Done()

	drainErr := sub.Drain()

	w.mu.Lock()
	w.draining = true
	w.mu.Unlock()

	w.inflight.Wait()
	w.log.Info("Worker on %s stopped", wildcard)

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	w.mu.Lock()
	if w.draining {
		w.mu.Unlock()
		w.respond(msg, nil, ErrShuttingDown)

		return
	}

	ctx := w.runCtx
	w.inflight.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.inflight.Done()

		data, err := w.dispatch(ctx, msg)
		w.respond(msg, data, err)
	}()
}

func (w *NatsWorker) dispatch(ctx context.Context, msg *nats.Msg) (any, error) {
	op := msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]

	handler, ok := w.handlers[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	var req Request

	if len(msg.Data) > 0 {
		err := json.Unmarshal(msg.Data, &req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	return handler(ctx, req)
}

func (w *NatsWorker) respond(msg *nats.Msg, data any, opErr error) {
	if msg.Reply == "" {
		w.log.Warn("Dropping reply for %s: request has no reply subject", msg.Subject)

		return
	}

	reply := Reply{OK: opErr == nil, Error: "", Kind: "", Data: nil}

	if opErr != nil {
		reply.Error = opErr.Error()
		reply.Kind = kindOf(opErr)
		w.log.Warn("Request %s failed (%s): %v", msg.Subject, reply.Kind, opErr)
	}

	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			reply = Reply{OK: false, Error: err.Error(), Kind: KindInternal, Data: nil}
		} else {
			reply.Data = encoded
		}
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply for %s: %v", msg.Subject, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply for %s: %v", msg.Subject, err)
	}
}

// PublishVoices announces the current model list, e.g. after the model
// directory watcher fired.
func (w *NatsWorker) PublishVoices(models []voices.VoiceModel) error {
	data, err := json.Marshal(voices.Paths(models))
	if err != nil {
		return fmt.Errorf("failed to marshal voice models: %w", err)
	}

	err = w.natsConnection.Publish(w.VoicesChangedSubject(), data)
	if err != nil {
		return fmt.Errorf("failed to publish voice models: %w", err)
	}

	return nil
}

func (w *NatsWorker) routes() map[string]handlerFunc {
	app := w.app

	return map[string]handlerFunc{
		OpGetExecutablePath: func(context.Context, Request) (any, error) {
			return app.ExecutablePath(), nil
		},
		OpSetExecutablePath: func(_ context.Context, req Request) (any, error) {
			err := requireField("path", req.Path)
			if err != nil {
				return nil, err
			}

			err = app.SetExecutablePath(req.Path)
			if err != nil {
				return nil, err
			}

			return app.ValidateExecutablePath(), nil
		},
		OpValidateExecutablePath: func(context.Context, Request) (any, error) {
			return app.ValidateExecutablePath(), nil
		},
		OpGetModelDirectory: func(context.Context, Request) (any, error) {
			return app.ModelDirectory(), nil
		},
		OpSetModelDirectory: func(_ context.Context, req Request) (any, error) {
			err := requireField("path", req.Path)
			if err != nil {
				return nil, err
			}

			err = app.SetModelDirectory(req.Path)
			if err != nil {
				return nil, err
			}

			w.modelDirectoryChanged(app.ModelDirectory())

			return app.ListVoiceModels(), nil
		},
		OpListVoiceModels: func(context.Context, Request) (any, error) {
			return app.ListVoiceModels(), nil
		},
		OpValidateModelPath: func(_ context.Context, req Request) (any, error) {
			return app.ValidateModelPath(req.Path), nil
		},
		OpSetOutputPath: func(_ context.Context, req Request) (any, error) {
			err := requireField("path", req.Path)
			if err != nil {
				return nil, err
			}

			return req.Path, app.SetOutputPath(req.Path)
		},
		OpRunSynthesis: func(ctx context.Context, req Request) (any, error) {
			outcome, err := app.RunSynthesis(ctx, req.Text, req.ModelPath, req.OutputPath)

			return w.finishSynthesis(ctx, outcome, err)
		},
		OpPreviewVoice: func(ctx context.Context, req Request) (any, error) {
			return app.PreviewVoice(ctx, req.ModelPath)
		},
		OpCancelSynthesis: func(context.Context, Request) (any, error) {
			return app.CancelSynthesis(), nil
		},
		OpGetLastSettings: func(context.Context, Request) (any, error) {
			return app.LastSettings(), nil
		},
		OpResetSettings: func(context.Context, Request) (any, error) {
			result, err := app.ResetSettings()
			if err != nil {
				return nil, err
			}

			w.modelDirectoryChanged(result.ModelDirectory)

			return result, nil
		},
		OpReadTextFile: func(_ context.Context, req Request) (any, error) {
			err := requireField("path", req.Path)
			if err != nil {
				return nil, err
			}

			return app.LoadTextFile(req.Path), nil
		},
		OpSynthesizeFromFile: func(ctx context.Context, req Request) (any, error) {
			err := requireField("path", req.Path)
			if err != nil {
				return nil, err
			}

			outcome, err := app.StreamFile(ctx, req.Path, req.ModelPath, req.OutputPath)

			return w.finishSynthesis(ctx, outcome, err)
		},
		OpValidateFileForDragDrop: func(_ context.Context, req Request) (any, error) {
			return app.ValidateFileForDragDrop(req.Path), nil
		},
		OpCapabilities: func(_ context.Context, req Request) (any, error) {
			return app.Capabilities(req.Text, req.ModelPath), nil
		},
		OpEstimateDuration: func(_ context.Context, req Request) (any, error) {
			estimate := app.EstimateDuration(req.Text)

			return DurationEstimate{
				Seconds:   estimate.Seconds(),
				Formatted: fsutil.FormatDuration(estimate.Seconds()),
			}, nil
		},
		OpGetWindowBounds: func(context.Context, Request) (any, error) {
			return app.WindowBounds(), nil
		},
		OpSaveWindowBounds: func(_ context.Context, req Request) (any, error) {
			if req.Bounds == nil {
				return nil, fmt.Errorf("%w: bounds", ErrMissingField)
			}

			return nil, app.SaveWindowBounds(*req.Bounds)
		},
		OpGetAudio: w.getAudio,
	}
}

func (w *NatsWorker) modelDirectoryChanged(dir string) {
	if w.options.ModelDirectoryChanged != nil {
		w.options.ModelDirectoryChanged(dir)
	}
}

// getAudio returns archived audio so a front-end without access to the
// worker's file system can play a finished job.
func (w *NatsWorker) getAudio(ctx context.Context, req Request) (any, error) {
	err := requireField("audioKey", req.AudioKey)
	if err != nil {
		return nil, err
	}

	if w.options.Archive == nil {
		return nil, ErrNoArchive
	}

	data, err := w.options.Archive.Download(ctx, req.AudioKey)
	if err != nil {
		return nil, err
	}

	return ArchivedAudio{AudioKey: req.AudioKey, Data: data}, nil
}

// finishSynthesis archives and announces a completed job. A failed job still
// returns its outcome so the caller sees the diagnostics.
func (w *NatsWorker) finishSynthesis(ctx context.Context, outcome tts.Outcome, err error) (any, error) {
	if err != nil {
		if outcome.JobID == "" {
			return nil, err
		}

		return SynthesisResult{Outcome: outcome, AudioKey: ""}, err
	}

	audioKey := w.announce(ctx, outcome)

	return SynthesisResult{Outcome: outcome, AudioKey: audioKey}, nil
}

// announce uploads the output to the archive, when configured, and publishes
// the completion event. It returns the archive key, or "" when nothing was
// archived. Failures are logged and never fail the request.
func (w *NatsWorker) announce(ctx context.Context, outcome tts.Outcome) string {
	audioKey := ""
	eventKey := outcome.OutputPath

	if w.options.Archive != nil {
		key := outcome.JobID + filepath.Ext(outcome.OutputPath)

		uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		uploadErr := w.options.Archive.UploadFile(uploadCtx, key, outcome.OutputPath)

		cancel()

		if uploadErr != nil {
			w.log.Error("Failed to archive audio for job %s: %v", outcome.JobID, uploadErr)
		} else {
			audioKey = key
			eventKey = key
			w.log.Info("Archived audio for job %s as '%s'", outcome.JobID, key)
		}
	}

	if w.options.CompletionSubject == "" {
		return audioKey
	}

	event := &events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: outcome.JobID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		AudioKey:   eventKey,
		PageNumber: 1,
		TotalPages: 1,
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		w.log.Error("Failed to marshal completion event for job %s: %v", outcome.JobID, err)

		return audioKey
	}

	err = w.natsConnection.Publish(w.options.CompletionSubject, eventData)
	if err != nil {
		w.log.Error("Failed to publish completion event for job %s: %v", outcome.JobID, err)
	}

	return audioKey
}
