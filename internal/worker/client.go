package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/tts-desk/internal/desk"
	"github.com/nats-io/nats.go"
)

// DefaultRequestTimeout applies to calls whose context has no deadline.
const DefaultRequestTimeout = 10 * time.Second

// Client calls a NatsWorker from another process, typically the GUI.
type Client struct {
	natsConnection *nats.Conn
	prefix         string
	timeout        time.Duration
}

// NewClient creates a client for the worker listening on prefix.
func NewClient(natsConnection *nats.Conn, prefix string, timeout time.Duration) (*Client, error) {
	if natsConnection == nil {
		return nil, ErrNoConnection
	}

	if prefix == "" {
		return nil, ErrSubjectPrefixEmpty
	}

	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{natsConnection: natsConnection, prefix: prefix, timeout: timeout}, nil
}

// Call sends req to op and decodes the reply data into out, which may be
// nil. A failed reply is returned as *RemoteError; data attached to it is
// still decoded into out.
func (c *Client) Call(ctx context.Context, op string, req Request, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	msg, err := c.natsConnection.RequestWithContext(ctx, c.prefix+"."+op, body)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}

	var reply Reply

	err = json.Unmarshal(msg.Data, &reply)
	if err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", op, err)
	}

	if out != nil && len(reply.Data) > 0 {
		decodeErr := json.Unmarshal(reply.Data, out)
		if decodeErr != nil && reply.OK {
			return fmt.Errorf("failed to decode %s reply data: %w", op, decodeErr)
		}
	}

	if !reply.OK {
		return &RemoteError{Kind: reply.Kind, Message: reply.Error}
	}

	return nil
}

// RunSynthesis speaks text remotely. Give ctx a deadline long enough for
// the whole job.
func (c *Client) RunSynthesis(ctx context.Context, text, modelPath, outputPath string) (SynthesisResult, error) {
	var result SynthesisResult

	err := c.Call(ctx, OpRunSynthesis, Request{
		Path:       "",
		Text:       text,
		ModelPath:  modelPath,
		OutputPath: outputPath,
		AudioKey:   "",
		Bounds:     nil,
	}, &result)

	return result, err
}

// GetAudio downloads the archived audio of a finished job.
func (c *Client) GetAudio(ctx context.Context, audioKey string) ([]byte, error) {
	var audio ArchivedAudio

	err := c.Call(ctx, OpGetAudio, Request{AudioKey: audioKey}, &audio)

	return audio.Data, err
}

// CancelSynthesis stops the remote job and reports whether one was running.
func (c *Client) CancelSynthesis(ctx context.Context) (bool, error) {
	var cancelled bool

	err := c.Call(ctx, OpCancelSynthesis, Request{}, &cancelled)

	return cancelled, err
}

// ListVoiceModels returns the remote model list.
func (c *Client) ListVoiceModels(ctx context.Context) ([]string, error) {
	var models []string

	err := c.Call(ctx, OpListVoiceModels, Request{}, &models)

	return models, err
}

// Capabilities asks which synthesis controls should be enabled.
func (c *Client) Capabilities(ctx context.Context, text, modelPath string) (desk.Capabilities, error) {
	var caps desk.Capabilities

	err := c.Call(ctx, OpCapabilities, Request{Text: text, ModelPath: modelPath}, &caps)

	return caps, err
}
