// Package objectstore archives synthesized audio in a NATS JetStream object
// store bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Bounds for calls whose context has no deadline.
const (
	putTimeout = 2 * time.Minute
	getTimeout = time.Minute
)

// ErrEmptyKey is returned when an object is addressed without a name.
var ErrEmptyKey = errors.New("object key cannot be empty")

// Archive implements core.ObjectStore on top of a JetStream object store.
type Archive struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to bucketName, creating it on first use.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*Archive, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: "Synthesized audio produced by tts-desk.",
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &Archive{bucket: bucketName, store: store}, nil
}

// Bucket returns the bucket name.
func (a *Archive) Bucket() string {
	return a.bucket
}

// Download retrieves an object from the archive. A missing key yields an
// error matching nats.ErrObjectNotFound.
func (a *Archive) Download(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	ctx, cancel := withDefaultTimeout(ctx, getTimeout)
	defer cancel()

	obj, err := a.store.Get(key, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, a.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// UploadFile streams the file at path into the archive under key.
func (a *Archive) UploadFile(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open '%s' for upload: %w", path, err)
	}
	defer file.Close()

	return a.put(ctx, key, filepath.Base(path), file)
}

func (a *Archive) put(ctx context.Context, key, source string, reader io.Reader) error {
	if key == "" {
		return ErrEmptyKey
	}

	ctx, cancel := withDefaultTimeout(ctx, putTimeout)
	defer cancel()

	_, err := a.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "synthesized from " + source,
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, reader, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, a.bucket, err)
	}

	return nil
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, timeout)
}
