package storage

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Backend names accepted by NewOpener.
const (
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

// OpenerOptions selects and configures the artefact backend.
type OpenerOptions struct {
	Backend string

	// Endpoint overrides the S3 endpoint.
	Endpoint string

	// Dir is the root of the local backend.
	Dir string

	// GCSOptions are passed to the GCS client.
	GCSOptions []option.ClientOption
}

// NewOpener returns the Opener for opts.Backend. The returned close function
// releases any client shared between requests and is never nil.
//
// Bucket names are read from props per request. Only GCS keeps a client
// between requests.
func NewOpener(ctx context.Context, opts OpenerOptions, props PropertySource) (Opener, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case BackendS3, "":
		return S3Opener(props, S3Options{Endpoint: opts.Endpoint}), noop, nil

	case BackendGCS:
		client, err := gcs.NewClient(ctx, opts.GCSOptions...)
		if err != nil {
			return nil, nil, &InitError{Backend: BackendGCS, Err: fmt.Errorf("failed to create GCS client: %w", err)}
		}
		return GCSOpener(client, props), client.Close, nil

	case BackendLocal:
		if opts.Dir == "" {
			return nil, nil, &InitError{Backend: BackendLocal, Err: errors.New("directory is not set")}
		}
		dir := opts.Dir
		return func(context.Context) (Reader, error) {
			return NewLocalReader(dir)
		}, noop, nil

	default:
		return nil, nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}
