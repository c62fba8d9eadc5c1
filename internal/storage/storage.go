// Package storage provides read access to report artefacts held in an object
// store. S3 is the production backend; GCS and the local filesystem satisfy
// the same interface for alternative deployments and for testing.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Open when the object does not exist, including
// when it was removed after a successful Exists probe.
var ErrNotFound = errors.New("storage: object not found")

// Reader probes and streams objects from a single bucket.
type Reader interface {
	// Exists reports whether key is present. It never downloads the object
	// body; an absent key is (false, nil).
	Exists(ctx context.Context, key string) (bool, error)

	// Open returns a forward-only stream bound to the remote object. The
	// caller must close Object.Body.
	Open(ctx context.Context, key string) (*Object, error)
}

// Object is an open artefact stream.
type Object struct {
	Body io.ReadCloser

	// Size is the content length in bytes, or -1 when the backend did not
	// report it.
	Size int64

	// ContentType is the MIME type recorded by the backend, if any.
	ContentType string
}

// Opener constructs a Reader for a single request. Implementations may build a
// fresh client each call or hand back a shared one.
type Opener func(ctx context.Context) (Reader, error)

// Static returns an Opener that always yields r.
func Static(r Reader) Opener {
	return func(context.Context) (Reader, error) {
		return r, nil
	}
}

// PropertySource looks up a named configuration value. An empty string means
// the property is unset.
type PropertySource interface {
	Property(name string) string
}

// Property names consulted when building a reader.
const (
	PropertyRegion    = "AWS_REGION_NAME"
	PropertyBucket    = "AWS_S3_BUCKET_NAME"
	PropertyGCSBucket = "GCS_BUCKET_NAME"
)

// InitError reports that a Reader could not be constructed, typically because
// the bucket or region is missing or the client failed to initialise.
type InitError struct {
	Backend string
	Bucket  string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("storage: failed to initialise %s reader for bucket %q: %v", e.Backend, e.Bucket, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
