package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSReader reads objects from a Google Cloud Storage bucket.
type GCSReader struct {
	client *storage.Client
	bucket string
}

// NewGCSReaderWithClient binds client to bucket. The client is shared with
// other readers and owned by whoever created it; the reader never closes it.
func NewGCSReaderWithClient(client *storage.Client, bucket string) (*GCSReader, error) {
	if bucket == "" {
		return nil, &InitError{Backend: BackendGCS, Err: errors.New("bucket name is not set")}
	}
	return &GCSReader{client: client, bucket: bucket}, nil
}

// GCSOpener returns an Opener that shares client across requests and reads the
// bucket name from props on every call.
func GCSOpener(client *storage.Client, props PropertySource) Opener {
	return func(context.Context) (Reader, error) {
		return NewGCSReaderWithClient(client, props.Property(PropertyGCSBucket))
	}
}

// Exists fetches the object attributes only.
func (r *GCSReader) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.Bucket(r.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: attrs %q in bucket %q failed: %w", key, r.bucket, err)
	}
	return true, nil
}

// Open starts a streaming read of the whole object.
func (r *GCSReader) Open(ctx context.Context, key string) (*Object, error) {
	rc, err := r.client.Bucket(r.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, r.bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %q in bucket %q failed: %w", key, r.bucket, err)
	}
	return &Object{
		Body:        rc,
		Size:        rc.Attrs.Size,
		ContentType: rc.Attrs.ContentType,
	}, nil
}
