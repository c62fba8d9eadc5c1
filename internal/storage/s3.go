package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Reader.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Reader reads objects from an AWS S3 (or S3-compatible) bucket.
type S3Reader struct {
	client S3API
	bucket string
}

// S3Options configures the S3 client built by NewS3Reader.
type S3Options struct {
	// Endpoint overrides the service endpoint, e.g. for MinIO or LocalStack.
	// Path-style addressing is enabled when it is set.
	Endpoint string
}

// NewS3Reader loads the default AWS credential chain for region and returns a
// reader bound to bucket.
func NewS3Reader(ctx context.Context, region, bucket string, opts S3Options) (*S3Reader, error) {
	if region == "" {
		return nil, &InitError{Backend: "s3", Bucket: bucket, Err: errors.New("region is not set")}
	}
	if bucket == "" {
		return nil, &InitError{Backend: "s3", Bucket: bucket, Err: errors.New("bucket name is not set")}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &InitError{Backend: "s3", Bucket: bucket, Err: fmt.Errorf("failed to load AWS config: %w", err)}
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3ReaderWithClient(s3.NewFromConfig(cfg, s3Opts...), bucket), nil
}

// NewS3ReaderWithClient wraps an existing client.
func NewS3ReaderWithClient(client S3API, bucket string) *S3Reader {
	return &S3Reader{client: client, bucket: bucket}
}

// S3Opener returns an Opener that reads the region and bucket from props on
// every call, so rotated values take effect without a restart.
func S3Opener(props PropertySource, opts S3Options) Opener {
	return func(ctx context.Context) (Reader, error) {
		return NewS3Reader(ctx, props.Property(PropertyRegion), props.Property(PropertyBucket), opts)
	}
}

// Exists issues a HeadObject request for key.
func (r *S3Reader) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: head %q in bucket %q failed: %w", key, r.bucket, err)
	}
	return true, nil
}

// Open issues a GetObject request for key. The returned body streams directly
// from the HTTP response.
func (r *S3Reader) Open(ctx context.Context, key string) (*Object, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, r.bucket, key)
		}
		return nil, fmt.Errorf("storage: get %q in bucket %q failed: %w", key, r.bucket, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}

	return &Object{
		Body:        out.Body,
		Size:        size,
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// isS3NotFound reports whether err is the service's answer for a missing key.
// HeadObject has no body so it surfaces as a bare NotFound code.
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
