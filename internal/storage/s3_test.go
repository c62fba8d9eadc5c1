package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type mockS3Client struct {
	headFunc func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	getFunc  func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headFunc != nil {
		return m.headFunc(ctx, params, optFns...)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, params, optFns...)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(""))}, nil
}

func TestS3Reader_Exists(t *testing.T) {
	var gotBucket, gotKey string
	client := &mockS3Client{
		headFunc: func(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			gotBucket = aws.ToString(params.Bucket)
			gotKey = aws.ToString(params.Key)
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(12)}, nil
		},
	}

	r := NewS3ReaderWithClient(client, "reports")
	ok, err := r.Exists(context.Background(), "artifacts/Foo/Foo-SCENARIO.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected object to exist")
	}
	if gotBucket != "reports" {
		t.Errorf("bucket = %q, want %q", gotBucket, "reports")
	}
	if gotKey != "artifacts/Foo/Foo-SCENARIO.html" {
		t.Errorf("key = %q", gotKey)
	}
}

func TestS3Reader_ExistsNotFound(t *testing.T) {
	notFoundErrors := map[string]error{
		"typed NotFound":  &types.NotFound{},
		"typed NoSuchKey": &types.NoSuchKey{},
		"generic code":    &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"},
	}

	for name, apiErr := range notFoundErrors {
		t.Run(name, func(t *testing.T) {
			client := &mockS3Client{
				headFunc: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					return nil, apiErr
				},
			}
			ok, err := NewS3ReaderWithClient(client, "reports").Exists(context.Background(), "missing")
			if err != nil {
				t.Fatalf("expected nil error for absent key, got %v", err)
			}
			if ok {
				t.Fatal("expected absent key to report false")
			}
		})
	}
}

func TestS3Reader_ExistsTransportError(t *testing.T) {
	client := &mockS3Client{
		headFunc: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
		},
	}
	_, err := NewS3ReaderWithClient(client, "reports").Exists(context.Background(), "k")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("access denied must not be reported as not found")
	}
	if !strings.Contains(err.Error(), `"reports"`) || !strings.Contains(err.Error(), `"k"`) {
		t.Errorf("error %q should carry bucket and key", err)
	}
}

func TestS3Reader_Open(t *testing.T) {
	client := &mockS3Client{
		getFunc: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body:          io.NopCloser(strings.NewReader("<html></html>")),
				ContentLength: aws.Int64(13),
				ContentType:   aws.String("text/html"),
			}, nil
		},
	}

	obj, err := NewS3ReaderWithClient(client, "reports").Open(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "<html></html>" {
		t.Errorf("body = %q", body)
	}
	if obj.Size != 13 {
		t.Errorf("size = %d, want 13", obj.Size)
	}
	if obj.ContentType != "text/html" {
		t.Errorf("content type = %q", obj.ContentType)
	}
}

func TestS3Reader_OpenUnknownLength(t *testing.T) {
	client := &mockS3Client{}
	obj, err := NewS3ReaderWithClient(client, "reports").Open(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer obj.Body.Close()
	if obj.Size != -1 {
		t.Errorf("size = %d, want -1", obj.Size)
	}
}

func TestS3Reader_OpenNotFound(t *testing.T) {
	client := &mockS3Client{
		getFunc: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return nil, &types.NoSuchKey{}
		},
	}
	_, err := NewS3ReaderWithClient(client, "reports").Open(context.Background(), "k")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewS3Reader_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		region string
		bucket string
	}{
		{name: "no region", bucket: "reports"},
		{name: "no bucket", region: "us-east-1"},
		{name: "neither"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3Reader(context.Background(), tt.region, tt.bucket, S3Options{})
			var initErr *InitError
			if !errors.As(err, &initErr) {
				t.Fatalf("expected *InitError, got %v", err)
			}
			if initErr.Backend != "s3" {
				t.Errorf("backend = %q, want s3", initErr.Backend)
			}
		})
	}
}

type mapProps map[string]string

func (m mapProps) Property(name string) string { return m[name] }

func TestS3Opener_ReadsPropertiesPerCall(t *testing.T) {
	props := mapProps{}
	open := S3Opener(props, S3Options{})

	if _, err := open(context.Background()); err == nil {
		t.Fatal("expected error while properties are unset")
	}

	props[PropertyRegion] = "eu-west-1"
	props[PropertyBucket] = "reports"
	r, err := open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error after properties were set: %v", err)
	}
	if r.(*S3Reader).bucket != "reports" {
		t.Errorf("bucket = %q", r.(*S3Reader).bucket)
	}
}
