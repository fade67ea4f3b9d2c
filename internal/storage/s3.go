package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	s3.ListObjectsV2APIClient
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store implements Store on Amazon S3 or any S3-compatible endpoint.
type S3Store struct {
	client   s3API
	uploader *manager.Uploader
	bucket   string
	pageSize int32
}

// NewS3Store loads the default AWS credential chain and builds a client for
// opts.Bucket. A custom endpoint and path-style addressing are honored for
// MinIO and similar stores.
func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.UsePathStyle {
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, opts.Bucket, opts.PageSize), nil
}

func newS3Store(client s3API, bucket string, pageSize int) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		pageSize: int32(pageSize),
	}
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	ctx, span := startSpan(ctx, ProviderS3, "list", s.bucket, prefix)
	defer span.End()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(o *s3.ListObjectsV2PaginatorOptions) {
		if s.pageSize > 0 {
			o.Limit = s.pageSize
		}
	})

	objects := []Object{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			recordError(ctx, span, ProviderS3, "list", s.bucket, "unknown", err)
			return nil, unavailable("list", prefix, err)
		}
		recordOp(ctx, ProviderS3, "list", s.bucket)
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := startSpan(ctx, ProviderS3, "get", s.bucket, key)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			recordError(ctx, span, ProviderS3, "get", s.bucket, "not_found", err)
			return nil, notFound(key)
		}
		recordError(ctx, span, ProviderS3, "get", s.bucket, "unknown", err)
		return nil, unavailable("get", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		recordError(ctx, span, ProviderS3, "get", s.bucket, "read_failed", err)
		return nil, unavailable("read", key, err)
	}
	recordOp(ctx, ProviderS3, "get", s.bucket)
	recordRead(ctx, ProviderS3, s.bucket, len(data))
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := startSpan(ctx, ProviderS3, "put", s.bucket, key)
	defer span.End()

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		recordError(ctx, span, ProviderS3, "put", s.bucket, "unknown", err)
		return unavailable("put", key, err)
	}
	recordOp(ctx, ProviderS3, "put", s.bucket)
	recordWrite(ctx, ProviderS3, s.bucket, len(data))
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, ProviderS3, "delete", s.bucket, key)
	defer span.End()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		recordError(ctx, span, ProviderS3, "delete", s.bucket, "unknown", err)
		return unavailable("delete", key, err)
	}
	recordOp(ctx, ProviderS3, "delete", s.bucket)
	return nil
}

func (s *S3Store) Probe(ctx context.Context, key string) (Presence, error) {
	ctx, span := startSpan(ctx, ProviderS3, "probe", s.bucket, key)
	defer span.End()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	recordOp(ctx, ProviderS3, "probe", s.bucket)
	if err == nil {
		return Exists, nil
	}
	if isS3NotFound(err) {
		return Absent, nil
	}
	recordError(ctx, span, ProviderS3, "probe", s.bucket, "unknown", err)
	return ProbeError, unavailable("probe", key, err)
}

func (s *S3Store) Check(ctx context.Context) error {
	ctx, span := startSpan(ctx, ProviderS3, "check", s.bucket, "")
	defer span.End()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		recordError(ctx, span, ProviderS3, "check", s.bucket, "unknown", err)
		return s3BucketError(s.bucket, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

// s3BucketError turns a HeadBucket failure into a message that names the
// likely cause.
func s3BucketError(bucket string, err error) error {
	var code string
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	var status int
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	switch {
	case status == http.StatusNotFound || code == "NoSuchBucket" || code == "NotFound":
		return fmt.Errorf("%w: bucket %q does not exist: %w", ErrStoreUnavailable, bucket, err)
	case status == http.StatusForbidden || code == "AccessDenied" || code == "Forbidden":
		return fmt.Errorf("%w: access denied to bucket %q: %w", ErrStoreUnavailable, bucket, err)
	case strings.Contains(strings.ToLower(err.Error()), "credentials"):
		return fmt.Errorf("%w: AWS credentials not found or invalid: %w", ErrStoreUnavailable, err)
	default:
		return unavailable("check bucket", bucket, err)
	}
}
