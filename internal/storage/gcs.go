package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore implements Store on Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore uses application default credentials. opts.Endpoint, when set,
// points the client at an emulator.
func NewGCSStore(ctx context.Context, opts Options) (*GCSStore, error) {
	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCP storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: opts.Bucket}, nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	ctx, span := startSpan(ctx, ProviderGCS, "list", s.bucket, prefix)
	defer span.End()

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	objects := []Object{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			recordError(ctx, span, ProviderGCS, "list", s.bucket, "unknown", err)
			return nil, unavailable("list", prefix, err)
		}
		objects = append(objects, Object{Key: attrs.Name, Size: attrs.Size})
	}
	recordOp(ctx, ProviderGCS, "list", s.bucket)
	return objects, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := startSpan(ctx, ProviderGCS, "get", s.bucket, key)
	defer span.End()

	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if isGCSNotFound(err) {
			recordError(ctx, span, ProviderGCS, "get", s.bucket, "not_found", err)
			return nil, notFound(key)
		}
		recordError(ctx, span, ProviderGCS, "get", s.bucket, "unknown", err)
		return nil, unavailable("get", key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		recordError(ctx, span, ProviderGCS, "get", s.bucket, "read_failed", err)
		return nil, unavailable("read", key, err)
	}
	recordOp(ctx, ProviderGCS, "get", s.bucket)
	recordRead(ctx, ProviderGCS, s.bucket, len(data))
	return data, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := startSpan(ctx, ProviderGCS, "put", s.bucket, key)
	defer span.End()

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		recordError(ctx, span, ProviderGCS, "put", s.bucket, "unknown", err)
		return unavailable("put", key, err)
	}
	if err := writer.Close(); err != nil {
		recordError(ctx, span, ProviderGCS, "put", s.bucket, "close_failed", err)
		return unavailable("put", key, err)
	}
	recordOp(ctx, ProviderGCS, "put", s.bucket)
	recordWrite(ctx, ProviderGCS, s.bucket, len(data))
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, ProviderGCS, "delete", s.bucket, key)
	defer span.End()

	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		recordError(ctx, span, ProviderGCS, "delete", s.bucket, "unknown", err)
		return unavailable("delete", key, err)
	}
	recordOp(ctx, ProviderGCS, "delete", s.bucket)
	return nil
}

func (s *GCSStore) Probe(ctx context.Context, key string) (Presence, error) {
	ctx, span := startSpan(ctx, ProviderGCS, "probe", s.bucket, key)
	defer span.End()

	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	recordOp(ctx, ProviderGCS, "probe", s.bucket)
	p, err := presence(key, err, isGCSNotFound)
	if p == ProbeError {
		recordError(ctx, span, ProviderGCS, "probe", s.bucket, "unknown", err)
	}
	return p, err
}

func (s *GCSStore) Check(ctx context.Context) error {
	ctx, span := startSpan(ctx, ProviderGCS, "check", s.bucket, "")
	defer span.End()

	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		recordError(ctx, span, ProviderGCS, "check", s.bucket, "unknown", err)
		if errors.Is(err, storage.ErrBucketNotExist) {
			return fmt.Errorf("%w: bucket %q does not exist: %w", ErrStoreUnavailable, s.bucket, err)
		}
		return unavailable("check bucket", s.bucket, err)
	}
	return nil
}

func isGCSNotFound(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist)
}
