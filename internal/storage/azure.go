package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore implements Store on an Azure Blob Storage container. The bucket
// name is the container.
type AzureStore struct {
	client    *azblob.Client
	container string
	pageSize  int32
}

// NewAzureStore authenticates with the default Azure credential chain against
// opts.AzureEndpoint, e.g. https://<account>.blob.core.windows.net/.
func NewAzureStore(ctx context.Context, opts Options) (*AzureStore, error) {
	if opts.AzureEndpoint == "" {
		return nil, fmt.Errorf("azure blob endpoint is required")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("loading Azure credentials: %w", err)
	}
	client, err := azblob.NewClient(opts.AzureEndpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &AzureStore{client: client, container: opts.Bucket, pageSize: int32(opts.PageSize)}, nil
}

func (s *AzureStore) List(ctx context.Context, prefix string) ([]Object, error) {
	ctx, span := startSpan(ctx, ProviderAzure, "list", s.container, prefix)
	defer span.End()

	listOpts := &azblob.ListBlobsFlatOptions{Prefix: to.Ptr(prefix)}
	if s.pageSize > 0 {
		listOpts.MaxResults = to.Ptr(s.pageSize)
	}
	pager := s.client.NewListBlobsFlatPager(s.container, listOpts)

	objects := []Object{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			recordError(ctx, span, ProviderAzure, "list", s.container, "unknown", err)
			return nil, unavailable("list", prefix, err)
		}
		recordOp(ctx, ProviderAzure, "list", s.container)
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			var size int64
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			objects = append(objects, Object{Key: *item.Name, Size: size})
		}
	}
	return objects, nil
}

func (s *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := startSpan(ctx, ProviderAzure, "get", s.container, key)
	defer span.End()

	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if isAzureNotFound(err) {
			recordError(ctx, span, ProviderAzure, "get", s.container, "not_found", err)
			return nil, notFound(key)
		}
		recordError(ctx, span, ProviderAzure, "get", s.container, "unknown", err)
		return nil, unavailable("get", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		recordError(ctx, span, ProviderAzure, "get", s.container, "read_failed", err)
		return nil, unavailable("read", key, err)
	}
	recordOp(ctx, ProviderAzure, "get", s.container)
	recordRead(ctx, ProviderAzure, s.container, len(data))
	return data, nil
}

func (s *AzureStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := startSpan(ctx, ProviderAzure, "put", s.container, key)
	defer span.End()

	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType),
		},
	})
	if err != nil {
		recordError(ctx, span, ProviderAzure, "put", s.container, "unknown", err)
		return unavailable("put", key, err)
	}
	recordOp(ctx, ProviderAzure, "put", s.container)
	recordWrite(ctx, ProviderAzure, s.container, len(data))
	return nil
}

func (s *AzureStore) Delete(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, ProviderAzure, "delete", s.container, key)
	defer span.End()

	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		recordError(ctx, span, ProviderAzure, "delete", s.container, "unknown", err)
		return unavailable("delete", key, err)
	}
	recordOp(ctx, ProviderAzure, "delete", s.container)
	return nil
}

func (s *AzureStore) Probe(ctx context.Context, key string) (Presence, error) {
	ctx, span := startSpan(ctx, ProviderAzure, "probe", s.container, key)
	defer span.End()

	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	_, err := blobClient.GetProperties(ctx, nil)
	recordOp(ctx, ProviderAzure, "probe", s.container)
	p, err := presence(key, err, isAzureNotFound)
	if p == ProbeError {
		recordError(ctx, span, ProviderAzure, "probe", s.container, "unknown", err)
	}
	return p, err
}

func (s *AzureStore) Check(ctx context.Context) error {
	ctx, span := startSpan(ctx, ProviderAzure, "check", s.container, "")
	defer span.End()

	_, err := s.client.ServiceClient().NewContainerClient(s.container).GetProperties(ctx, nil)
	if err != nil {
		recordError(ctx, span, ProviderAzure, "check", s.container, "unknown", err)
		switch {
		case bloberror.HasCode(err, bloberror.ContainerNotFound):
			return fmt.Errorf("%w: container %q does not exist: %w", ErrStoreUnavailable, s.container, err)
		case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthenticationFailed):
			return fmt.Errorf("%w: access denied to container %q: %w", ErrStoreUnavailable, s.container, err)
		}
		return unavailable("check container", s.container, err)
	}
	return nil
}

func isAzureNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound)
}
