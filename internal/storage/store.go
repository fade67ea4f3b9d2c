package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrStoreUnavailable wraps every other backend failure.
	ErrStoreUnavailable = errors.New("object store unavailable")
)

// Presence is the result of an existence probe.
type Presence int

const (
	Absent Presence = iota
	Exists
	ProbeError
)

func (p Presence) String() string {
	switch p {
	case Absent:
		return "absent"
	case Exists:
		return "exists"
	case ProbeError:
		return "probe_error"
	default:
		return fmt.Sprintf("Presence(%d)", int(p))
	}
}

// Object is a listed key with its size in bytes.
type Object struct {
	Key  string
	Size int64
}

// Store is a key-addressed object store bound to a single bucket.
type Store interface {
	// List returns every object under prefix in store order.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Get reads the full object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes data under key with the given content type, replacing any
	// existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Probe reports whether key exists. The error is non-nil only together
	// with ProbeError.
	Probe(ctx context.Context, key string) (Presence, error)

	// Check verifies the bucket is reachable with the current credentials.
	Check(ctx context.Context) error
}

// Options selects and configures a backend.
type Options struct {
	Provider string
	Bucket   string

	Region       string
	Endpoint     string
	UsePathStyle bool

	AzureEndpoint string
	FileRoot      string

	// PageSize bounds the keys requested per list call.
	PageSize int
}

const (
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderAzure = "azure"
	ProviderFile  = "file"
)

// Providers lists the accepted Options.Provider values.
func Providers() []string {
	return []string{ProviderS3, ProviderGCS, ProviderAzure, ProviderFile}
}

// New builds the Store for opts.Provider. An empty provider means S3.
func New(ctx context.Context, opts Options) (Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	switch opts.Provider {
	case ProviderS3, "":
		return NewS3Store(ctx, opts)
	case ProviderGCS:
		return NewGCSStore(ctx, opts)
	case ProviderAzure:
		return NewAzureStore(ctx, opts)
	case ProviderFile:
		return NewFileStore(opts.FileRoot, opts.Bucket)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", opts.Provider)
	}
}

func unavailable(op, key string, err error) error {
	if key == "" {
		return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

// presence maps the error of a head or attributes call onto a probe result.
func presence(key string, err error, isNotFound func(error) bool) (Presence, error) {
	switch {
	case err == nil:
		return Exists, nil
	case isNotFound(err):
		return Absent, nil
	default:
		return ProbeError, unavailable("probe", key, err)
	}
}
