package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements Store on the local filesystem. The bucket is a
// subdirectory of root and keys are slash-separated paths beneath it.
type FileStore struct {
	root   string
	bucket string
}

// NewFileStore returns a store rooted at root/bucket. The directory is not
// created; Check reports when it is missing.
func NewFileStore(root, bucket string) (*FileStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if root == "" {
		root = "."
	}
	return &FileStore{root: root, bucket: bucket}, nil
}

func (s *FileStore) dir() string {
	return filepath.Join(s.root, s.bucket)
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir(), filepath.FromSlash(key))
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]Object, error) {
	ctx, span := startSpan(ctx, ProviderFile, "list", s.bucket, prefix)
	defer span.End()

	objects := []Object{}
	base := s.dir()
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		recordError(ctx, span, ProviderFile, "list", s.bucket, "unknown", err)
		return nil, unavailable("list", prefix, err)
	}
	recordOp(ctx, ProviderFile, "list", s.bucket)
	return objects, nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := startSpan(ctx, ProviderFile, "get", s.bucket, key)
	defer span.End()

	if err := ctx.Err(); err != nil {
		recordError(ctx, span, ProviderFile, "get", s.bucket, "canceled", err)
		return nil, unavailable("get", key, err)
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			recordError(ctx, span, ProviderFile, "get", s.bucket, "not_found", err)
			return nil, notFound(key)
		}
		recordError(ctx, span, ProviderFile, "get", s.bucket, "unknown", err)
		return nil, unavailable("get", key, err)
	}
	recordOp(ctx, ProviderFile, "get", s.bucket)
	recordRead(ctx, ProviderFile, s.bucket, len(data))
	return data, nil
}

// Put writes data to a temporary file and renames it into place so readers
// never observe a partial object. contentType is not persisted.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := startSpan(ctx, ProviderFile, "put", s.bucket, key)
	defer span.End()

	if err := s.put(ctx, key, data); err != nil {
		recordError(ctx, span, ProviderFile, "put", s.bucket, "unknown", err)
		return unavailable("put", key, err)
	}
	recordOp(ctx, ProviderFile, "put", s.bucket)
	recordWrite(ctx, ProviderFile, s.bucket, len(data))
	return nil
}

func (s *FileStore) put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Delete removes key. A missing key is not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, ProviderFile, "delete", s.bucket, key)
	defer span.End()

	if err := ctx.Err(); err != nil {
		recordError(ctx, span, ProviderFile, "delete", s.bucket, "canceled", err)
		return unavailable("delete", key, err)
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		recordError(ctx, span, ProviderFile, "delete", s.bucket, "unknown", err)
		return unavailable("delete", key, err)
	}
	recordOp(ctx, ProviderFile, "delete", s.bucket)
	return nil
}

func (s *FileStore) Probe(ctx context.Context, key string) (Presence, error) {
	ctx, span := startSpan(ctx, ProviderFile, "probe", s.bucket, key)
	defer span.End()

	if err := ctx.Err(); err != nil {
		recordError(ctx, span, ProviderFile, "probe", s.bucket, "canceled", err)
		return ProbeError, unavailable("probe", key, err)
	}
	recordOp(ctx, ProviderFile, "probe", s.bucket)
	info, err := os.Stat(s.path(key))
	switch {
	case err == nil && !info.IsDir():
		return Exists, nil
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return Absent, nil
	default:
		recordError(ctx, span, ProviderFile, "probe", s.bucket, "unknown", err)
		return ProbeError, unavailable("probe", key, err)
	}
}

func (s *FileStore) Check(ctx context.Context) error {
	_, span := startSpan(ctx, ProviderFile, "check", s.bucket, "")
	defer span.End()

	info, err := os.Stat(s.dir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: bucket %q does not exist under %s", ErrStoreUnavailable, s.bucket, s.root)
		}
		return unavailable("check bucket", s.bucket, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: bucket %q is not a directory", ErrStoreUnavailable, s.bucket)
	}
	return nil
}
