// Package blob stores export artifacts and renderer-written snippets as
// objects addressed by bucket and key.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/rendis/ambrosia/pkg/schema"
)

// Storage is the object storage contract.
type Storage interface {
	// Upload writes the object and returns its location.
	Upload(ctx context.Context, bucket, key string, r io.Reader) (string, error)
	// ListKeys returns keys in bucket starting with prefix, sorted.
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	Read(ctx context.Context, bucket, key string) ([]byte, error)
}

// FSStorage maps buckets to top-level directories of an afero filesystem.
type FSStorage struct {
	fs afero.Fs
}

// NewFSStorage wraps an existing filesystem.
func NewFSStorage(fs afero.Fs) *FSStorage {
	return &FSStorage{fs: fs}
}

// NewOSStorage roots storage at a directory on the local disk.
func NewOSStorage(root string) (*FSStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return NewFSStorage(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

// Location renders the canonical address of an object.
func Location(bucket, key string) string {
	return bucket + "/" + key
}

func objectPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) {
		return "", schema.InvalidArgument("invalid bucket %q", bucket)
	}
	if key == "" || path.IsAbs(key) {
		return "", schema.InvalidArgument("invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", schema.InvalidArgument("key %q escapes bucket", key)
		}
	}
	return path.Join("/", bucket, key), nil
}

func (s *FSStorage) Upload(ctx context.Context, bucket, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := objectPath(bucket, key)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	// Write to a sibling temp file and rename so readers never see partial objects.
	tmp := p + ".part"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}
	return Location(bucket, key), nil
}

func (s *FSStorage) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := path.Join("/", bucket)
	exists, err := afero.DirExists(s.fs, root)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []string{}, nil
	}

	keys := []string{}
	err = afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, ".part") {
			return nil
		}
		key := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FSStorage) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "object %q not found", Location(bucket, key))
	}
	return data, err
}

var _ Storage = (*FSStorage)(nil)
