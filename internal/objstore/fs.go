package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Compile-time interface check.
var _ Store = (*FSStore)(nil)

// FSStore implements Store on a local directory. Each bucket is a
// subdirectory of Root and keys map to relative file paths:
//
//	<Root>/<bucket>/<key>
type FSStore struct {
	Root string
}

// NewFSStore creates a store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{Root: dir}
}

// Path returns the filesystem path of an object.
func (s *FSStore) Path(bucket, key string) string {
	return filepath.Join(s.Root, bucket, filepath.FromSlash(key))
}

// Get opens the object file.
func (s *FSStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, err
	}
	return f, nil
}

// Put writes the object through a temp file and rename so readers never see
// a partial object.
func (s *FSStore) Put(_ context.Context, bucket, key string, body io.Reader) error {
	dst := s.Path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s/%s: %w", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// List walks the bucket directory and returns objects under prefix sorted by
// key. A missing bucket or prefix yields an empty list.
func (s *FSStore) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	root := filepath.Join(s.Root, bucket)

	var out []ObjectInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
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
		out = append(out, ObjectInfo{Key: key, Name: path.Base(key), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Copy duplicates the object file.
func (s *FSStore) Copy(ctx context.Context, src, dst Location) error {
	rc, err := s.Get(ctx, src.Bucket, src.Key)
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.Put(ctx, dst.Bucket, dst.Key, rc)
}

// Delete removes the object file.
func (s *FSStore) Delete(_ context.Context, bucket, key string) error {
	err := os.Remove(s.Path(bucket, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
