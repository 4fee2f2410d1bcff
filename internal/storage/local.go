package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"time"
)

// localStorage keeps blobs as files directly under a content root directory.
// Writes go to a temp file first and are published with a hard link, which
// fails if the destination exists, so an existing key is never overwritten.
type localStorage struct {
	root string
}

var _ Storage = (*localStorage)(nil)

// NewLocal creates a filesystem-backed Storage rooted at root, creating the directory if needed.
func NewLocal(root string) (Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("content root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create content root %q: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root: %w", err)
	}
	return &localStorage{root: abs}, nil
}

func (l *localStorage) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.root, key), nil
}

// Exists reports whether key is present under the content root.
func (l *localStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Put streams r into a temp file and links it into place.
func (l *localStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	dest, err := l.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if _, err := os.Lstat(dest); err == nil {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}

	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	n, werr := io.Copy(tmp, r)
	if werr == nil {
		werr = tmp.Sync()
	}
	cerr := tmp.Close()
	if werr != nil {
		return ObjectInfo{}, fmt.Errorf("stream write: %w", werr)
	}
	if cerr != nil {
		return ObjectInfo{}, fmt.Errorf("flush: %w", cerr)
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	if err := os.Link(tmpPath, dest); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		return ObjectInfo{}, fmt.Errorf("publish %q: %w", key, err)
	}

	return ObjectInfo{
		Key:          key,
		Size:         n,
		ContentType:  contentTypeOr(opt.ContentType, key),
		LastModified: modTime(dest),
		Metadata:     opt.Metadata,
	}, nil
}

// Get opens key for sequential reading. Caller must close the returned ReadCloser.
func (l *localStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, ObjectInfo{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, err
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  contentTypeOr("", key),
		LastModified: st.ModTime(),
	}, nil
}

// Delete removes key from the content root.
func (l *localStorage) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return err
	}
	return nil
}

func contentTypeOr(ct, key string) string {
	if ct != "" {
		return ct
	}
	if byExt := mime.TypeByExtension(filepath.Ext(key)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func modTime(p string) time.Time {
	if st, err := os.Stat(p); err == nil {
		return st.ModTime()
	}
	return time.Now()
}
