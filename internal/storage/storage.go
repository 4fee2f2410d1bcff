// Package storage contains blob storage abstractions for attachment bytes.
// Keys form a flat namespace under one content root; a key is written at most once.
package storage

import (
	"context"
	"io"
	"time"
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the blob store used for attachments.
// Implementations must be safe for concurrent use by multiple goroutines.
type Storage interface {
	// Exists reports whether key is already present.
	Exists(ctx context.Context, key string) (bool, error)
	// Put stores the reader's bytes under key. It returns ErrAlreadyExists instead of
	// overwriting an existing object.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	// Returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key. Returns ErrNotFound when key is absent.
	Delete(ctx context.Context, key string) error
}
