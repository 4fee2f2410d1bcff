package storage

import (
	"errors"
	"path"
	"strings"
)

// Storage errors returned by Storage implementations.
var (
	// ErrAlreadyExists indicates a write targeted a key that is already stored.
	ErrAlreadyExists = errors.New("storage: key already exists")

	// ErrNotFound indicates the requested key does not exist in storage.
	ErrNotFound = errors.New("storage: key not found")

	// ErrInvalidKey indicates the key is empty or would leave the flat content root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ValidateKey rejects keys that are empty, hidden, or contain path separators.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, ".") {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, `/\`) || path.Clean(key) != key {
		return ErrInvalidKey
	}
	return nil
}
