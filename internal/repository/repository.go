// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres, mongodb) inside this directory.
package repository

import "errors"

var (
	// ErrNotFound indicates no document matched the lookup.
	ErrNotFound = errors.New("document not found")

	// ErrNotModified indicates an update matched nothing or changed nothing.
	ErrNotModified = errors.New("document not modified")

	// ErrUnreachable indicates the store did not answer the liveness probe in time.
	ErrUnreachable = errors.New("store unreachable")
)
