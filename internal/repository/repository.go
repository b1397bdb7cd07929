// Package repository abstracts the storage backend the query engine reads
// and writes against: a local filesystem, an object bucket, or a browser
// HTTP fetch. The core engine (indexcodec, indexer, query) only ever talks
// to the Repository interface.
package repository

import (
	"context"
	"io"
)

// ConfigResolver is the minimal surface a Repository needs to locate the
// slug index for a source when directory listing is unavailable (e.g. an
// HTTP-fetch-backed repository in a browser). Implemented by
// internal/config.Resolver.
type ConfigResolver interface {
	IndexDir(source, field string) (string, bool)
}

// Repository is the storage contract external to the core: it supplies
// listing, reading (bulk and streamed), writing, existence, and removal.
type Repository interface {
	// ListFiles returns every path matching pattern (a glob with at most
	// one wildcard segment).
	ListFiles(ctx context.Context, pattern string) ([]string, error)

	// ReadFile reads a file fully into memory.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// OpenFileStream opens path for streamed, line-oriented reads. The
	// caller must close the returned ReadCloser.
	OpenFileStream(ctx context.Context, path string) (io.ReadCloser, error)

	// WriteFile writes data to path, creating parent directories as needed
	// and overwriting any existing content.
	WriteFile(ctx context.Context, path string, data []byte) error

	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)

	// RemoveFile deletes a single file. Removing a non-existent file is
	// not an error.
	RemoveFile(ctx context.Context, path string) error

	// RemoveDir deletes a directory and everything under it. Removing a
	// non-existent directory is not an error.
	RemoveDir(ctx context.Context, path string) error

	// SetResolver hands the resolved config to the backend. Local ignores
	// it; HTTPFetch stores it without using it, so it still cannot list.
	SetResolver(resolver ConfigResolver)
}
