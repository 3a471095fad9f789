// Package storage provides temporary and published file storage.
// It defines the Storage interface (port) and implementations for local
// disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary and published file storage.
// Implementations keep uploads and intermediate files on local disk while
// an edit session is open and publish the final artifact on apply.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// ReserveTemp creates an empty temporary file with the given extension
	// and returns its path, for tools that write their output by path.
	ReserveTemp(ctx context.Context, name, ext string) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Upload publishes data under key and returns its public URL.
	Upload(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
