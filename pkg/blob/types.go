// Package blob archives investigation artifacts, such as the text dump taken
// when a report is saved, outside the report store.
package blob

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// BlobStore keeps opaque artifacts under slash-separated keys such as
// "dumps/<run>/<timestamp>.txt". Keys are relative; a key that is empty or
// climbs out of the store with ".." is rejected with ErrInvalidKey.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	// Get fails with ErrNotFound for unknown keys. The caller closes the
	// reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys below prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}
