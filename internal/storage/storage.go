// Package storage defines the blob sink contract shared by the snapshot
// writer and its mirrors.
package storage

import (
	"context"
	"io"
)

// BlobStore persists one object per path and returns a URI for it. Writing an
// existing path replaces it wholesale.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
