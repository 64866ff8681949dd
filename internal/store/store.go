// Package store implements the local component cache.
//
// The Store interface provides a simple key-value abstraction for
// content-addressed component blobs plus a reference → digest table:
// - Get/Put/Has for blobs, keyed by "sha256:<hex>"
// - GetRef/PutRef/Refs for the last digest seen for a registry reference
// - Filesystem-based with an in-memory LRU in front of reads
package store

import (
	"context"
	"errors"
	"iter"
)

var ErrNotFound = errors.New("store: not found")

// Store handles local component storage.
type Store interface {
	// Get retrieves a blob by digest.
	Get(ctx context.Context, digest string) ([]byte, error)

	// Put stores a blob and returns its digest.
	Put(ctx context.Context, data []byte) (digest string, err error)

	// Has checks if a blob exists.
	Has(ctx context.Context, digest string) (bool, error)

	// GetRef retrieves the digest recorded for a reference.
	GetRef(ref string) (string, error)

	// PutRef records the digest for a reference.
	PutRef(ref, digest string) error

	// Refs iterates recorded references and their digests.
	Refs() iter.Seq2[string, string]

	Close() error
}
