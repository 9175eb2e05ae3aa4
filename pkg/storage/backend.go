package storage

import "context"

// BlobStore is the destination for rendered report artifacts. The engine
// writes each artifact once under a name chosen by the renderer; Get and
// List exist for retrieval tooling and tests.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
