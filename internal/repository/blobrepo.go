package repository

import (
	"context"

	"github.com/and161185/pkg-registry/internal/model"
)

// BlobRepository is an id-addressed artifact store.
type BlobRepository interface {
	// Put stores the blob and returns its id.
	Put(ctx context.Context, b *model.Blob) (model.BlobID, error)
	// Get loads a blob; ErrNotFound when absent.
	Get(ctx context.Context, id model.BlobID) (*model.Blob, error)
	// SetPackage points the blob at another package; ErrNotFound when absent.
	SetPackage(ctx context.Context, id model.BlobID, pkg model.PackageID) error
}
