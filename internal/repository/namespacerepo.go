package repository

import (
	"context"

	"github.com/and161185/pkg-registry/internal/model"
)

// NamespaceRepository provides access to namespaces.
type NamespaceRepository interface {
	// Create inserts a namespace; ErrAlreadyExists on duplicate name.
	Create(ctx context.Context, ns *model.Namespace) error
	// GetByID loads a namespace by ID.
	GetByID(ctx context.Context, id model.NamespaceID) (*model.Namespace, error)
	// GetByName loads a namespace by its unique name.
	GetByName(ctx context.Context, name string) (*model.Namespace, error)
	// AddPackage appends pkgID to the namespace's packages unless present.
	AddPackage(ctx context.Context, id model.NamespaceID, pkgID model.PackageID) error
}
