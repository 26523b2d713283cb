package repository

import (
	"context"

	"github.com/and161185/pkg-registry/internal/model"
)

// PackageRepository provides revision-checked access to packages and their versions.
type PackageRepository interface {
	// Create inserts a package; ErrAlreadyExists on duplicate (namespace, name).
	Create(ctx context.Context, p *model.Package) error
	// GetByID loads a package by ID.
	GetByID(ctx context.Context, id model.PackageID) (*model.Package, error)
	// GetByName loads a package by namespace and name.
	GetByName(ctx context.Context, nsID model.NamespaceID, name string) (*model.Package, error)
	// ReplaceVersions stores a new version list if the row is still at baseRev.
	// Returns the new revision or ErrVersionConflict.
	ReplaceVersions(ctx context.Context, id model.PackageID, baseRev int64, versions []model.Version) (int64, error)
	// SetDeprecated flips the deprecation flag.
	SetDeprecated(ctx context.Context, id model.PackageID, deprecated bool) error
	// AddMaintainer appends userID to the package maintainers unless present.
	AddMaintainer(ctx context.Context, id model.PackageID, userID model.UserID) error
	// IncrementDownloads bumps the download counter.
	IncrementDownloads(ctx context.Context, id model.PackageID) error
	// Delete removes the package and unlinks it from its namespace and users.
	// Returns the number of package rows removed.
	Delete(ctx context.Context, id model.PackageID) (int64, error)

	// Search returns one page of non-deprecated packages matching the query.
	Search(ctx context.Context, q model.SearchQuery) (model.SearchResult, error)
	// List returns one unfiltered page of packages.
	List(ctx context.Context, page int) ([]model.PackageSummary, error)
	// ListByUser returns packages the user authored or maintains.
	ListByUser(ctx context.Context, userID model.UserID) ([]model.PackageSummary, error)
}
