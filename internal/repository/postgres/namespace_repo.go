package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
)

// NamespaceRepo implements NamespaceRepository using PostgreSQL.
type NamespaceRepo struct{ db *DB }

// NewNamespaceRepo constructs a namespace repository.
func NewNamespaceRepo(db *DB) *NamespaceRepo { return &NamespaceRepo{db: db} }

const namespaceCols = `id, name, description, admins, maintainers, packages, created_at, updated_at`

func scanNamespace(row pgx.Row) (*model.Namespace, error) {
	var (
		ns                     model.Namespace
		id                     uuid.UUID
		admins, maints, pkgIDs []string
	)
	err := row.Scan(&id, &ns.Name, &ns.Description, &admins, &maints, &pkgIDs, &ns.CreatedAt, &ns.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	ns.ID = model.NamespaceID(id)
	ns.Admins = textToUserIDs(admins)
	ns.Maintainers = textToUserIDs(maints)
	ns.Packages = textToPackageIDs(pkgIDs)
	return &ns, nil
}

// Create inserts a namespace row.
func (r *NamespaceRepo) Create(ctx context.Context, ns *model.Namespace) error {
	const q = `
INSERT INTO namespaces (id, name, description, admins, maintainers, packages)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, uuid.UUID(ns.ID), ns.Name, ns.Description,
		userIDsToText(ns.Admins), userIDsToText(ns.Maintainers), packageIDsToText(ns.Packages))
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a namespace by ID.
func (r *NamespaceRepo) GetByID(ctx context.Context, id model.NamespaceID) (*model.Namespace, error) {
	return scanNamespace(r.db.Pool.QueryRow(ctx, `SELECT `+namespaceCols+` FROM namespaces WHERE id=$1`, uuid.UUID(id)))
}

// GetByName selects a namespace by name.
func (r *NamespaceRepo) GetByName(ctx context.Context, name string) (*model.Namespace, error) {
	return scanNamespace(r.db.Pool.QueryRow(ctx, `SELECT `+namespaceCols+` FROM namespaces WHERE name=$1`, name))
}

// AddPackage registers a package in the namespace; repeated calls do not duplicate it.
func (r *NamespaceRepo) AddPackage(ctx context.Context, id model.NamespaceID, pkgID model.PackageID) error {
	const q = `
UPDATE namespaces SET packages = array_append(packages, $2), updated_at = now()
WHERE id = $1 AND NOT ($2 = ANY(packages))`
	_, err := r.db.Pool.Exec(ctx, q, uuid.UUID(id), pkgID.String())
	return err
}
