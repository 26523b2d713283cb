package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
)

// BlobRepo stores uploaded tarballs in the tarballs table.
type BlobRepo struct{ db *DB }

// NewBlobRepo constructs a blob repository.
func NewBlobRepo(db *DB) *BlobRepo { return &BlobRepo{db: db} }

// Put stores the blob, assigning an id when the caller did not.
func (r *BlobRepo) Put(ctx context.Context, b *model.Blob) (model.BlobID, error) {
	if b.ID.IsNil() {
		b.ID = model.NewBlobID()
	}
	const q = `
INSERT INTO tarballs (id, package_id, filename, content_type, data)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, uuid.UUID(b.ID), uuid.UUID(b.PackageID), b.Filename, b.ContentType, b.Data).
		Scan(&b.CreatedAt)
	if err != nil {
		return model.BlobID{}, err
	}
	return b.ID, nil
}

// Get loads a blob by id.
func (r *BlobRepo) Get(ctx context.Context, id model.BlobID) (*model.Blob, error) {
	const q = `SELECT id, package_id, filename, content_type, data, created_at FROM tarballs WHERE id=$1`
	var (
		b          model.Blob
		bid, pkgID uuid.UUID
	)
	err := r.db.Pool.QueryRow(ctx, q, uuid.UUID(id)).Scan(&bid, &pkgID, &b.Filename, &b.ContentType, &b.Data, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	b.ID = model.BlobID(bid)
	b.PackageID = model.PackageID(pkgID)
	return &b, nil
}

// SetPackage relinks a blob to the package that owns it.
func (r *BlobRepo) SetPackage(ctx context.Context, id model.BlobID, pkg model.PackageID) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE tarballs SET package_id=$2 WHERE id=$1`, uuid.UUID(id), uuid.UUID(pkg))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
