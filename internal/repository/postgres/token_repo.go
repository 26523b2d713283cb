package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs an upload token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

// Add stores a token. Re-adding the same token is a no-op.
func (r *TokenRepo) Add(ctx context.Context, t model.UploadToken) error {
	const q = `
INSERT INTO upload_tokens (token, created_by, created_at, namespace_id, package_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (token) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, t.Token, uuid.UUID(t.CreatedBy), t.CreatedAt,
		nullUUID(uuid.UUID(t.NamespaceID)), nullUUID(uuid.UUID(t.PackageID)))
	return err
}

// Get loads a token by value.
func (r *TokenRepo) Get(ctx context.Context, token string) (*model.UploadToken, error) {
	const q = `SELECT token, created_by, created_at, namespace_id, package_id FROM upload_tokens WHERE token=$1`
	var (
		t         model.UploadToken
		createdBy uuid.UUID
		ns, pkg   uuid.NullUUID
	)
	err := r.db.Pool.QueryRow(ctx, q, token).Scan(&t.Token, &createdBy, &t.CreatedAt, &ns, &pkg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	t.CreatedBy = model.UserID(createdBy)
	if ns.Valid {
		t.NamespaceID = model.NamespaceID(ns.UUID)
	}
	if pkg.Valid {
		t.PackageID = model.PackageID(pkg.UUID)
	}
	return &t, nil
}
