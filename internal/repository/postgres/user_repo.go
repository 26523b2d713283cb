package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, username, email, pwd_hash, roles, session_token, login_count, login_at, logout_at, created_at, author_of, maintainer_of, pending_requests`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u                         model.User
		id                        uuid.UUID
		roles                     int16
		authorOf, maintOf, pendng []string
	)
	err := row.Scan(&id, &u.Username, &u.Email, &u.PwdHash, &roles, &u.SessionToken, &u.LoginCount,
		&u.LoginAt, &u.LogoutAt, &u.CreatedAt, &authorOf, &maintOf, &pendng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.ID = model.UserID(id)
	u.Roles = model.Role(roles)
	u.AuthorOf = textToPackageIDs(authorOf)
	u.MaintainerOf = textToPackageIDs(maintOf)
	u.PendingRequests = textToPackageIDs(pendng)
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, email, pwd_hash, roles, session_token, login_count, login_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q, uuid.UUID(u.ID), u.Username, u.Email, u.PwdHash,
		int16(u.Roles), u.SessionToken, u.LoginCount, u.LoginAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id model.UserID) (*model.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, uuid.UUID(id)))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username=$1`, username))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email))
}

// GetBySessionToken selects the user holding a non-empty session token.
func (r *UserRepo) GetBySessionToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, errs.ErrNotFound
	}
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE session_token=$1`, token))
}

// ExistsByUsernameOrEmail reports whether username or email is already registered.
func (r *UserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1 OR email=$2)`
	var ok bool
	err := r.db.Pool.QueryRow(ctx, q, username, email).Scan(&ok)
	return ok, err
}

// SessionTokenExists reports whether a session token is in use.
func (r *UserRepo) SessionTokenExists(ctx context.Context, token string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE session_token=$1)`
	var ok bool
	err := r.db.Pool.QueryRow(ctx, q, token).Scan(&ok)
	return ok, err
}

// Login bumps the counter in a single statement so concurrent logins share one token.
func (r *UserRepo) Login(ctx context.Context, id model.UserID, candidate string, at time.Time) (string, int, error) {
	const q = `
UPDATE users
SET session_token = CASE WHEN login_count = 0 THEN $2 ELSE session_token END,
    login_count = login_count + 1,
    login_at = $3
WHERE id = $1
RETURNING session_token, login_count`
	var (
		token string
		count int
	)
	if err := r.db.Pool.QueryRow(ctx, q, uuid.UUID(id), candidate, at).Scan(&token, &count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, errs.ErrNotFound
		}
		return "", 0, err
	}
	return token, count, nil
}

// Logout decrements the counter; the token is cleared together with the last session.
func (r *UserRepo) Logout(ctx context.Context, id model.UserID, at time.Time) (int, error) {
	const q = `
UPDATE users
SET login_count = GREATEST(login_count - 1, 0),
    session_token = CASE WHEN login_count <= 1 THEN '' ELSE session_token END,
    logout_at = $2
WHERE id = $1
RETURNING login_count`
	var count int
	if err := r.db.Pool.QueryRow(ctx, q, uuid.UUID(id), at).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

// SetSession overwrites the session token and counter.
func (r *UserRepo) SetSession(ctx context.Context, id model.UserID, token string, count int) error {
	const q = `UPDATE users SET session_token = $2, login_count = $3 WHERE id = $1`
	return r.execOne(ctx, q, uuid.UUID(id), token, count)
}

// SetPassword replaces the hash and logs the user out everywhere.
func (r *UserRepo) SetPassword(ctx context.Context, id model.UserID, hash []byte) error {
	const q = `UPDATE users SET pwd_hash = $2, session_token = '', login_count = 0 WHERE id = $1`
	return r.execOne(ctx, q, uuid.UUID(id), hash)
}

// SetEmail changes the account email.
func (r *UserRepo) SetEmail(ctx context.Context, id model.UserID, email string) error {
	const q = `UPDATE users SET email = $2 WHERE id = $1`
	err := r.execOne(ctx, q, uuid.UUID(id), email)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// AddAuthorOf records the user as author of a package.
func (r *UserRepo) AddAuthorOf(ctx context.Context, id model.UserID, pkgID model.PackageID) error {
	const q = `UPDATE users SET author_of = array_append(author_of, $2) WHERE id = $1 AND NOT ($2 = ANY(author_of))`
	_, err := r.db.Pool.Exec(ctx, q, uuid.UUID(id), pkgID.String())
	return err
}

// AddMaintainerOf records the user as maintainer of a package.
func (r *UserRepo) AddMaintainerOf(ctx context.Context, id model.UserID, pkgID model.PackageID) error {
	const q = `UPDATE users SET maintainer_of = array_append(maintainer_of, $2) WHERE id = $1 AND NOT ($2 = ANY(maintainer_of))`
	_, err := r.db.Pool.Exec(ctx, q, uuid.UUID(id), pkgID.String())
	return err
}

// AddPendingRequest queues a maintainer invitation.
func (r *UserRepo) AddPendingRequest(ctx context.Context, id model.UserID, pkgID model.PackageID) error {
	const q = `UPDATE users SET pending_requests = array_append(pending_requests, $2) WHERE id = $1 AND NOT ($2 = ANY(pending_requests))`
	_, err := r.db.Pool.Exec(ctx, q, uuid.UUID(id), pkgID.String())
	return err
}

// RemovePendingRequest drops a maintainer invitation.
func (r *UserRepo) RemovePendingRequest(ctx context.Context, id model.UserID, pkgID model.PackageID) error {
	const q = `UPDATE users SET pending_requests = array_remove(pending_requests, $2) WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, q, uuid.UUID(id), pkgID.String())
	return err
}

// Delete removes a user row.
func (r *UserRepo) Delete(ctx context.Context, id model.UserID) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = $1`, uuid.UUID(id))
}

// execOne runs a statement that must touch exactly one row.
func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
