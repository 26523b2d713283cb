// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/pkg-registry/internal/model"
)

// UserRepository provides access to user accounts and their session state.
type UserRepository interface {
	// Create inserts a new user; ErrAlreadyExists on duplicate username/email.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id model.UserID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// GetByEmail loads a user by (lowercased) email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetBySessionToken loads the user currently holding the session token.
	GetBySessionToken(ctx context.Context, token string) (*model.User, error)
	// ExistsByUsernameOrEmail reports whether either key is taken.
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	// SessionTokenExists reports whether any user holds the token.
	SessionTokenExists(ctx context.Context, token string) (bool, error)

	// Login increments the login counter; candidate becomes the session token
	// only when the counter was zero. Returns the resulting token and counter.
	Login(ctx context.Context, id model.UserID, candidate string, at time.Time) (string, int, error)
	// Logout decrements the login counter and clears the token when it reaches zero.
	Logout(ctx context.Context, id model.UserID, at time.Time) (int, error)
	// SetSession overwrites token and counter (password-reset flow).
	SetSession(ctx context.Context, id model.UserID, token string, count int) error
	// SetPassword stores a new hash and ends every session of the user.
	SetPassword(ctx context.Context, id model.UserID, hash []byte) error
	// SetEmail moves the account to a new email; ErrAlreadyExists if taken.
	SetEmail(ctx context.Context, id model.UserID, email string) error

	// AddAuthorOf appends pkgID to author_of unless present.
	AddAuthorOf(ctx context.Context, id model.UserID, pkgID model.PackageID) error
	// AddMaintainerOf appends pkgID to maintainer_of unless present.
	AddMaintainerOf(ctx context.Context, id model.UserID, pkgID model.PackageID) error
	// AddPendingRequest appends pkgID to pending_requests unless present.
	AddPendingRequest(ctx context.Context, id model.UserID, pkgID model.PackageID) error
	// RemovePendingRequest removes pkgID from pending_requests (no-op when absent).
	RemovePendingRequest(ctx context.Context, id model.UserID, pkgID model.PackageID) error

	// Delete removes the account.
	Delete(ctx context.Context, id model.UserID) error
}
