package service

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/and161185/pkg-registry/internal/authz"
	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/repository"
)

// profileDescriptionLen caps package descriptions shown on profiles.
const profileDescriptionLen = 80

// UserService exposes profiles, account management and maintainer invitations.
type UserService interface {
	// Profile lists the packages a user authored or maintains.
	Profile(ctx context.Context, username string) (*model.Profile, error)
	// Account returns the caller's own account.
	Account(ctx context.Context, session string) (*model.User, error)
	// DeleteSelf removes the caller's account.
	DeleteSelf(ctx context.Context, session string) error
	// AdminDelete removes another account; global admins only.
	AdminDelete(ctx context.Context, session, username string) error
	// Transfer moves an account to a new email and mails a reset link there.
	Transfer(ctx context.Context, session, username, newEmail string) error
	// Invitations lists the caller's pending maintainer requests.
	Invitations(ctx context.Context, session, username string) ([]model.Invitation, error)
	// ResolveInvitation accepts or declines a pending request.
	ResolveInvitation(ctx context.Context, session, username, namespace, name string, accept bool) error
}

type UserServiceImpl struct {
	users      repository.UserRepository
	namespaces repository.NamespaceRepository
	packages   repository.PackageRepository
	auth       AuthService
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository, namespaces repository.NamespaceRepository,
	packages repository.PackageRepository, auth AuthService) *UserServiceImpl {
	return &UserServiceImpl{users: users, namespaces: namespaces, packages: packages, auth: auth}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Profile returns the public view of username.
func (s *UserServiceImpl) Profile(ctx context.Context, username string) (*model.Profile, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, notFound("user", err)
	}
	pkgs, err := s.packages.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	for i := range pkgs {
		pkgs[i].Description = truncate(pkgs[i].Description, profileDescriptionLen)
	}
	return &model.Profile{Username: u.Username, Packages: pkgs}, nil
}

// Account returns the session holder.
func (s *UserServiceImpl) Account(ctx context.Context, session string) (*model.User, error) {
	return sessionUser(ctx, s.users, session)
}

// DeleteSelf deletes the session holder.
func (s *UserServiceImpl) DeleteSelf(ctx context.Context, session string) error {
	u, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return err
	}
	return s.users.Delete(ctx, u.ID)
}

func (s *UserServiceImpl) adminTarget(ctx context.Context, session, username string) (*model.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username: %w", errs.ErrMissingField)
	}
	admin, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return nil, err
	}
	if !authz.IsAdmin(admin) {
		return nil, errs.ErrUnauthorized
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

// AdminDelete deletes username on behalf of an admin.
func (s *UserServiceImpl) AdminDelete(ctx context.Context, session, username string) error {
	u, err := s.adminTarget(ctx, session, username)
	if err != nil {
		return err
	}
	return s.users.Delete(ctx, u.ID)
}

// Transfer changes the email of username and starts a password reset for the new owner.
func (s *UserServiceImpl) Transfer(ctx context.Context, session, username, newEmail string) error {
	email := normalizeEmail(newEmail)
	if err := required(validation.Errors{
		"new_email": validation.Validate(email, validation.Required),
	}); err != nil {
		return err
	}
	u, err := s.adminTarget(ctx, session, username)
	if err != nil {
		return err
	}
	if err := s.users.SetEmail(ctx, u.ID, email); err != nil {
		return err
	}
	return s.auth.ForgotPassword(ctx, email)
}

func (s *UserServiceImpl) self(ctx context.Context, session, username string) (*model.User, error) {
	u, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return nil, err
	}
	if u.Username != username {
		return nil, errs.ErrUnauthorized
	}
	return u, nil
}

// Invitations lists the pending maintainer requests of the caller.
func (s *UserServiceImpl) Invitations(ctx context.Context, session, username string) ([]model.Invitation, error) {
	u, err := s.self(ctx, session, username)
	if err != nil {
		return nil, err
	}
	out := make([]model.Invitation, 0, len(u.PendingRequests))
	for _, id := range u.PendingRequests {
		p, err := s.packages.GetByID(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ns, err := s.namespaces.GetByID(ctx, p.NamespaceID)
		if err != nil {
			return nil, notFound("namespace", err)
		}
		out = append(out, model.Invitation{Namespace: ns.Name, Package: p.Name})
	}
	return out, nil
}

// ResolveInvitation approves or declines a request. Resolving twice is a no-op.
func (s *UserServiceImpl) ResolveInvitation(ctx context.Context, session, username, namespace, name string, accept bool) error {
	u, err := s.self(ctx, session, username)
	if err != nil {
		return err
	}
	_, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return err
	}
	if !model.ContainsPackage(u.PendingRequests, pkg.ID) {
		return nil
	}
	if accept {
		if err := s.packages.AddMaintainer(ctx, pkg.ID, u.ID); err != nil {
			return err
		}
		if err := s.users.AddMaintainerOf(ctx, u.ID, pkg.ID); err != nil {
			return err
		}
	}
	return s.users.RemovePendingRequest(ctx, u.ID, pkg.ID)
}
