package service

import (
	"context"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/repository"
)

// NamespaceService manages namespaces.
type NamespaceService interface {
	// Create makes a namespace administered by the caller.
	Create(ctx context.Context, session, name, description string) (*model.Namespace, error)
	// Get returns a namespace with its package names.
	Get(ctx context.Context, name string) (*model.NamespaceDetails, error)
}

type NamespaceServiceImpl struct {
	users      repository.UserRepository
	namespaces repository.NamespaceRepository
	packages   repository.PackageRepository
}

// NewNamespaceService constructs NamespaceService.
func NewNamespaceService(users repository.UserRepository, namespaces repository.NamespaceRepository,
	packages repository.PackageRepository) *NamespaceServiceImpl {
	return &NamespaceServiceImpl{users: users, namespaces: namespaces, packages: packages}
}

// Create registers a new namespace.
func (s *NamespaceServiceImpl) Create(ctx context.Context, session, name, description string) (*model.Namespace, error) {
	if err := required(validation.Errors{
		"namespace": validation.Validate(name, validation.Required),
	}); err != nil {
		return nil, err
	}
	u, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return nil, err
	}
	ns := &model.Namespace{
		ID:          model.NewNamespaceID(),
		Name:        name,
		Description: description,
		Admins:      []model.UserID{u.ID},
	}
	if err := s.namespaces.Create(ctx, ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// Get loads a namespace by name.
func (s *NamespaceServiceImpl) Get(ctx context.Context, name string) (*model.NamespaceDetails, error) {
	ns, err := s.namespaces.GetByName(ctx, name)
	if err != nil {
		return nil, notFound("namespace", err)
	}
	out := &model.NamespaceDetails{Namespace: ns, Packages: make([]string, 0, len(ns.Packages))}
	for _, id := range ns.Packages {
		p, err := s.packages.GetByID(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out.Packages = append(out.Packages, p.Name)
	}
	return out, nil
}
