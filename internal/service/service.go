// Package service contains application services for accounts, upload tokens,
// namespaces and packages.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/repository"
)

// maxCASAttempts bounds re-read/re-write cycles on a contended package row.
const maxCASAttempts = 3

// sessionUser resolves a session token to its user.
func sessionUser(ctx context.Context, users repository.UserRepository, token string) (*model.User, error) {
	if token == "" {
		return nil, errs.ErrUnauthorized
	}
	u, err := users.GetBySessionToken(ctx, token)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	return u, err
}

// missing converts ozzo validation errors into ErrMissingField.
func missing(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", errs.ErrMissingField, err)
}

func required(fields validation.Errors) error {
	return missing(fields.Filter())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// notFound wraps ErrNotFound with the entity name for the response message.
func notFound(what string, err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, errs.ErrNotFound)
	}
	return err
}

// lookupPackage resolves namespace and package names.
func lookupPackage(ctx context.Context, namespaces repository.NamespaceRepository, packages repository.PackageRepository,
	nsName, name string) (*model.Namespace, *model.Package, error) {
	ns, err := namespaces.GetByName(ctx, nsName)
	if err != nil {
		return nil, nil, notFound("namespace", err)
	}
	pkg, err := packages.GetByName(ctx, ns.ID, name)
	if err != nil {
		return nil, nil, notFound("package", err)
	}
	return ns, pkg, nil
}
