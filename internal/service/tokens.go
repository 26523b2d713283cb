package service

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/pkg-registry/internal/authz"
	pkgcrypto "github.com/and161185/pkg-registry/internal/crypto"
	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/repository"
)

// TokenTTL is how long an upload token stays usable.
const TokenTTL = 7 * 24 * time.Hour

// IsExpired reports whether more than TokenTTL passed since the token was issued.
func IsExpired(t model.UploadToken, now time.Time) bool {
	return now.Sub(t.CreatedAt) > TokenTTL
}

// ResolvedToken is an upload token with its scope loaded.
type ResolvedToken struct {
	Token     model.UploadToken
	Namespace *model.Namespace
	Package   *model.Package // nil for namespace-scoped tokens
}

// TokenService issues and resolves upload tokens.
type TokenService interface {
	// IssueNamespaceToken requires namespace admin or maintainer rights.
	IssueNamespaceToken(ctx context.Context, session, namespace string) (string, error)
	// IssuePackageToken requires the caller to maintain the package.
	IssuePackageToken(ctx context.Context, session, namespace, name string) (string, error)
	// Resolve loads the token and its scope; ErrInvalidToken when unknown.
	Resolve(ctx context.Context, token string) (*ResolvedToken, error)
}

type TokenServiceImpl struct {
	users      repository.UserRepository
	namespaces repository.NamespaceRepository
	packages   repository.PackageRepository
	tokens     repository.TokenRepository
	now        func() time.Time
}

// NewTokenService constructs TokenService.
func NewTokenService(users repository.UserRepository, namespaces repository.NamespaceRepository,
	packages repository.PackageRepository, tokens repository.TokenRepository) *TokenServiceImpl {
	return &TokenServiceImpl{users: users, namespaces: namespaces, packages: packages, tokens: tokens, now: time.Now}
}

func (s *TokenServiceImpl) issue(ctx context.Context, t model.UploadToken) (string, error) {
	tok, err := pkgcrypto.NewToken()
	if err != nil {
		return "", err
	}
	t.Token = tok
	t.CreatedAt = s.now().UTC()
	if err := s.tokens.Add(ctx, t); err != nil {
		return "", err
	}
	return tok, nil
}

// IssueNamespaceToken issues a token that can create packages in the namespace.
func (s *TokenServiceImpl) IssueNamespaceToken(ctx context.Context, session, namespace string) (string, error) {
	u, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return "", err
	}
	ns, err := s.namespaces.GetByName(ctx, namespace)
	if err != nil {
		return "", notFound("namespace", err)
	}
	if !authz.IsNamespaceAuthorized(u.ID, ns) {
		return "", errs.ErrUnauthorized
	}
	return s.issue(ctx, model.UploadToken{CreatedBy: u.ID, NamespaceID: ns.ID})
}

// IssuePackageToken issues a token that can add versions to one package.
func (s *TokenServiceImpl) IssuePackageToken(ctx context.Context, session, namespace, name string) (string, error) {
	u, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return "", err
	}
	_, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return "", err
	}
	if !authz.IsPackageMaintainer(u.ID, pkg) {
		return "", errs.ErrUnauthorized
	}
	return s.issue(ctx, model.UploadToken{CreatedBy: u.ID, PackageID: pkg.ID})
}

// Resolve loads a token and the namespace (and package) it is scoped to.
func (s *TokenServiceImpl) Resolve(ctx context.Context, token string) (*ResolvedToken, error) {
	t, err := s.tokens.Get(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidToken
		}
		return nil, err
	}
	out := &ResolvedToken{Token: *t}
	nsID := t.NamespaceID
	if t.PackageScoped() {
		if out.Package, err = s.packages.GetByID(ctx, t.PackageID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil, errs.ErrInvalidToken
			}
			return nil, err
		}
		nsID = out.Package.NamespaceID
	}
	if out.Namespace, err = s.namespaces.GetByID(ctx, nsID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidToken
		}
		return nil, err
	}
	return out, nil
}
