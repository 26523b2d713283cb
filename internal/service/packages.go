package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/and161185/pkg-registry/internal/authz"
	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/license"
	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/repository"
	"github.com/and161185/pkg-registry/internal/semver"
)

// TarballContentType is stored with every uploaded artifact.
const TarballContentType = "application/gzip"

// UploadInput carries the upload form.
type UploadInput struct {
	Token   string
	Name    string
	Version string
	License string
	Tarball []byte

	// Optional metadata, applied when the package is created.
	Description  string
	Copyright    string
	Tags         []string
	Dependencies string
}

// PackageService implements the package lifecycle.
type PackageService interface {
	// Upload publishes a version, creating the package on first upload.
	Upload(ctx context.Context, in UploadInput) error
	// SetDeprecated flips the deprecation flag; needs package authorization.
	SetDeprecated(ctx context.Context, session, namespace, name string, deprecated bool) error
	// Delete removes a package; global admins only.
	Delete(ctx context.Context, session, namespace, name string) error
	// DeleteVersion removes one version; global admins only.
	DeleteVersion(ctx context.Context, session, namespace, name, version string) error
	// Search pages through non-deprecated packages.
	Search(ctx context.Context, q model.SearchQuery) (model.SearchResult, error)
	// List pages through all packages.
	List(ctx context.Context, page int) ([]model.PackageSummary, error)
	// Get returns the package with its full version history.
	Get(ctx context.Context, namespace, name string) (*model.PackageDetails, error)
	// CheckCached reports whether the newest cached version is current;
	// when it is not the details are returned.
	CheckCached(ctx context.Context, namespace, name string, cached []string) (*model.PackageDetails, bool, error)
	// GetVersion returns one version of the package.
	GetVersion(ctx context.Context, namespace, name, version string) (*model.PackageDetails, *model.Version, error)
	// Download loads a tarball and counts the download.
	Download(ctx context.Context, id model.BlobID) (*model.Blob, error)
	// InviteMaintainer queues a maintainer invitation for username.
	InviteMaintainer(ctx context.Context, session, namespace, name, username string) error
}

type PackageServiceImpl struct {
	users      repository.UserRepository
	namespaces repository.NamespaceRepository
	packages   repository.PackageRepository
	blobs      repository.BlobRepository
	tokens     TokenService
	now        func() time.Time
}

// NewPackageService constructs PackageService.
func NewPackageService(users repository.UserRepository, namespaces repository.NamespaceRepository,
	packages repository.PackageRepository, blobs repository.BlobRepository, tokens TokenService) *PackageServiceImpl {
	return &PackageServiceImpl{
		users:      users,
		namespaces: namespaces,
		packages:   packages,
		blobs:      blobs,
		tokens:     tokens,
		now:        time.Now,
	}
}

// TarballName is the stored file name of a version artifact.
func TarballName(name, version string) string {
	return name + "-" + version + ".tar.gz"
}

// Integrity returns the subresource-integrity string of data.
func Integrity(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
}

// withVersion returns a copy of vs with v added, ordered by numeric version.
func withVersion(vs []model.Version, v model.Version) []model.Version {
	out := make([]model.Version, 0, len(vs)+1)
	out = append(out, vs...)
	out = append(out, v)
	slices.SortStableFunc(out, func(a, b model.Version) int { return semver.Compare(a.Version, b.Version) })
	return out
}

func withoutVersion(vs []model.Version, version string) []model.Version {
	return slices.DeleteFunc(slices.Clone(vs), func(v model.Version) bool { return v.Version == version })
}

// Upload validates the request, stores the tarball and records the version.
func (s *PackageServiceImpl) Upload(ctx context.Context, in UploadInput) error {
	if err := required(validation.Errors{
		"upload_token":    validation.Validate(in.Token, validation.Required),
		"package_name":    validation.Validate(in.Name, validation.Required),
		"package_version": validation.Validate(in.Version, validation.Required),
		"package_license": validation.Validate(in.License, validation.Required),
		"tarball":         validation.Validate(in.Tarball, validation.Required),
	}); err != nil {
		return err
	}
	if !semver.Valid(in.Version) {
		return fmt.Errorf("%q: %w", in.Version, errs.ErrInvalidVersion)
	}
	if !license.Valid(in.License) {
		return fmt.Errorf("%q: %w", in.License, errs.ErrInvalidLicense)
	}

	rt, err := s.tokens.Resolve(ctx, in.Token)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if IsExpired(rt.Token, now) {
		return errs.ErrTokenExpired
	}
	user, err := s.users.GetByID(ctx, rt.Token.CreatedBy)
	if err != nil {
		return notFound("user", err)
	}

	ns, pkg := rt.Namespace, rt.Package
	if pkg != nil {
		if pkg.Name != in.Name {
			return errs.ErrInvalidToken
		}
	} else {
		pkg, err = s.packages.GetByName(ctx, ns.ID, in.Name)
		if errors.Is(err, errs.ErrNotFound) {
			pkg, err = nil, nil
		}
		if err != nil {
			return err
		}
	}

	if pkg == nil && !authz.IsNamespaceAuthorized(user.ID, ns) {
		return errs.ErrUnauthorized
	}
	if pkg != nil && !authz.IsPackageAuthorized(user.ID, ns, pkg) {
		return errs.ErrUnauthorized
	}
	if pkg != nil {
		if _, ok := pkg.FindVersion(in.Version); ok {
			return fmt.Errorf("version %s: %w", in.Version, errs.ErrAlreadyExists)
		}
	}

	pkgID := model.NewPackageID()
	if pkg != nil {
		pkgID = pkg.ID
	}
	tarball := TarballName(in.Name, in.Version)
	blobID, err := s.blobs.Put(ctx, &model.Blob{
		PackageID:   pkgID,
		Filename:    tarball,
		ContentType: TarballContentType,
		Data:        in.Tarball,
	})
	if err != nil {
		return err
	}
	v := model.Version{
		Version:      in.Version,
		Tarball:      tarball,
		BlobID:       blobID,
		Dependencies: in.Dependencies,
		CreatedAt:    now,
		DownloadURL:  "/tarballs/" + blobID.String(),
		Integrity:    Integrity(in.Tarball),
	}

	if pkg == nil {
		err = s.create(ctx, ns, user, pkgID, in, v)
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return err
		}
		// a concurrent first upload won the insert: join its package
		if pkg, err = s.packages.GetByName(ctx, ns.ID, in.Name); err != nil {
			return notFound("package", err)
		}
		if !authz.IsPackageAuthorized(user.ID, ns, pkg) {
			return errs.ErrUnauthorized
		}
		if err := s.blobs.SetPackage(ctx, blobID, pkg.ID); err != nil {
			return err
		}
	}
	return s.appendVersion(ctx, pkg, v)
}

func (s *PackageServiceImpl) create(ctx context.Context, ns *model.Namespace, author *model.User,
	id model.PackageID, in UploadInput, v model.Version) error {
	p := &model.Package{
		ID:          id,
		Name:        in.Name,
		NamespaceID: ns.ID,
		AuthorID:    author.ID,
		Maintainers: []model.UserID{author.ID},
		Description: in.Description,
		License:     in.License,
		Copyright:   in.Copyright,
		Tags:        in.Tags,
		Versions:    []model.Version{v},
	}
	if err := s.packages.Create(ctx, p); err != nil {
		return err
	}
	if err := s.namespaces.AddPackage(ctx, ns.ID, id); err != nil {
		return err
	}
	return s.users.AddAuthorOf(ctx, author.ID, id)
}

func (s *PackageServiceImpl) appendVersion(ctx context.Context, pkg *model.Package, v model.Version) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if attempt > 0 {
			var err error
			if pkg, err = s.packages.GetByID(ctx, pkg.ID); err != nil {
				return notFound("package", err)
			}
		}
		if _, ok := pkg.FindVersion(v.Version); ok {
			return fmt.Errorf("version %s: %w", v.Version, errs.ErrAlreadyExists)
		}
		_, err := s.packages.ReplaceVersions(ctx, pkg.ID, pkg.Rev, withVersion(pkg.Versions, v))
		if !errors.Is(err, errs.ErrVersionConflict) {
			return err
		}
	}
	return errs.ErrVersionConflict
}

// SetDeprecated updates the deprecation flag of a package.
func (s *PackageServiceImpl) SetDeprecated(ctx context.Context, session, namespace, name string, deprecated bool) error {
	u, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return err
	}
	ns, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return err
	}
	if !authz.IsPackageAuthorized(u.ID, ns, pkg) {
		return errs.ErrUnauthorized
	}
	return s.packages.SetDeprecated(ctx, pkg.ID, deprecated)
}

func (s *PackageServiceImpl) admin(ctx context.Context, session string) error {
	u, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return err
	}
	if !authz.IsAdmin(u) {
		return errs.ErrUnauthorized
	}
	return nil
}

func (s *PackageServiceImpl) remove(ctx context.Context, id model.PackageID) error {
	n, err := s.packages.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("package delete removed nothing: %w", errs.ErrInternal)
	}
	return nil
}

// Delete removes a package and its references.
func (s *PackageServiceImpl) Delete(ctx context.Context, session, namespace, name string) error {
	if err := s.admin(ctx, session); err != nil {
		return err
	}
	_, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return err
	}
	return s.remove(ctx, pkg.ID)
}

// DeleteVersion removes one version. Removing the last version removes the package.
func (s *PackageServiceImpl) DeleteVersion(ctx context.Context, session, namespace, name, version string) error {
	if err := s.admin(ctx, session); err != nil {
		return err
	}
	_, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if attempt > 0 {
			if pkg, err = s.packages.GetByID(ctx, pkg.ID); err != nil {
				return notFound("package", err)
			}
		}
		if _, ok := pkg.FindVersion(version); !ok {
			return fmt.Errorf("version %s: %w", version, errs.ErrNotFound)
		}
		if len(pkg.Versions) == 1 {
			return s.remove(ctx, pkg.ID)
		}
		_, err = s.packages.ReplaceVersions(ctx, pkg.ID, pkg.Rev, withoutVersion(pkg.Versions, version))
		if !errors.Is(err, errs.ErrVersionConflict) {
			return err
		}
	}
	return errs.ErrVersionConflict
}

// Search returns one page of hits; ErrNotFound when nothing matches at all.
func (s *PackageServiceImpl) Search(ctx context.Context, q model.SearchQuery) (model.SearchResult, error) {
	res, err := s.packages.Search(ctx, q)
	if err != nil {
		return model.SearchResult{}, err
	}
	if res.TotalPages == 0 {
		return model.SearchResult{}, fmt.Errorf("packages: %w", errs.ErrNotFound)
	}
	return res, nil
}

// List returns one page of packages.
func (s *PackageServiceImpl) List(ctx context.Context, page int) ([]model.PackageSummary, error) {
	return s.packages.List(ctx, page)
}

func (s *PackageServiceImpl) details(ctx context.Context, ns *model.Namespace, pkg *model.Package) (*model.PackageDetails, error) {
	d := &model.PackageDetails{Package: pkg, Namespace: ns.Name}
	author, err := s.users.GetByID(ctx, pkg.AuthorID)
	switch {
	case err == nil:
		d.Author = author.Username
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}
	return d, nil
}

// Get returns a package with its history.
func (s *PackageServiceImpl) Get(ctx context.Context, namespace, name string) (*model.PackageDetails, error) {
	ns, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, ns, pkg)
}

// CheckCached compares the client's newest cached version with the latest published one.
func (s *PackageServiceImpl) CheckCached(ctx context.Context, namespace, name string, cached []string) (*model.PackageDetails, bool, error) {
	if len(cached) == 0 {
		return nil, false, fmt.Errorf("cached_versions: %w", errs.ErrMissingField)
	}
	ns, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return nil, false, err
	}
	latest := pkg.Latest()
	if latest == nil || semver.Compare(latest.Version, semver.Max(cached)) <= 0 {
		return nil, true, nil
	}
	d, err := s.details(ctx, ns, pkg)
	return d, false, err
}

// GetVersion looks up one exact version.
func (s *PackageServiceImpl) GetVersion(ctx context.Context, namespace, name, version string) (*model.PackageDetails, *model.Version, error) {
	ns, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return nil, nil, err
	}
	v, ok := pkg.FindVersion(version)
	if !ok {
		return nil, nil, fmt.Errorf("version %s: %w", version, errs.ErrNotFound)
	}
	d, err := s.details(ctx, ns, pkg)
	if err != nil {
		return nil, nil, err
	}
	return d, v, nil
}

// Download returns the tarball and bumps the owning package's counter.
func (s *PackageServiceImpl) Download(ctx context.Context, id model.BlobID) (*model.Blob, error) {
	b, err := s.blobs.Get(ctx, id)
	if err != nil {
		return nil, notFound("tarball", err)
	}
	if err := s.packages.IncrementDownloads(ctx, b.PackageID); err != nil {
		return nil, err
	}
	return b, nil
}

// InviteMaintainer adds the package to the invitee's pending requests.
func (s *PackageServiceImpl) InviteMaintainer(ctx context.Context, session, namespace, name, username string) error {
	if username == "" {
		return fmt.Errorf("username: %w", errs.ErrMissingField)
	}
	u, err := sessionUser(ctx, s.users, session)
	if err != nil {
		return err
	}
	ns, pkg, err := lookupPackage(ctx, s.namespaces, s.packages, namespace, name)
	if err != nil {
		return err
	}
	if !authz.IsPackageAuthorized(u.ID, ns, pkg) {
		return errs.ErrUnauthorized
	}
	invitee, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return notFound("user", err)
	}
	if model.ContainsUser(pkg.Maintainers, invitee.ID) {
		return nil
	}
	return s.users.AddPendingRequest(ctx, invitee.ID, pkg.ID)
}
