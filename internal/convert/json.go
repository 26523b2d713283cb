// Package convert maps domain models to the JSON documents served over HTTP.
package convert

import (
	"time"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/and161185/pkg-registry/internal/model"
)

// --- helpers ---

func ts(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// PURL returns the generic package url of a package version.
// version may be empty for the package itself.
func PURL(namespace, name, version string) string {
	return packageurl.NewPackageURL(packageurl.TypeGeneric, namespace, name, version, nil, "").ToString()
}

// --- Versions ---

// Version is one entry of a package version history.
type Version struct {
	Version      string    `json:"version"`
	Tarball      string    `json:"tarball"`
	DownloadURL  string    `json:"download_url"`
	Dependencies string    `json:"dependencies"`
	Deprecated   bool      `json:"isDeprecated"`
	CreatedAt    time.Time `json:"createdAt"`
	Integrity    string    `json:"integrity"`
	PURL         string    `json:"purl"`
}

// ToVersion converts a stored version of namespace/name.
func ToVersion(namespace, name string, v model.Version) Version {
	return Version{
		Version:      v.Version,
		Tarball:      v.Tarball,
		DownloadURL:  v.DownloadURL,
		Dependencies: v.Dependencies,
		Deprecated:   v.Deprecated,
		CreatedAt:    v.CreatedAt.UTC(),
		Integrity:    v.Integrity,
		PURL:         PURL(namespace, name, v.Version),
	}
}

func toVersions(namespace, name string, vs []model.Version) []Version {
	out := make([]Version, 0, len(vs))
	for _, v := range vs {
		out = append(out, ToVersion(namespace, name, v))
	}
	return out
}

// --- Packages ---

// Package is the detailed view of a package.
type Package struct {
	Name           string    `json:"name"`
	Namespace      string    `json:"namespace"`
	Author         string    `json:"author"`
	Description    string    `json:"description"`
	License        string    `json:"license"`
	Copyright      string    `json:"copyright"`
	Tags           []string  `json:"tags"`
	Deprecated     bool      `json:"isDeprecated"`
	Downloads      int64     `json:"downloads"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	PURL           string    `json:"purl"`
	Latest         *Version  `json:"latest_version_data,omitempty"`
	VersionData    *Version  `json:"version_data,omitempty"`
	VersionHistory []Version `json:"version_history,omitempty"`
}

func toPackageHeader(d *model.PackageDetails) Package {
	p := d.Package
	return Package{
		Name:        p.Name,
		Namespace:   d.Namespace,
		Author:      d.Author,
		Description: p.Description,
		License:     p.License,
		Copyright:   p.Copyright,
		Tags:        orEmpty(p.Tags),
		Deprecated:  p.Deprecated,
		Downloads:   p.Downloads,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
		PURL:        PURL(d.Namespace, p.Name, ""),
	}
}

// ToPackage converts package details with the latest version and the full history.
func ToPackage(d *model.PackageDetails) Package {
	out := toPackageHeader(d)
	if l := d.Package.Latest(); l != nil {
		v := ToVersion(d.Namespace, d.Package.Name, *l)
		out.Latest = &v
	}
	out.VersionHistory = toVersions(d.Namespace, d.Package.Name, d.Package.Versions)
	return out
}

// ToPackageLatest converts package details with only the latest version.
func ToPackageLatest(d *model.PackageDetails) Package {
	out := toPackageHeader(d)
	if l := d.Package.Latest(); l != nil {
		v := ToVersion(d.Namespace, d.Package.Name, *l)
		out.Latest = &v
	}
	return out
}

// ToPackageVersion converts package details narrowed to one version.
func ToPackageVersion(d *model.PackageDetails, v *model.Version) Package {
	out := toPackageHeader(d)
	if v != nil {
		vd := ToVersion(d.Namespace, d.Package.Name, *v)
		out.VersionData = &vd
	}
	return out
}

// Summary is the listing view of a package.
type Summary struct {
	Name        string    `json:"name"`
	Namespace   string    `json:"namespace"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Downloads   int64     `json:"downloads"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ToSummaries converts a page of package summaries.
func ToSummaries(in []model.PackageSummary) []Summary {
	out := make([]Summary, 0, len(in))
	for _, s := range in {
		out = append(out, Summary{
			Name:        s.Name,
			Namespace:   s.Namespace,
			Author:      s.Author,
			Description: s.Description,
			Tags:        orEmpty(s.Tags),
			Downloads:   s.Downloads,
			CreatedAt:   s.CreatedAt.UTC(),
			UpdatedAt:   s.UpdatedAt.UTC(),
		})
	}
	return out
}

// --- Namespaces ---

// Namespace is the public view of a namespace.
type Namespace struct {
	Name        string    `json:"namespace"`
	Description string    `json:"description"`
	Packages    []string  `json:"packages"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ToNamespace converts namespace details.
func ToNamespace(d *model.NamespaceDetails) Namespace {
	return Namespace{
		Name:        d.Namespace.Name,
		Description: d.Namespace.Description,
		Packages:    orEmpty(d.Packages),
		CreatedAt:   d.Namespace.CreatedAt.UTC(),
		UpdatedAt:   d.Namespace.UpdatedAt.UTC(),
	}
}

// --- Users ---

// Profile is the public view of a user.
type Profile struct {
	Username string    `json:"username"`
	Packages []Summary `json:"packages"`
}

// ToProfile converts a user profile.
func ToProfile(p *model.Profile) Profile {
	return Profile{Username: p.Username, Packages: ToSummaries(p.Packages)}
}

// Account is the owner's view of their account. Credentials are never included.
type Account struct {
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	Roles      []string   `json:"roles"`
	LoginCount int        `json:"login_count"`
	LoginAt    *time.Time `json:"loginAt,omitempty"`
	LogoutAt   *time.Time `json:"logoutAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	Authored   int        `json:"authored"`
	Maintained int        `json:"maintained"`
	Pending    int        `json:"pending_requests"`
}

// ToAccount converts a user to the account view.
func ToAccount(u *model.User) Account {
	return Account{
		Username:   u.Username,
		Email:      u.Email,
		Roles:      u.Roles.Strings(),
		LoginCount: u.LoginCount,
		LoginAt:    ts(u.LoginAt),
		LogoutAt:   ts(u.LogoutAt),
		CreatedAt:  u.CreatedAt.UTC(),
		Authored:   len(u.AuthorOf),
		Maintained: len(u.MaintainerOf),
		Pending:    len(u.PendingRequests),
	}
}

// Invitation is a pending maintainer request.
type Invitation struct {
	Namespace string `json:"namespace"`
	Package   string `json:"package"`
}

// ToInvitations converts pending invitations.
func ToInvitations(in []model.Invitation) []Invitation {
	out := make([]Invitation, 0, len(in))
	for _, i := range in {
		out = append(out, Invitation{Namespace: i.Namespace, Package: i.Package})
	}
	return out
}
