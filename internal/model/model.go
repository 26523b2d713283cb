// Package model defines domain entities used by services and repositories.
package model

import (
	"time"
)

// PageSize is the number of packages returned per search/list page.
const PageSize = 10

// Session is the result of a successful login or signup.
type Session struct {
	Token    string // session uuid (hex)
	Username string
}

// User represents an account. Token is non-empty iff LoginCount > 0.
type User struct {
	ID              UserID
	Username        string // unique
	Email           string // unique, lowercased
	PwdHash         []byte // Argon2id(password, global salt)
	Roles           Role
	SessionToken    string
	LoginCount      int
	LoginAt         *time.Time
	LogoutAt        *time.Time
	CreatedAt       time.Time
	AuthorOf        []PackageID
	MaintainerOf    []PackageID
	PendingRequests []PackageID // packages awaiting the user's maintainer decision
}

// Namespace groups packages and owns namespace-scoped upload tokens.
type Namespace struct {
	ID          NamespaceID
	Name        string // unique
	Description string
	Admins      []UserID
	Maintainers []UserID
	Packages    []PackageID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Package is a named artifact inside a namespace with an ordered version history.
type Package struct {
	ID          PackageID
	Name        string
	NamespaceID NamespaceID
	AuthorID    UserID
	Maintainers []UserID
	Description string
	License     string // SPDX expression
	Copyright   string
	Tags        []string
	Deprecated  bool
	Downloads   int64
	Versions    []Version // ascending by numeric (major, minor, patch)
	Rev         int64     // bumped on every versions rewrite
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Latest returns the highest version or nil when the history is empty.
func (p *Package) Latest() *Version {
	if len(p.Versions) == 0 {
		return nil
	}
	return &p.Versions[len(p.Versions)-1]
}

// FindVersion returns the version entry with the exact version string.
func (p *Package) FindVersion(v string) (*Version, bool) {
	for i := range p.Versions {
		if p.Versions[i].Version == v {
			return &p.Versions[i], true
		}
	}
	return nil, false
}

// Version is one published release of a package. Stored as JSON inside the package row.
type Version struct {
	Version      string    `json:"version"`
	Tarball      string    `json:"tarball"` // <name>-<version>.tar.gz
	BlobID       BlobID    `json:"blob_id"`
	Dependencies string    `json:"dependencies"`
	Deprecated   bool      `json:"is_deprecated"`
	CreatedAt    time.Time `json:"created_at"`
	DownloadURL  string    `json:"download_url"` // /tarballs/<blobId>
	Integrity    string    `json:"integrity"`    // sha256-<base64>
}

// UploadToken is a capability scoped to a namespace (new packages) or a package (new versions).
type UploadToken struct {
	Token       string
	CreatedBy   UserID
	CreatedAt   time.Time
	NamespaceID NamespaceID // set for namespace-scoped tokens
	PackageID   PackageID   // set for package-scoped tokens
}

// PackageScoped reports whether the token is bound to a single package.
func (t UploadToken) PackageScoped() bool { return !t.PackageID.IsNil() }

// Blob is an uploaded artifact in the blob store.
type Blob struct {
	ID          BlobID
	PackageID   PackageID
	Filename    string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// SearchQuery describes a paginated package search.
type SearchQuery struct {
	Query  string
	Page   int
	SortBy string // name, author, createdat, updatedat, downloads
	Desc   bool
}

// PackageSummary is the listing view of a package.
type PackageSummary struct {
	Name        string
	Namespace   string
	Author      string
	Description string
	Tags        []string
	Downloads   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Packages   []PackageSummary
	TotalPages int
}

// PackageDetails is a package together with the names it references.
type PackageDetails struct {
	Package   *Package
	Namespace string
	Author    string
}

// NamespaceDetails is a namespace together with the names of its packages.
type NamespaceDetails struct {
	Namespace *Namespace
	Packages  []string
}

// Profile is the public view of a user.
type Profile struct {
	Username string
	Packages []PackageSummary
}

// Invitation is a pending maintainer request.
type Invitation struct {
	Namespace string
	Package   string
}
