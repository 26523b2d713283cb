package model

import (
	"github.com/gofrs/uuid/v5"
)

// UserID identifies a user.
type UserID uuid.UUID

// NamespaceID identifies a namespace.
type NamespaceID uuid.UUID

// PackageID identifies a package.
type PackageID uuid.UUID

// BlobID identifies a stored artifact.
type BlobID uuid.UUID

func newUUID() uuid.UUID { return uuid.Must(uuid.NewV4()) }

// NewUserID returns a random user id.
func NewUserID() UserID { return UserID(newUUID()) }

// NewNamespaceID returns a random namespace id.
func NewNamespaceID() NamespaceID { return NamespaceID(newUUID()) }

// NewPackageID returns a random package id.
func NewPackageID() PackageID { return PackageID(newUUID()) }

// NewBlobID returns a random blob id.
func NewBlobID() BlobID { return BlobID(newUUID()) }

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id NamespaceID) String() string { return uuid.UUID(id).String() }
func (id PackageID) String() string   { return uuid.UUID(id).String() }
func (id BlobID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id NamespaceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PackageID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id BlobID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// ParseBlobID parses the textual form used in download urls.
func ParseBlobID(s string) (BlobID, error) {
	u, err := uuid.FromString(s)
	return BlobID(u), err
}

// MarshalText keeps blob ids readable inside the stored version JSON.
func (id BlobID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *BlobID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = BlobID(u)
	return nil
}

// ContainsUser reports whether id is in ids.
func ContainsUser(ids []UserID, id UserID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// ContainsPackage reports whether id is in ids.
func ContainsPackage(ids []PackageID, id PackageID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
