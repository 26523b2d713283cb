// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates an optimistic concurrency failure (stale revision).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates the caller is not allowed to perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials indicates a wrong email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (duplicate user, version, namespace).
	ErrAlreadyExists = errors.New("already exists")

	// ErrMissingField indicates a required input is absent.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidVersion indicates a version string that is not an acceptable semantic version.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidLicense indicates a license that is not a valid SPDX expression.
	ErrInvalidLicense = errors.New("invalid license")

	// ErrInvalidToken indicates an unknown upload token or one used for the wrong package.
	ErrInvalidToken = errors.New("invalid upload token")

	// ErrTokenExpired indicates an upload token older than its lifetime.
	ErrTokenExpired = errors.New("upload token expired")

	// ErrInternal indicates a store operation reported no effect after a successful precheck.
	ErrInternal = errors.New("internal failure")
)
