// Package authz holds the pure authorization predicates over namespace and
// package membership. Nothing here touches the store.
package authz

import "github.com/and161185/pkg-registry/internal/model"

// IsNamespaceAuthorized reports whether the user administers or maintains the namespace.
func IsNamespaceAuthorized(userID model.UserID, ns *model.Namespace) bool {
	if ns == nil {
		return false
	}
	return model.ContainsUser(ns.Admins, userID) || model.ContainsUser(ns.Maintainers, userID)
}

// IsPackageAuthorized reports whether the user may publish to or update the package:
// namespace admins and maintainers plus the package's own maintainers.
func IsPackageAuthorized(userID model.UserID, ns *model.Namespace, pkg *model.Package) bool {
	if IsNamespaceAuthorized(userID, ns) {
		return true
	}
	return IsPackageMaintainer(userID, pkg)
}

// IsPackageMaintainer reports whether the user is listed as a maintainer of the package itself.
func IsPackageMaintainer(userID model.UserID, pkg *model.Package) bool {
	return pkg != nil && model.ContainsUser(pkg.Maintainers, userID)
}

// IsAdmin reports whether the user carries the global admin role.
func IsAdmin(u *model.User) bool {
	return u != nil && u.Roles.IsAdmin()
}
