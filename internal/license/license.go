// Package license validates SPDX license expressions.
package license

import (
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"
)

// Valid reports whether expr is a valid SPDX license identifier or expression.
func Valid(expr string) bool {
	if strings.TrimSpace(expr) == "" {
		return false
	}
	ok, _ := spdxexp.ValidateLicenses([]string{expr})
	return ok
}
