// Package semver validates version strings and orders them by their numeric core.
//
// Ordering looks only at MAJOR.MINOR.PATCH: pre-release and build metadata are
// accepted by validation but do not take part in comparison.
package semver

import (
	"errors"

	msemver "github.com/Masterminds/semver/v3"
)

// ErrInvalid is returned for strings that are not full semantic versions.
var ErrInvalid = errors.New("semver: invalid version")

// Triple is the numeric core of a version.
type Triple struct {
	Major, Minor, Patch uint64
}

// Zero reports whether the triple is 0.0.0.
func (t Triple) Zero() bool { return t == Triple{} }

// Compare returns -1, 0 or 1.
func (t Triple) Compare(o Triple) int {
	switch {
	case t.Major != o.Major:
		return cmp(t.Major, o.Major)
	case t.Minor != o.Minor:
		return cmp(t.Minor, o.Minor)
	default:
		return cmp(t.Patch, o.Patch)
	}
}

func cmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func parse(v string) (*msemver.Version, error) {
	sv, err := msemver.StrictNewVersion(v)
	if err != nil {
		return nil, ErrInvalid
	}
	return sv, nil
}

// Parse validates v as MAJOR.MINOR.PATCH[-pre][+build] and returns its core.
func Parse(v string) (Triple, error) {
	sv, err := parse(v)
	if err != nil {
		return Triple{}, err
	}
	return Triple{Major: sv.Major(), Minor: sv.Minor(), Patch: sv.Patch()}, nil
}

// Valid reports whether v parses and is not a plain 0.0.0 release.
// Pre-releases of 0.0.0 are allowed.
func Valid(v string) bool {
	sv, err := parse(v)
	if err != nil {
		return false
	}
	t := Triple{Major: sv.Major(), Minor: sv.Minor(), Patch: sv.Patch()}
	return !t.Zero() || sv.Prerelease() != ""
}

// Compare orders two version strings by numeric core. Unparseable strings sort as 0.0.0.
func Compare(a, b string) int {
	ta, _ := Parse(a)
	tb, _ := Parse(b)
	return ta.Compare(tb)
}

// Max returns the highest version of vs, or "" when vs is empty.
func Max(vs []string) string {
	var best string
	for i, v := range vs {
		if i == 0 || Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}
