package model

// Role is a bit set of global roles.
type Role uint8

const (
	RoleUser Role = 1 << iota
	RoleAdmin
)

// Has reports whether all bits of x are set.
func (r Role) Has(x Role) bool { return x != 0 && r&x == x }

// IsAdmin reports whether the admin bit is set.
func (r Role) IsAdmin() bool { return r.Has(RoleAdmin) }

// Strings returns the role names in a stable order.
func (r Role) Strings() []string {
	out := []string{}
	if r.Has(RoleUser) {
		out = append(out, "user")
	}
	if r.Has(RoleAdmin) {
		out = append(out, "admin")
	}
	return out
}
