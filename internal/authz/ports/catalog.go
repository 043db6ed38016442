package ports

import id "opsgate/pkg/domain"

// Role is the canonical definition of a named role. Roles are owned by the
// catalog; a role name arriving on a request is only ever a lookup key, never
// a definition.
type Role struct {
	Name        string
	Level       int
	Permissions map[id.Action]bool
}

// Allows reports whether the role grants the action.
func (r Role) Allows(action id.Action) bool {
	return r.Permissions[action]
}

// RoleCatalog resolves role names to canonical roles. Implementations must
// be safe for many concurrent readers and must never expose a partially
// updated view: readers observe either the old snapshot or the new one.
type RoleCatalog interface {
	Lookup(name string) (Role, bool)
}
