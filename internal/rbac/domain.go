package rbac

import "time"

// Scope is the breadth of a permission grant.
type Scope string

const (
	// ScopeOwn limits a grant to the principal's own records.
	ScopeOwn Scope = "OWN"
	// ScopeTenant limits a grant to one tenant.
	ScopeTenant Scope = "TENANT"
	// ScopeAll grants cross-tenant, system-wide access.
	ScopeAll Scope = "ALL"
)

// PermissionAll is the sentinel grant that bypasses resource/action/scope
// matching entirely. It is a well-known constant, never pattern matched.
const PermissionAll = "permission:all"

// Permission is an atomic capability identified by (resource, action, scope).
// Name is conventionally "resource:action" but decisions key on the triple,
// not the name.
type Permission struct {
	ID        int64
	Name      string
	Resource  string
	Action    string
	Scope     Scope
	IsSystem  bool
	Category  string
	CreatedAt time.Time
}

// Check is a single authorization question. A zero Scope matches any granted
// scope; a set Scope must match exactly. Scope comparison is deliberately not
// hierarchical so grants stay auditable.
type Check struct {
	Resource string
	Action   string
	Scope    Scope
}

// Satisfies reports whether the granted permission answers the check.
func (c Check) Satisfies(p Permission) bool {
	if p.Resource != c.Resource || p.Action != c.Action {
		return false
	}
	if c.Scope == "" {
		return true
	}
	return p.Scope == c.Scope
}
