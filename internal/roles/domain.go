package roles

import "time"

// RoleType distinguishes platform, tenant-template and custom roles.
type RoleType string

const (
	// TypeSystem marks global platform roles; never bound to a tenant.
	TypeSystem RoleType = "SYSTEM"
	// TypeTenant marks roles owned by (or shared as templates across) tenants.
	TypeTenant RoleType = "TENANT"
	// TypeCustom marks tenant-defined roles.
	TypeCustom RoleType = "CUSTOM"
)

// Level orders roles in the hierarchy.
type Level string

const (
	LevelGuest      Level = "GUEST"
	LevelUser       Level = "USER"
	LevelManager    Level = "MANAGER"
	LevelAdmin      Level = "ADMIN"
	LevelSuperAdmin Level = "SUPER_ADMIN"
)

// Rank returns the ordering position of a level, lowest first.
func (l Level) Rank() int {
	switch l {
	case LevelGuest:
		return 0
	case LevelUser:
		return 1
	case LevelManager:
		return 2
	case LevelAdmin:
		return 3
	case LevelSuperAdmin:
		return 4
	default:
		return -1
	}
}

// Valid reports whether the level is a known hierarchy step.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// Role is a named bundle of permissions. TenantID is nil for global roles;
// (Name, TenantID) is unique among non-deleted roles. Metadata is opaque
// pass-through data and never consulted by authorization decisions.
type Role struct {
	ID           int64
	Name         string
	DisplayName  string
	Type         RoleType
	Level        Level
	TenantID     *int64
	IsSystem     bool
	IsActive     bool
	ParentRoleID *int64
	Metadata     map[string]any
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TenantRef implements tenancy.Tenanted; zero for global roles.
func (r Role) TenantRef() int64 {
	if r.TenantID == nil {
		return 0
	}
	return *r.TenantID
}

// Grant records one permission attached to a role.
type Grant struct {
	RoleID       int64
	PermissionID int64
	GrantedBy    int64
	GrantedAt    time.Time
}
