package assignments

import "time"

// Status is the assignment activation status. Only ACTIVE assignments grant
// permissions or count for tenant membership.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Assignment binds a user to a role within a tenant. A nil TenantID marks a
// platform-level binding for SYSTEM roles. At most one assignment per user may
// carry IsPrimary; the primary assignment selects the default tenant when a
// request names none.
type Assignment struct {
	ID         int64
	UserID     int64
	TenantID   *int64
	RoleID     int64
	Status     Status
	IsPrimary  bool
	AssignedBy *int64
	AssignedAt time.Time
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
