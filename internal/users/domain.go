package users

import "time"

// Status is the user account status.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusDeleted  Status = "DELETED"
)

// User represents an account. TokenVersion invalidates all previously issued
// credentials when incremented; sessions carrying an older version are
// rejected at the door. The effective tenant is request context, never a
// persisted field, so concurrent requests for the same user cannot race on a
// stored "current tenant".
type User struct {
	ID             int64
	Email          string
	Name           string
	Status         Status
	HomeTenantID   *int64
	TokenVersion   int64
	DeletedAt      *time.Time
	DeletedBy      *int64
	DeletionReason string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TenantRef reports the home tenant for tenant-scoped queries. Users without
// a home tenant are platform-level and invisible to tenant-scoped contexts.
func (u User) TenantRef() int64 {
	if u.HomeTenantID == nil {
		return 0
	}
	return *u.HomeTenantID
}
