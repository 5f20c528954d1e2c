package tenancy

import "time"

// Type classifies a tenant. Exactly one CORE tenant exists; it hosts the
// platform operators and can never be archived, deleted or purged.
type Type string

const (
	TypeCore     Type = "CORE"
	TypeBusiness Type = "BUSINESS"
	TypeTrial    Type = "TRIAL"
)

// Status is the tenant's lifecycle status.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusInactive    Status = "INACTIVE"
	StatusPending     Status = "PENDING"
	StatusDeactivated Status = "DEACTIVATED"
	StatusDeleted     Status = "DELETED"
)

// Tenant is one isolated customer boundary.
type Tenant struct {
	ID        int64
	Slug      string
	Name      string
	Type      Type
	Status    Status
	Tier      string
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantRef makes Tenant usable with the tenant query scoper; a tenant is its
// own boundary.
func (t Tenant) TenantRef() int64 {
	return t.ID
}

// CascadeResult reports progress of a batched assignment cascade. Bulk
// cascades commit batch by batch, so partial progress is reported rather than
// rolled back.
type CascadeResult struct {
	Affected int
	Batches  int
	Enqueued bool
}
