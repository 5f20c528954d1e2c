package tenancy

import (
	"fmt"

	"github.com/meridian-hq/meridian/internal/shared"
)

// Tenanted is implemented by records that belong to a tenant.
type Tenanted interface {
	TenantRef() int64
}

// ScopeQuery merges a tenant-equality predicate into a WHERE clause unless
// the context is super admin, which explicitly bypasses filtering. A context
// without a tenant id is a no-op.
func ScopeQuery(tc *shared.TenantContext, column string, conds []string, args []any) ([]string, []any) {
	if tc == nil || tc.IsSuperAdmin || tc.ID == 0 {
		return conds, args
	}
	args = append(args, tc.ID)
	conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	return conds, args
}

// ScopeResults post-hoc filters an already fetched collection by tenant, with
// the same super-admin bypass as ScopeQuery.
func ScopeResults[T Tenanted](tc *shared.TenantContext, items []T) []T {
	if tc == nil || tc.IsSuperAdmin || tc.ID == 0 {
		return items
	}
	out := items[:0:0]
	for _, item := range items {
		if item.TenantRef() == tc.ID {
			out = append(out, item)
		}
	}
	return out
}
