package rbac

import (
	"context"
	"fmt"
)

// CatalogEntry describes one permission seeded at bootstrap.
type CatalogEntry struct {
	Name     string
	Resource string
	Action   string
	Scope    Scope
	Category string
}

// DefaultCatalog returns the permission vocabulary the engine operates on.
// The catalog is immutable at runtime; only a platform operator may add to it.
func DefaultCatalog() []CatalogEntry {
	entries := []CatalogEntry{
		{Name: PermissionAll, Resource: "permission", Action: "all", Scope: ScopeAll, Category: "system"},
	}
	resources := []string{"users", "roles", "permissions", "tenants", "assignments", "audit"}
	actions := []string{"read", "write", "delete"}
	for _, resource := range resources {
		for _, action := range actions {
			for _, scope := range []Scope{ScopeOwn, ScopeTenant, ScopeAll} {
				entries = append(entries, CatalogEntry{
					Name:     catalogName(resource, action, scope),
					Resource: resource,
					Action:   action,
					Scope:    scope,
					Category: resource,
				})
			}
		}
	}
	return entries
}

// catalogName builds the unique human name. The tenant-scoped grant keeps the
// bare "resource:action" convention; narrower and wider scopes are suffixed.
func catalogName(resource, action string, scope Scope) string {
	switch scope {
	case ScopeOwn:
		return fmt.Sprintf("%s:%s:own", resource, action)
	case ScopeAll:
		return fmt.Sprintf("%s:%s:all", resource, action)
	default:
		return fmt.Sprintf("%s:%s", resource, action)
	}
}

// Seed inserts the default catalog, skipping entries that already exist.
func Seed(ctx context.Context, store Store) error {
	for _, entry := range DefaultCatalog() {
		if err := store.EnsurePermission(ctx, Permission{
			Name:     entry.Name,
			Resource: entry.Resource,
			Action:   entry.Action,
			Scope:    entry.Scope,
			IsSystem: true,
			Category: entry.Category,
		}); err != nil {
			return fmt.Errorf("rbac: seed %s/%s: %w", entry.Name, entry.Scope, err)
		}
	}
	return nil
}
