package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian/internal/shared"
)

// Store defines the reads the authorization engine performs.
type Store interface {
	// HoldsPlatformRole reports whether the user has an ACTIVE assignment to a
	// SYSTEM role inside the CORE tenant whose grants include the sentinel
	// permission.
	HoldsPlatformRole(ctx context.Context, userID int64) (bool, error)
	// ActivePermissions collects all permissions reachable from the user's
	// ACTIVE assignments, optionally filtered to one tenant.
	ActivePermissions(ctx context.Context, userID int64, tenantID *int64) ([]Permission, error)
	// HasActiveAssignment reports whether the user holds any ACTIVE assignment
	// bound to the given tenant.
	HasActiveAssignment(ctx context.Context, userID, tenantID int64) (bool, error)

	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	EnsurePermission(ctx context.Context, p Permission) error
}

// Repository provides PostgreSQL backed persistence for the engine.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) HoldsPlatformRole(ctx context.Context, userID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM assignments a
			JOIN roles ro ON ro.id = a.role_id
			JOIN tenants t ON t.id = a.tenant_id
			JOIN role_permissions rp ON rp.role_id = ro.id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE a.user_id = $1
			  AND a.status = 'ACTIVE'
			  AND a.deleted_at IS NULL
			  AND ro.type = 'SYSTEM'
			  AND ro.is_active
			  AND ro.deleted_at IS NULL
			  AND t.type = 'CORE'
			  AND p.name = $2
		)`
	var held bool
	if err := r.pool.QueryRow(ctx, query, userID, PermissionAll).Scan(&held); err != nil {
		return false, err
	}
	return held, nil
}

func (r *Repository) ActivePermissions(ctx context.Context, userID int64, tenantID *int64) ([]Permission, error) {
	const query = `
		SELECT DISTINCT p.id, p.name, p.resource, p.action, p.scope, p.is_system, p.category, p.created_at
		FROM assignments a
		JOIN roles ro ON ro.id = a.role_id
		JOIN role_permissions rp ON rp.role_id = ro.id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE a.user_id = $1
		  AND a.status = 'ACTIVE'
		  AND a.deleted_at IS NULL
		  AND ro.is_active
		  AND ro.deleted_at IS NULL
		  AND ($2::bigint IS NULL OR a.tenant_id = $2)
		ORDER BY p.name`
	rows, err := r.pool.Query(ctx, query, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (r *Repository) HasActiveAssignment(ctx context.Context, userID, tenantID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM assignments
			WHERE user_id = $1 AND tenant_id = $2 AND status = 'ACTIVE' AND deleted_at IS NULL
		)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, tenantID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListPermissions returns the full catalog ordered by name and scope.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, resource, action, scope, is_system, category, created_at
		FROM permissions ORDER BY name, scope`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// CreatePermission inserts a new catalog entry. Duplicate names map to
// ErrConflict.
func (r *Repository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	const query = `
		INSERT INTO permissions (name, resource, action, scope, is_system, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query, p.Name, p.Resource, p.Action, p.Scope, p.IsSystem, p.Category).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Permission{}, shared.Conflictf("permission %q already exists", p.Name)
		}
		return Permission{}, err
	}
	return p, nil
}

// EnsurePermission inserts a catalog entry if absent, used by Seed.
func (r *Repository) EnsurePermission(ctx context.Context, p Permission) error {
	const query = `
		INSERT INTO permissions (name, resource, action, scope, is_system, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, p.Name, p.Resource, p.Action, p.Scope, p.IsSystem, p.Category)
	return err
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Scope, &p.IsSystem, &p.Category, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
