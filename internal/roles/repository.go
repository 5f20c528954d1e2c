package roles

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian/internal/platform/db"
	"github.com/meridian-hq/meridian/internal/rbac"
	"github.com/meridian-hq/meridian/internal/shared"
)

// Repository defines role persistence as seen by the service.
type Repository interface {
	Create(ctx context.Context, role Role) (Role, error)
	GetByID(ctx context.Context, id int64) (Role, error)
	List(ctx context.Context, tenantID *int64, includeTrashed bool) ([]Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	SetActive(ctx context.Context, id int64, active bool) error
	SetDeleted(ctx context.Context, id int64, deletedAt *time.Time, active bool) error
	CountActiveAssignments(ctx context.Context, roleID int64) (int, error)
	DeactivateAssignments(ctx context.Context, roleID int64) (int64, error)
	ListGrants(ctx context.Context, roleID int64) ([]rbac.Permission, error)
	UsersWithRole(ctx context.Context, roleID int64) ([]int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	InsertRole(ctx context.Context, role Role) (Role, error)
	AttachPermission(ctx context.Context, roleID, permissionID, grantedBy int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	CopyGrants(ctx context.Context, fromRoleID, toRoleID, grantedBy int64) error
	DeleteGrants(ctx context.Context, roleID int64) error
	DeleteAssignments(ctx context.Context, roleID int64) (int64, error)
	DeleteRole(ctx context.Context, roleID int64) error
}

// PgRepository provides PostgreSQL backed persistence.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const roleColumns = `id, name, display_name, type, level, tenant_id, is_system, is_active, parent_role_id, metadata, deleted_at, created_at, updated_at`

func (r *PgRepository) Create(ctx context.Context, role Role) (Role, error) {
	meta, err := json.Marshal(role.Metadata)
	if err != nil {
		return Role{}, err
	}
	const query = `
		INSERT INTO roles (name, display_name, type, level, tenant_id, is_system, is_active, parent_role_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
		RETURNING ` + roleColumns
	row := r.pool.QueryRow(ctx, query,
		role.Name, role.DisplayName, role.Type, role.Level, role.TenantID, role.IsSystem, role.ParentRoleID, meta)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, mapRoleError(err, role.Name)
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFoundf("role %d", id)
		}
		return Role{}, err
	}
	return role, nil
}

func (r *PgRepository) List(ctx context.Context, tenantID *int64, includeTrashed bool) ([]Role, error) {
	const query = `
		SELECT ` + roleColumns + ` FROM roles
		WHERE ($1::bigint IS NULL OR tenant_id = $1 OR tenant_id IS NULL)
		  AND ($2 OR deleted_at IS NULL)
		ORDER BY level, name`
	rows, err := r.pool.Query(ctx, query, tenantID, includeTrashed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *PgRepository) Update(ctx context.Context, role Role) (Role, error) {
	meta, err := json.Marshal(role.Metadata)
	if err != nil {
		return Role{}, err
	}
	const query = `
		UPDATE roles
		SET name = $1, display_name = $2, level = $3, parent_role_id = $4, metadata = $5, updated_at = NOW()
		WHERE id = $6 AND deleted_at IS NULL
		RETURNING ` + roleColumns
	row := r.pool.QueryRow(ctx, query,
		role.Name, role.DisplayName, role.Level, role.ParentRoleID, meta, role.ID)
	updated, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFoundf("role %d", role.ID)
		}
		return Role{}, mapRoleError(err, role.Name)
	}
	return updated, nil
}

func (r *PgRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET is_active = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("role %d", id)
	}
	return nil
}

func (r *PgRepository) SetDeleted(ctx context.Context, id int64, deletedAt *time.Time, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET deleted_at = $1, is_active = $2, updated_at = NOW() WHERE id = $3`, deletedAt, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("role %d", id)
	}
	return nil
}

func (r *PgRepository) CountActiveAssignments(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assignments WHERE role_id = $1 AND status = 'ACTIVE' AND deleted_at IS NULL`,
		roleID).Scan(&count)
	return count, err
}

func (r *PgRepository) DeactivateAssignments(ctx context.Context, roleID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assignments SET status = 'INACTIVE', updated_at = NOW() WHERE role_id = $1 AND status = 'ACTIVE'`,
		roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListGrants(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	const query = `
		SELECT p.id, p.name, p.resource, p.action, p.scope, p.is_system, p.category, p.created_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`
	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Scope, &p.IsSystem, &p.Category, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *PgRepository) UsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM assignments WHERE role_id = $1 AND deleted_at IS NULL`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) InsertRole(ctx context.Context, role Role) (Role, error) {
	meta, err := json.Marshal(role.Metadata)
	if err != nil {
		return Role{}, err
	}
	const query = `
		INSERT INTO roles (name, display_name, type, level, tenant_id, is_system, is_active, parent_role_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
		RETURNING ` + roleColumns
	row := r.tx.QueryRow(ctx, query,
		role.Name, role.DisplayName, role.Type, role.Level, role.TenantID, role.IsSystem, role.ParentRoleID, meta)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, mapRoleError(err, role.Name)
	}
	return created, nil
}

func (r *pgTxRepository) AttachPermission(ctx context.Context, roleID, permissionID, grantedBy int64) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionID, grantedBy)
	return err
}

func (r *pgTxRepository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.tx.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

func (r *pgTxRepository) CopyGrants(ctx context.Context, fromRoleID, toRoleID, grantedBy int64) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_by)
		SELECT $1, permission_id, $2 FROM role_permissions WHERE role_id = $3`,
		toRoleID, grantedBy, fromRoleID)
	return err
}

func (r *pgTxRepository) DeleteGrants(ctx context.Context, roleID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	return err
}

func (r *pgTxRepository) DeleteAssignments(ctx context.Context, roleID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM assignments WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgTxRepository) DeleteRole(ctx context.Context, roleID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("role %d", roleID)
	}
	return nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var meta []byte
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Type, &role.Level, &role.TenantID,
		&role.IsSystem, &role.IsActive, &role.ParentRoleID, &meta, &role.DeletedAt, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &role.Metadata)
	}
	return role, nil
}

func mapRoleError(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.Conflictf("role %q already exists in this tenant", name)
	}
	return err
}
