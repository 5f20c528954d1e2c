package assignments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian/internal/platform/db"
	"github.com/meridian-hq/meridian/internal/shared"
)

// Repository defines assignment persistence as seen by the service.
type Repository interface {
	GetByID(ctx context.Context, id int64) (Assignment, error)
	ListForUser(ctx context.Context, userID int64) ([]Assignment, error)
	ListForTenant(ctx context.Context, tenantID int64, p shared.Pagination) ([]Assignment, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	ActiveTenantIDs(ctx context.Context, userID int64) ([]int64, error)
	PrimaryTenantID(ctx context.Context, userID int64) (int64, bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations that must share one transaction. Primary
// demotion and promotion run together so the one-primary invariant holds under
// concurrent requests.
type TxRepository interface {
	Insert(ctx context.Context, a Assignment) (Assignment, error)
	HasActiveDuplicate(ctx context.Context, userID int64, tenantID *int64, roleID int64) (bool, error)
	GetByID(ctx context.Context, id int64) (Assignment, error)
	ClearPrimary(ctx context.Context, userID int64) error
	SetPrimary(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error
}

// PgRepository provides PostgreSQL backed persistence. It also serves as the
// membership source for the tenant isolation filter.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const assignmentColumns = `id, user_id, tenant_id, role_id, status, is_primary, assigned_by, assigned_at, deleted_at, created_at, updated_at`

func (r *PgRepository) GetByID(ctx context.Context, id int64) (Assignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	return scanAssignment(row, id)
}

func (r *PgRepository) ListForUser(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE user_id = $1 AND deleted_at IS NULL
		 ORDER BY assigned_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func (r *PgRepository) ListForTenant(ctx context.Context, tenantID int64, p shared.Pagination) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE tenant_id = $1 AND deleted_at IS NULL
		 ORDER BY assigned_at DESC
		 LIMIT $2 OFFSET $3`, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func (r *PgRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assignments SET status = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`,
		status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("assignment %d", id)
	}
	return nil
}

// ActiveTenantIDs returns the tenants where the user holds at least one ACTIVE
// assignment.
func (r *PgRepository) ActiveTenantIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT tenant_id FROM assignments
		 WHERE user_id = $1 AND tenant_id IS NOT NULL AND status = 'ACTIVE' AND deleted_at IS NULL`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PrimaryTenantID returns the tenant of the user's primary ACTIVE assignment.
func (r *PgRepository) PrimaryTenantID(ctx context.Context, userID int64) (int64, bool, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id FROM assignments
		 WHERE user_id = $1 AND is_primary AND tenant_id IS NOT NULL AND status = 'ACTIVE' AND deleted_at IS NULL`,
		userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) Insert(ctx context.Context, a Assignment) (Assignment, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO assignments (user_id, tenant_id, role_id, status, is_primary, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+assignmentColumns,
		a.UserID, a.TenantID, a.RoleID, a.Status, a.IsPrimary, a.AssignedBy)
	created, err := scanAssignment(row, 0)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Assignment{}, shared.Conflictf("user %d already holds role %d in this tenant", a.UserID, a.RoleID)
		}
		return Assignment{}, err
	}
	return created, nil
}

func (r *pgTxRepository) HasActiveDuplicate(ctx context.Context, userID int64, tenantID *int64, roleID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assignments
			WHERE user_id = $1 AND tenant_id IS NOT DISTINCT FROM $2 AND role_id = $3
			  AND status = 'ACTIVE' AND deleted_at IS NULL
		)`, userID, tenantID, roleID).Scan(&exists)
	return exists, err
}

func (r *pgTxRepository) GetByID(ctx context.Context, id int64) (Assignment, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id)
	return scanAssignment(row, id)
}

func (r *pgTxRepository) ClearPrimary(ctx context.Context, userID int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE assignments SET is_primary = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_primary`,
		userID)
	return err
}

func (r *pgTxRepository) SetPrimary(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE assignments SET is_primary = TRUE, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("assignment %d", id)
	}
	return nil
}

func (r *pgTxRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE assignments
		SET status = 'INACTIVE', is_primary = FALSE, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("assignment %d", id)
	}
	return nil
}

func scanAssignment(row pgx.Row, id int64) (Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.UserID, &a.TenantID, &a.RoleID, &a.Status, &a.IsPrimary,
		&a.AssignedBy, &a.AssignedAt, &a.DeletedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, shared.NotFoundf("assignment %d", id)
	}
	return a, err
}

func collectAssignments(rows pgx.Rows) ([]Assignment, error) {
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.TenantID, &a.RoleID, &a.Status, &a.IsPrimary,
			&a.AssignedBy, &a.AssignedAt, &a.DeletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
