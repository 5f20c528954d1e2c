package tenancy

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian/internal/platform/db"
	"github.com/meridian-hq/meridian/internal/shared"
)

// Repository defines tenant persistence as seen by the service.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	GetByID(ctx context.Context, id int64) (Tenant, error)
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	CountActiveAssignments(ctx context.Context, tenantID int64) (int, error)

	// SetAssignmentStatusBatch flips up to limit assignments of the tenant
	// from one status to another, committing independently. It returns the
	// number of rows changed; callers loop until zero.
	SetAssignmentStatusBatch(ctx context.Context, tenantID int64, from, to string, limit int) (int, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	SetStatus(ctx context.Context, id int64, status Status, deletedAt *time.Time) error
	DeleteAssignments(ctx context.Context, tenantID int64) (int64, error)
	DeleteRoles(ctx context.Context, tenantID int64) (int64, error)
	DeleteTenant(ctx context.Context, id int64) error
}

// PgRepository provides PostgreSQL backed persistence.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const tenantColumns = `id, slug, name, type, status, tier, deleted_at, created_at, updated_at`

func (r *PgRepository) Create(ctx context.Context, t Tenant) (Tenant, error) {
	const query = `
		INSERT INTO tenants (slug, name, type, status, tier)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + tenantColumns
	row := r.pool.QueryRow(ctx, query, t.Slug, t.Name, t.Type, t.Status, t.Tier)
	created, err := scanTenant(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Tenant{}, shared.Conflictf("tenant slug %q already exists", t.Slug)
		}
		return Tenant{}, err
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, shared.NotFoundf("tenant %d", id)
		}
		return Tenant{}, err
	}
	return t, nil
}

func (r *PgRepository) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, shared.NotFoundf("tenant %q", slug)
		}
		return Tenant{}, err
	}
	return t, nil
}

func (r *PgRepository) List(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE status <> 'DELETED' ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *PgRepository) CountActiveAssignments(ctx context.Context, tenantID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assignments WHERE tenant_id = $1 AND status = 'ACTIVE' AND deleted_at IS NULL`,
		tenantID).Scan(&count)
	return count, err
}

func (r *PgRepository) SetAssignmentStatusBatch(ctx context.Context, tenantID int64, from, to string, limit int) (int, error) {
	// Set-based update per batch instead of per-row loops, so each batch is a
	// single atomic statement.
	const query = `
		UPDATE assignments SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM assignments
			WHERE tenant_id = $2 AND status = $3 AND deleted_at IS NULL
			LIMIT $4
		)`
	tag, err := r.pool.Exec(ctx, query, to, tenantID, from, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) SetStatus(ctx context.Context, id int64, status Status, deletedAt *time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE tenants SET status = $1, deleted_at = $2, updated_at = NOW() WHERE id = $3`,
		status, deletedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("tenant %d", id)
	}
	return nil
}

func (r *pgTxRepository) DeleteAssignments(ctx context.Context, tenantID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM assignments WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgTxRepository) DeleteRoles(ctx context.Context, tenantID int64) (int64, error) {
	if _, err := r.tx.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id IN (SELECT id FROM roles WHERE tenant_id = $1)`,
		tenantID); err != nil {
		return 0, err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM roles WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgTxRepository) DeleteTenant(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("tenant %d", id)
	}
	return nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Type, &t.Status, &t.Tier, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
