package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian/internal/platform/db"
	"github.com/meridian-hq/meridian/internal/shared"
	"github.com/meridian-hq/meridian/internal/tenancy"
)

// Repository defines user persistence as seen by the service.
type Repository interface {
	Create(ctx context.Context, user User, passwordHash string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	List(ctx context.Context, tc *shared.TenantContext) ([]User, error)
	UpdateProfile(ctx context.Context, id int64, name string) (User, error)
	CountActiveAssignments(ctx context.Context, userID int64) (int, error)
	DeactivateTenantAssignments(ctx context.Context, userID, tenantID int64) (int64, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	SetLifecycle(ctx context.Context, id int64, status Status, deletedAt *time.Time, deletedBy *int64, reason string) error
	DeactivateAssignments(ctx context.Context, userID int64) (int64, error)
	DeactivateSessions(ctx context.Context, userID int64) ([]string, error)
	BumpTokenVersion(ctx context.Context, userID int64) (int64, error)
	DeleteSessions(ctx context.Context, userID int64) (int64, error)
	DeleteAssignments(ctx context.Context, userID int64) (int64, error)
	DeleteUser(ctx context.Context, id int64) error
}

// PgRepository provides PostgreSQL backed persistence.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, email, name, status, home_tenant_id, token_version, deleted_at, deleted_by, deletion_reason, created_at, updated_at`

func (r *PgRepository) Create(ctx context.Context, user User, passwordHash string) (User, error) {
	const query = `
		INSERT INTO users (email, name, status, home_tenant_id, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns
	row := r.pool.QueryRow(ctx, query, user.Email, user.Name, user.Status, user.HomeTenantID, passwordHash)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, shared.Conflictf("email %q already registered", user.Email)
		}
		return User{}, err
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.NotFoundf("user %d", id)
		}
		return User{}, err
	}
	return user, nil
}

func (r *PgRepository) List(ctx context.Context, tc *shared.TenantContext) ([]User, error) {
	conds := []string{`status <> 'DELETED'`}
	var args []any
	conds, args = tenancy.ScopeQuery(tc, "home_tenant_id", conds, args)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY email`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdateProfile(ctx context.Context, id int64, name string) (User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET name = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL RETURNING `+userColumns,
		name, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.NotFoundf("user %d", id)
		}
		return User{}, err
	}
	return user, nil
}

func (r *PgRepository) CountActiveAssignments(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assignments WHERE user_id = $1 AND status = 'ACTIVE' AND deleted_at IS NULL`,
		userID).Scan(&count)
	return count, err
}

func (r *PgRepository) DeactivateTenantAssignments(ctx context.Context, userID, tenantID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assignments SET status = 'INACTIVE', updated_at = NOW() WHERE user_id = $1 AND tenant_id = $2 AND status = 'ACTIVE'`,
		userID, tenantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET status = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("user %d", id)
	}
	return nil
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) SetLifecycle(ctx context.Context, id int64, status Status, deletedAt *time.Time, deletedBy *int64, reason string) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE users
		SET status = $1, deleted_at = $2, deleted_by = $3, deletion_reason = $4, updated_at = NOW()
		WHERE id = $5`,
		status, deletedAt, deletedBy, reason, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("user %d", id)
	}
	return nil
}

func (r *pgTxRepository) DeactivateAssignments(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE assignments SET status = 'INACTIVE', updated_at = NOW() WHERE user_id = $1 AND status = 'ACTIVE'`,
		userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgTxRepository) DeactivateSessions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.tx.Query(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active RETURNING id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgTxRepository) BumpTokenVersion(ctx context.Context, userID int64) (int64, error) {
	var version int64
	err := r.tx.QueryRow(ctx,
		`UPDATE users SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version`,
		userID).Scan(&version)
	return version, err
}

func (r *pgTxRepository) DeleteSessions(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgTxRepository) DeleteAssignments(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM assignments WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgTxRepository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("user %d", id)
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Status, &u.HomeTenantID, &u.TokenVersion,
		&u.DeletedAt, &u.DeletedBy, &u.DeletionReason, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
