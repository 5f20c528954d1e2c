package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian/internal/shared"
)

// Repository defines credential and session persistence.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id int64) (Account, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, userAgent string) error
	DeactivateSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// PgRepository provides PostgreSQL backed persistence.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const accountColumns = `id, email, password_hash, status, token_version`

func (r *PgRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
	return scanAccount(row)
}

func (r *PgRepository) FindByID(ctx context.Context, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanAccount(row)
}

func (r *PgRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, userAgent string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, expires_at, ip_address, user_agent, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at, is_active = TRUE`,
		id, userID, expiresAt, ip, userAgent)
	return err
}

func (r *PgRepository) DeactivateSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	return err
}

func (r *PgRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Status, &a.TokenVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrInvalidCredentials
	}
	return a, err
}
