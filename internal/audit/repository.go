package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed timeline reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	const query = `
		SELECT occurred_at, actor_id, action, entity, entity_id
		FROM audit_logs
		WHERE occurred_at >= $1 AND occurred_at <= $2
		  AND ($3::bigint = 0 OR actor_id = $3)
		  AND ($4::text = '' OR entity = $4)
		  AND ($5::text = '' OR action = $5)
		ORDER BY occurred_at DESC
		LIMIT $6 OFFSET $7`
	rows, err := r.pool.Query(ctx, query,
		filters.From, filters.To, filters.ActorID, filters.Entity, filters.Action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
