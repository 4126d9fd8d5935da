package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewayd-labs/auth-gateway/internal/domain"
)

// AuthEventRepository stores authentication audit entries.
type AuthEventRepository interface {
	Create(ctx context.Context, event *domain.AuthEvent) error
}

type authEventRepository struct {
	pool *pgxpool.Pool
}

// NewAuthEventRepository builds repository.
func NewAuthEventRepository(pool *pgxpool.Pool) AuthEventRepository {
	return &authEventRepository{pool: pool}
}

func (r *authEventRepository) Create(ctx context.Context, event *domain.AuthEvent) error {
	const query = `
        INSERT INTO auth_events (id, event_type, subject, outcome, path, remote_addr, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Type,
		event.Subject,
		event.Outcome,
		event.Path,
		event.RemoteAddr,
		event.OccurredAt,
	)
	return err
}
