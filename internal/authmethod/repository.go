package authmethod

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists per-user method sets. Upsert replaces the whole set so
// the registry invariant is evaluated over complete sets, never deltas.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Method, error)
	Upsert(ctx context.Context, userID string, methods []Method) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed method repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByUser fetches all methods registered for the user.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Method, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, user_id, method_type, data, created_at, last_used_at
        FROM auth_methods WHERE user_id = $1 ORDER BY created_at`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []Method
	for rows.Next() {
		var (
			id         uuid.UUID
			owner      uuid.UUID
			createdAt  time.Time
			lastUsedAt *time.Time
			m          Method
		)
		if err := rows.Scan(&id, &owner, &m.Type, &m.Data, &createdAt, &lastUsedAt); err != nil {
			return nil, err
		}
		m.ID = id.String()
		m.UserID = owner.String()
		m.CreatedAt = createdAt.UTC()
		m.LastUsedAt = lastUsedAt
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// Upsert replaces the user's method set atomically.
func (r *PostgresRepository) Upsert(ctx context.Context, userID string, methods []Method) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM auth_methods WHERE user_id = $1`, uid); err != nil {
		return err
	}

	for _, m := range methods {
		methodID, err := uuid.Parse(m.ID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO auth_methods (id, user_id, method_type, data, created_at, last_used_at)
            VALUES ($1, $2, $3, $4, $5, $6)`, methodID, uid, m.Type, m.Data, m.CreatedAt.UTC(), m.LastUsedAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
