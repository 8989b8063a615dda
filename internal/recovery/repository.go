package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Repository persists recovery requests. Update is compare-and-set on the
// status column.
type Repository interface {
	Create(ctx context.Context, r Request) error
	Load(ctx context.Context, id string) (Request, error)
	Update(ctx context.Context, r Request, expectedStatus string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed recovery repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new recovery request.
func (r *PostgresRepository) Create(ctx context.Context, request Request) error {
	requestID, err := uuid.Parse(request.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(request.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO recovery_requests (id, kind, user_id, current_identifier_hash,
        new_identifier_hash, method, code_hash, attempts, max_attempts, status, expires_at, completed_at,
        created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		requestID, request.Kind, userID, request.CurrentIdentifierHash[:], request.NewIdentifierHash[:],
		request.Method, request.CodeHash, request.Attempts, request.MaxAttempts, request.Status,
		request.ExpiresAt.UTC(), request.CompletedAt, request.CreatedAt.UTC(), request.UpdatedAt.UTC())
	return err
}

// Load fetches a recovery request by identifier.
func (r *PostgresRepository) Load(ctx context.Context, id string) (Request, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, kind, user_id, current_identifier_hash, new_identifier_hash,
        method, code_hash, attempts, max_attempts, status, expires_at, completed_at, created_at, updated_at
        FROM recovery_requests WHERE id = $1`, requestID)

	var (
		rowID       uuid.UUID
		userID      uuid.UUID
		currentHash []byte
		newHash     []byte
		request     Request
	)
	err = row.Scan(&rowID, &request.Kind, &userID, &currentHash, &newHash,
		&request.Method, &request.CodeHash, &request.Attempts, &request.MaxAttempts, &request.Status,
		&request.ExpiresAt, &request.CompletedAt, &request.CreatedAt, &request.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	if len(currentHash) != zk.DigestSize || len(newHash) != zk.DigestSize {
		return Request{}, fmt.Errorf("stored identifier hash has unexpected width")
	}
	request.ID = rowID.String()
	request.UserID = userID.String()
	copy(request.CurrentIdentifierHash[:], currentHash)
	copy(request.NewIdentifierHash[:], newHash)
	request.ExpiresAt = request.ExpiresAt.UTC()
	request.CreatedAt = request.CreatedAt.UTC()
	request.UpdatedAt = request.UpdatedAt.UTC()
	if request.CompletedAt != nil {
		completed := request.CompletedAt.UTC()
		request.CompletedAt = &completed
	}
	return request, nil
}

// Update writes the request back only if the stored status still equals
// expectedStatus.
func (r *PostgresRepository) Update(ctx context.Context, request Request, expectedStatus string) error {
	requestID, err := uuid.Parse(request.ID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE recovery_requests SET attempts = $1, status = $2, completed_at = $3,
        updated_at = $4 WHERE id = $5 AND status = $6`,
		request.Attempts, request.Status, request.CompletedAt, request.UpdatedAt.UTC(), requestID, expectedStatus)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recovery_requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStateConflict
	}
	return nil
}
