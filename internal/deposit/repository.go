package deposit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Repository persists deposit cycles. Update is compare-and-set on the
// state column so concurrent transitions cannot silently overwrite each
// other.
type Repository interface {
	Create(ctx context.Context, d Deposit) error
	Load(ctx context.Context, id string) (Deposit, error)
	FindActiveByUser(ctx context.Context, userID string) (Deposit, error)
	Update(ctx context.Context, d Deposit, expectedState string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed deposit repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new deposit record.
func (r *PostgresRepository) Create(ctx context.Context, d Deposit) error {
	depositID, err := uuid.Parse(d.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO deposits (id, user_id, user_address, sender_address, commitment, amount,
        tx_hash, state, verification_attempts, last_attempt_at, refund_tx_hash, refunded_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		depositID, userID, d.UserAddress, d.SenderAddress, d.Commitment[:], d.Amount,
		d.TxHash, d.State, d.VerificationAttempts, d.LastAttemptAt, d.RefundTxHash, d.RefundedAt,
		d.CreatedAt.UTC(), d.UpdatedAt.UTC())
	return err
}

// Load fetches a deposit by identifier.
func (r *PostgresRepository) Load(ctx context.Context, id string) (Deposit, error) {
	depositID, err := uuid.Parse(id)
	if err != nil {
		return Deposit{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, user_id, user_address, sender_address, commitment, amount,
        tx_hash, state, verification_attempts, last_attempt_at, refund_tx_hash, refunded_at, created_at, updated_at
        FROM deposits WHERE id = $1`, depositID)
	return scanDeposit(row)
}

// FindActiveByUser returns the user's live cycle, if any. Terminal deposits
// are ignored.
func (r *PostgresRepository) FindActiveByUser(ctx context.Context, userID string) (Deposit, error) {
	ownerID, err := uuid.Parse(userID)
	if err != nil {
		return Deposit{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, user_id, user_address, sender_address, commitment, amount,
        tx_hash, state, verification_attempts, last_attempt_at, refund_tx_hash, refunded_at, created_at, updated_at
        FROM deposits WHERE user_id = $1 AND state NOT IN ($2, $3, $4)
        ORDER BY created_at DESC LIMIT 1`,
		ownerID, StateSignupCompleted, StateRefunded, StateAbandoned)
	return scanDeposit(row)
}

// Update writes the deposit back only if the stored state still equals
// expectedState.
func (r *PostgresRepository) Update(ctx context.Context, d Deposit, expectedState string) error {
	depositID, err := uuid.Parse(d.ID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE deposits SET sender_address = $1, tx_hash = $2, state = $3,
        verification_attempts = $4, last_attempt_at = $5, refund_tx_hash = $6, refunded_at = $7, updated_at = $8
        WHERE id = $9 AND state = $10`,
		d.SenderAddress, d.TxHash, d.State, d.VerificationAttempts, d.LastAttemptAt,
		d.RefundTxHash, d.RefundedAt, d.UpdatedAt.UTC(), depositID, expectedState)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM deposits WHERE id = $1)`, depositID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStateConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row rowScanner) (Deposit, error) {
	var (
		id         uuid.UUID
		userID     uuid.UUID
		commitment []byte
		d          Deposit
	)
	err := row.Scan(&id, &userID, &d.UserAddress, &d.SenderAddress, &commitment, &d.Amount,
		&d.TxHash, &d.State, &d.VerificationAttempts, &d.LastAttemptAt, &d.RefundTxHash, &d.RefundedAt,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deposit{}, ErrNotFound
	}
	if err != nil {
		return Deposit{}, err
	}
	if len(commitment) != zk.DigestSize {
		return Deposit{}, fmt.Errorf("stored commitment has %d bytes", len(commitment))
	}
	d.ID = id.String()
	d.UserID = userID.String()
	copy(d.Commitment[:], commitment)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	d.LastAttemptAt = normalizeTime(d.LastAttemptAt)
	d.RefundedAt = normalizeTime(d.RefundedAt)
	return d, nil
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
