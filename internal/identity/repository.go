package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByPhoneDigest(ctx context.Context, digest zk.Digest) (User, error)
	UpdateFactors(ctx context.Context, user User) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, address, phone_digest, biometric_digest, passkey_digest,
        commitment, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, user.Address, user.PhoneDigest[:], user.BiometricDigest[:], user.PasskeyDigest[:],
		user.Commitment[:], user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, address, phone_digest, biometric_digest, passkey_digest,
        commitment, created_at, updated_at FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// FindByPhoneDigest fetches a user by the digest of their phone identifier.
func (r *PostgresRepository) FindByPhoneDigest(ctx context.Context, digest zk.Digest) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, address, phone_digest, biometric_digest, passkey_digest,
        commitment, created_at, updated_at FROM users WHERE phone_digest = $1`, digest[:])
	return scanUser(row)
}

// UpdateFactors rewrites the user's digest set and commitment.
func (r *PostgresRepository) UpdateFactors(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET phone_digest = $1, biometric_digest = $2, passkey_digest = $3,
        commitment = $4, updated_at = $5 WHERE id = $6`,
		user.PhoneDigest[:], user.BiometricDigest[:], user.PasskeyDigest[:], user.Commitment[:],
		user.UpdatedAt.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id              uuid.UUID
		phoneDigest     []byte
		biometricDigest []byte
		passkeyDigest   []byte
		commitment      []byte
		user            User
	)
	err := row.Scan(&id, &user.Address, &phoneDigest, &biometricDigest, &passkeyDigest,
		&commitment, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if len(phoneDigest) != zk.DigestSize || len(biometricDigest) != zk.DigestSize ||
		len(passkeyDigest) != zk.DigestSize || len(commitment) != zk.DigestSize {
		return User{}, fmt.Errorf("stored digest has unexpected width")
	}
	user.ID = id.String()
	copy(user.PhoneDigest[:], phoneDigest)
	copy(user.BiometricDigest[:], biometricDigest)
	copy(user.PasskeyDigest[:], passkeyDigest)
	copy(user.Commitment[:], commitment)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}
