package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/growthlabs/campaignd/pkg/apperr"
	"github.com/growthlabs/campaignd/pkg/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// CreateUser inserts a user row. Used by the webhook user.created handler,
// inside the same transaction as the webhook ledger insert (spec.md §4.5).
func (s *Store) CreateUser(ctx context.Context, tx *sqlx.Tx, u models.User) (models.User, error) {
	if u.UserID == "" {
		u.UserID = uuid.New().String()
	}
	const q = `
		INSERT INTO users (user_id, email, external_identity_id, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING user_id, email, external_identity_id, created_at, updated_at`
	row := tx.QueryRowxContext(ctx, q, u.UserID, u.Email, u.ExternalIdentityID)
	var out models.User
	if err := row.StructScan(&out); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, apperr.ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return out, nil
}

// FindUserByExternalIDOrEmail looks up a user matching either the external
// identity or the email, for the user.created race-handling path (spec.md
// §4.5: "if a user exists with the given external_id or email, update the
// external_identity_id if it differs and commit").
func (s *Store) FindUserByExternalIDOrEmail(ctx context.Context, tx *sqlx.Tx, externalID, email string) (models.User, error) {
	const q = `
		SELECT user_id, email, external_identity_id, created_at, updated_at
		FROM users WHERE external_identity_id = $1 OR email = $2
		LIMIT 1`
	var out models.User
	err := tx.GetContext(ctx, &out, q, externalID, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user by external id or email: %w", err)
	}
	return out, nil
}

// SetExternalIdentityID updates the external_identity_id on an existing
// user row, used when the webhook-reported ID differs from what's on file.
func (s *Store) SetExternalIdentityID(ctx context.Context, tx *sqlx.Tx, userID, externalID string) error {
	const q = `UPDATE users SET external_identity_id = $2, updated_at = now() WHERE user_id = $1`
	_, err := tx.ExecContext(ctx, q, userID, externalID)
	if err != nil {
		return fmt.Errorf("set external identity id: %w", err)
	}
	return nil
}

// GetUserByExternalIDTx is GetUserByExternalID run inside an existing
// transaction, used by the user.deleted webhook handler to resolve the
// internal user_id before archiving that user's campaigns and deleting the
// row (the campaigns/learning_memories tables key off user_id, not the
// external identity provider's ID).
func (s *Store) GetUserByExternalIDTx(ctx context.Context, tx *sqlx.Tx, externalID string) (models.User, error) {
	const q = `
		SELECT user_id, email, external_identity_id, created_at, updated_at
		FROM users WHERE external_identity_id = $1`
	var out models.User
	err := tx.GetContext(ctx, &out, q, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user by external id: %w", err)
	}
	return out, nil
}

// GetUserByExternalID looks up a user by their external identity provider ID.
func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (models.User, error) {
	const q = `
		SELECT user_id, email, external_identity_id, created_at, updated_at
		FROM users WHERE external_identity_id = $1`
	var out models.User
	err := s.db.GetContext(ctx, &out, q, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user by external id: %w", err)
	}
	return out, nil
}

// GetUser looks up a user by primary key.
func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	const q = `
		SELECT user_id, email, external_identity_id, created_at, updated_at
		FROM users WHERE user_id = $1`
	var out models.User
	err := s.db.GetContext(ctx, &out, q, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return out, nil
}

// UpdateUser applies a user.updated webhook event inside tx.
func (s *Store) UpdateUser(ctx context.Context, tx *sqlx.Tx, externalID string, email string) error {
	const q = `UPDATE users SET email = $2, updated_at = now() WHERE external_identity_id = $1`
	res, err := tx.ExecContext(ctx, q, externalID, email)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteUser applies a user.deleted webhook event inside tx.
func (s *Store) DeleteUser(ctx context.Context, tx *sqlx.Tx, externalID string) error {
	const q = `DELETE FROM users WHERE external_identity_id = $1`
	res, err := tx.ExecContext(ctx, q, externalID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// postgresUniqueViolation is the SQLSTATE code for a unique_violation.
const postgresUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}
