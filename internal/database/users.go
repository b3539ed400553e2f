package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// User is an account identified by its Kinde subject.
type User struct {
	ID        uuid.UUID
	KindeID   string
	Email     string
	Credits   int
	CreatedAt time.Time
}

const userColumns = `id, kinde_id, email, credits, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.KindeID, &u.Email, &u.Credits, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser creates a user with an opening credit balance.
func (db *DB) CreateUser(ctx context.Context, kindeID, email string, credits int) (*User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (kinde_id, email, credits)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		kindeID, email, credits,
	))
}

// GetUserByKindeID returns nil when no user matches.
func (db *DB) GetUserByKindeID(ctx context.Context, kindeID string) (*User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE kinde_id = $1`,
		kindeID,
	))
}

// GetUserByID returns nil when no user matches.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
}

// GetOrCreateUser returns the user for kindeID, creating it with
// initialCredits on first sight. Concurrent first requests converge on one row.
func (db *DB) GetOrCreateUser(ctx context.Context, kindeID, email string, initialCredits int) (*User, error) {
	user, err := scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (kinde_id, email, credits)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (kinde_id) DO NOTHING
		 RETURNING `+userColumns,
		kindeID, email, initialCredits,
	))
	if err != nil || user != nil {
		return user, err
	}
	return db.GetUserByKindeID(ctx, kindeID)
}

// DeleteUser deletes a user and their ledger.
func (db *DB) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}
