package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrInsufficientCredits means a deduction would take the balance below zero.
var ErrInsufficientCredits = errors.New("insufficient credits")

// LedgerEntry is one balance change.
type LedgerEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Delta     int
	Reason    string
	ScanRunID *uuid.UUID
	CreatedAt time.Time
}

// GetCreditBalance returns the user's balance.
func (db *DB) GetCreditBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var credits int
	err := db.pool.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	return credits, err
}

// AdjustCredits applies delta to the balance and records it in the ledger
// atomically. A negative delta larger than the balance fails with
// ErrInsufficientCredits and changes nothing.
func (db *DB) AdjustCredits(ctx context.Context, userID uuid.UUID, delta int, reason string, scanRunID *uuid.UUID) (*LedgerEntry, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var balance int
	err = tx.QueryRow(ctx,
		`UPDATE users SET credits = credits + $1
		 WHERE id = $2 AND credits + $1 >= 0
		 RETURNING credits`,
		delta, userID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsufficientCredits
	}
	if err != nil {
		return nil, err
	}

	entry := LedgerEntry{UserID: userID, Delta: delta, Reason: reason, ScanRunID: scanRunID}
	err = tx.QueryRow(ctx,
		`INSERT INTO credit_ledger (user_id, delta, reason, scan_run_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		userID, delta, reason, scanRunID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListLedger returns the user's most recent entries, newest first.
func (db *DB) ListLedger(ctx context.Context, userID uuid.UUID, limit int) ([]LedgerEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, delta, reason, scan_run_id, created_at
		 FROM credit_ledger WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.ScanRunID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
