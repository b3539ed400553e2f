package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ScanRun is a paid scan. Restricted re-fetches of the same comments by the
// same user ride on it for free.
type ScanRun struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Digest    string
	Comments  int
	CreatedAt time.Time
}

// CreateScanRun records a paid scan.
func (db *DB) CreateScanRun(ctx context.Context, run ScanRun) (*ScanRun, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO scan_runs (id, user_id, digest, comments)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		run.ID, run.UserID, run.Digest, run.Comments,
	).Scan(&run.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetScanRun returns nil when the run does not exist.
func (db *DB) GetScanRun(ctx context.Context, id uuid.UUID) (*ScanRun, error) {
	var run ScanRun
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, digest, comments, created_at FROM scan_runs WHERE id = $1`,
		id,
	).Scan(&run.ID, &run.UserID, &run.Digest, &run.Comments, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteScanRun removes a run. Deleting a missing run is not an error.
func (db *DB) DeleteScanRun(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM scan_runs WHERE id = $1`, id)
	return err
}
