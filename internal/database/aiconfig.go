package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kamilpajak/commentguard/pkg/models"
)

// AIConfiguration is an admin-managed set of provider/model/prompt choices.
// At most one row is active at a time.
type AIConfiguration struct {
	ID          uuid.UUID
	Name        string
	Active      bool
	ScanA       models.ScannerConfig
	ScanB       models.ScannerConfig
	Adjudicator models.AdjudicatorConfig
	PostProcess models.PostProcessConfig
	DefaultMode models.Mode
	CreatedAt   time.Time
}

// CreateAIConfiguration stores cfg. If cfg.Active is set, it replaces the
// currently active configuration.
func (db *DB) CreateAIConfiguration(ctx context.Context, cfg AIConfiguration) (*AIConfiguration, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if cfg.Active {
		if _, err := tx.Exec(ctx, `UPDATE ai_configurations SET active = false WHERE active`); err != nil {
			return nil, err
		}
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = models.ModeRedact
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO ai_configurations (name, active, scan_a, scan_b, adjudicator, post_process, default_mode)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		cfg.Name, cfg.Active, cfg.ScanA, cfg.ScanB, cfg.Adjudicator, cfg.PostProcess, cfg.DefaultMode,
	).Scan(&cfg.ID, &cfg.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetActiveAIConfiguration returns nil when nothing is active.
func (db *DB) GetActiveAIConfiguration(ctx context.Context) (*AIConfiguration, error) {
	var cfg AIConfiguration
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, active, scan_a, scan_b, adjudicator, post_process, default_mode, created_at
		 FROM ai_configurations WHERE active`,
	).Scan(&cfg.ID, &cfg.Name, &cfg.Active, &cfg.ScanA, &cfg.ScanB, &cfg.Adjudicator, &cfg.PostProcess, &cfg.DefaultMode, &cfg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeleteAIConfiguration deletes a configuration by ID.
func (db *DB) DeleteAIConfiguration(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM ai_configurations WHERE id = $1`, id)
	return err
}
