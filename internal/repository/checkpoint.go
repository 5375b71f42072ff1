package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CheckpointRepository stores how far each projector has read the global log.
type CheckpointRepository struct {
	db *sql.DB
}

func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) Load(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx,
		`SELECT global_seq FROM projection_checkpoints WHERE name = $1`, name,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("Load: %w", unavailable(err))
	}
	return seq, nil
}

func (r *CheckpointRepository) Save(ctx context.Context, name string, seq int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projection_checkpoints (name, global_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET global_seq = EXCLUDED.global_seq, updated_at = now()`,
		name, seq,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", unavailable(err))
	}
	return nil
}
