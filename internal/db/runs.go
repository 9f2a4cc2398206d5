package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shy020501/Video-Automation/internal/models"
)

func (db *DB) CreateRun(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (id, job, stages, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		run.ID, run.Job, run.Stages, run.Status,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
}

const runColumns = `
	id, job, stages, status, final_video_path, remote_video_id,
	error_message, created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var r models.Run
	err := row.Scan(
		&r.ID, &r.Job, &r.Stages, &r.Status, &r.FinalVideoPath,
		&r.RemoteVideoID, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(ctx context.Context, limit, offset int) ([]models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

func (db *DB) UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) error {
	query := `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := db.ExecContext(ctx, query, status, time.Now(), id)
	return err
}

// SetRunResult marks the run succeeded. The job and stages are recorded too
// since a queued run may not name its job until the dataset picks one.
func (db *DB) SetRunResult(ctx context.Context, id uuid.UUID, job, finalVideoPath, remoteVideoID string) error {
	query := `
		UPDATE runs
		SET status = $1, job = $2, final_video_path = NULLIF($3, ''),
			remote_video_id = NULLIF($4, ''), updated_at = $5
		WHERE id = $6
	`
	_, err := db.ExecContext(ctx, query, models.RunStatusSucceeded, job, finalVideoPath, remoteVideoID, time.Now(), id)
	return err
}

func (db *DB) UpdateRunError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE runs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.RunStatusFailed, errorMessage, time.Now(), id)
	return err
}
