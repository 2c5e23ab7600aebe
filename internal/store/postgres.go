package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the JobStore interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Artifacts == nil {
		job.Artifacts = map[models.Stage]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, document_ref, stage, status, attempt_count, artifacts, poisoned, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.DocumentRef, job.Stage, job.Status, job.AttemptCount,
		job.Artifacts, job.Poisoned, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, document_ref, stage, status, attempt_count, artifacts, error_message, poisoned, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.DocumentRef, &j.Stage, &j.Status, &j.AttemptCount,
		&j.Artifacts, &j.ErrorMessage, &j.Poisoned, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// ListJobs returns a page of jobs, newest first, plus the unpaged total.
func (s *PostgresStore) ListJobs(ctx context.Context, filter ListFilter) ([]models.Job, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	where := ""
	args := []any{limit, offset}
	if filter.Status != "" {
		where = "WHERE status = $3"
		args = append(args, filter.Status)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, document_ref, stage, status, attempt_count, artifacts, error_message, poisoned, created_at, updated_at
		 FROM jobs %s ORDER BY created_at DESC LIMIT $1 OFFSET $2`, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.DocumentRef, &j.Stage, &j.Status, &j.AttemptCount,
			&j.Artifacts, &j.ErrorMessage, &j.Poisoned, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM jobs`
	countArgs := []any{}
	if filter.Status != "" {
		countQuery += ` WHERE status = $1`
		countArgs = append(countArgs, filter.Status)
	}
	if err := s.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	return jobs, total, nil
}

// CompareAndAdvance appends the stage artifact and moves ownership to the
// next stage in one guarded UPDATE. The WHERE clause on the current stage is
// the compare-and-swap: of two redelivered copies racing to complete the
// same transition, exactly one matches a row.
func (s *PostgresStore) CompareAndAdvance(ctx context.Context, id uuid.UUID, expected, next models.Stage, artifactRef string) error {
	status := models.JobStatusPending
	if next == models.StageDone {
		status = models.JobStatusSucceeded
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET stage = $3,
		     status = $4,
		     attempt_count = 0,
		     artifacts = artifacts || jsonb_build_object($2::text, $5::text),
		     error_message = NULL,
		     updated_at = $6
		 WHERE id = $1 AND stage = $2 AND status <> 'failed'`,
		id, expected, next, status, artifactRef, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("compare and advance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (s *PostgresStore) MarkRunning(ctx context.Context, id uuid.UUID, stage models.Stage) error {
	// Redelivery after a crash finds the job still marked running, so the
	// guard admits both pending and running at the owning stage.
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $3, updated_at = $4
		 WHERE id = $1 AND stage = $2 AND status IN ('pending', 'running')`,
		id, stage, models.JobStatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (s *PostgresStore) RecordRetry(ctx context.Context, id uuid.UUID, stage models.Stage, attempt int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $4, attempt_count = $3, updated_at = $5
		 WHERE id = $1 AND stage = $2 AND status <> 'failed'`,
		id, stage, attempt, models.JobStatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, stage models.Stage, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $3, error_message = $4, updated_at = $5
		 WHERE id = $1 AND stage = $2`,
		id, stage, models.JobStatusFailed, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (s *PostgresStore) SetPoisoned(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET poisoned = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set poisoned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// conflictOrNotFound distinguishes a lost compare-and-swap from a missing
// row so callers can tell a benign duplicate from a real error.
func (s *PostgresStore) conflictOrNotFound(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
