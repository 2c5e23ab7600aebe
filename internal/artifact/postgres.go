package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgScheme = "pg://"

// PostgresStore keeps artifacts in a bytea table. References look like
// pg://<uuid>. Re-putting the same (job, stage) overwrites the content and
// keeps the original reference.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, jobID uuid.UUID, stage models.Stage, data []byte) (string, error) {
	var ref uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO artifacts (ref, job_id, stage, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_id, stage) DO UPDATE SET content = EXCLUDED.content
		 RETURNING ref`,
		uuid.New(), jobID, stage, data, time.Now().UTC(),
	).Scan(&ref)
	if err != nil {
		return "", fmt.Errorf("put artifact %s/%s: %w", jobID, stage, err)
	}
	return pgScheme + ref.String(), nil
}

func (s *PostgresStore) Get(ctx context.Context, ref string) ([]byte, error) {
	raw, ok := strings.CutPrefix(ref, pgScheme)
	if !ok {
		return nil, fmt.Errorf("get artifact: unsupported reference %q", ref)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("get artifact: invalid reference %q: %w", ref, err)
	}

	var content []byte
	err = s.pool.QueryRow(ctx, `SELECT content FROM artifacts WHERE ref = $1`, id).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", ref, err)
	}
	return content, nil
}
