package index

import (
	"context"
	"fmt"
	"time"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex stores chunk embeddings in a pgvector column.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex creates a PostgresIndex backed by the given pool.
func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

// Upsert writes all chunks for the job in a single transaction. Conflicting
// rows from an earlier attempt are overwritten in place.
func (i *PostgresIndex) Upsert(ctx context.Context, jobID uuid.UUID, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to index for job %s", jobID)
	}

	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO chunk_embeddings (job_id, chunk_index, content, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			token_count = EXCLUDED.token_count,
			embedding = EXCLUDED.embedding`

	now := time.Now().UTC()
	for _, chunk := range chunks {
		_, err := tx.Exec(ctx, query,
			jobID, chunk.Index, chunk.Text, chunk.TokenCount,
			pgvector.NewVector(chunk.Vector), now)
		if err != nil {
			return fmt.Errorf("upserting chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Count returns the number of indexed chunks for the job.
func (i *PostgresIndex) Count(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	err := i.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunk_embeddings WHERE job_id = $1`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}
