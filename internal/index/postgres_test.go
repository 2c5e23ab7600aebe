package index_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docpipe/docpipe/internal/index"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("docpipe_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pgContainer.Terminate(ctx)) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func embedded(n, dim int) []models.EmbeddedChunk {
	chunks := make([]models.EmbeddedChunk, n)
	for i := range chunks {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(i) + float32(j)/10
		}
		chunks[i] = models.EmbeddedChunk{
			Chunk:  models.Chunk{Index: i, Text: "chunk text", TokenCount: 2},
			Vector: vec,
		}
	}
	return chunks
}

func TestPostgresIndex_UpsertAndCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	idx := index.NewPostgresIndex(setupTestDB(t))
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, idx.Upsert(ctx, jobID, embedded(3, 1536)))

	n, err := idx.Count(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPostgresIndex_UpsertIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	idx := index.NewPostgresIndex(setupTestDB(t))
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, idx.Upsert(ctx, jobID, embedded(3, 1536)))
	// A replayed vectorize stage writes the same rows again.
	require.NoError(t, idx.Upsert(ctx, jobID, embedded(3, 1536)))

	n, err := idx.Count(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "replay must not duplicate rows")
}

func TestPostgresIndex_JobsKeptSeparate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	idx := index.NewPostgresIndex(setupTestDB(t))
	ctx := context.Background()
	jobA, jobB := uuid.New(), uuid.New()

	require.NoError(t, idx.Upsert(ctx, jobA, embedded(2, 1536)))
	require.NoError(t, idx.Upsert(ctx, jobB, embedded(5, 1536)))

	n, err := idx.Count(ctx, jobA)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = idx.Count(ctx, jobB)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestPostgresIndex_RejectsEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	idx := index.NewPostgresIndex(setupTestDB(t))

	assert.Error(t, idx.Upsert(context.Background(), uuid.New(), nil))
}
