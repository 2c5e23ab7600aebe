// Package index persists embedded chunks into the vector store that serves
// downstream retrieval queries.
package index

import (
	"context"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
)

// Index stores embedded chunks for a job. Upsert must be idempotent: writing
// the same (job, chunk index) pair twice leaves a single row, so a replayed
// vectorize stage never duplicates entries.
type Index interface {
	Upsert(ctx context.Context, jobID uuid.UUID, chunks []models.EmbeddedChunk) error
	Count(ctx context.Context, jobID uuid.UUID) (int, error)
}
