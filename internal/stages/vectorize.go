package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docpipe/docpipe/internal/index"
	"github.com/docpipe/docpipe/internal/worker"
	"github.com/docpipe/docpipe/pkg/models"
)

// Vectorize writes the embedded chunks into the vector index and emits a
// manifest describing what was indexed. The index upsert is idempotent, so
// replaying this stage rewrites the same rows instead of duplicating them.
type Vectorize struct {
	index index.Index
}

// NewVectorize creates the vectorize transformer.
func NewVectorize(idx index.Index) *Vectorize {
	return &Vectorize{index: idx}
}

func (s *Vectorize) Stage() models.Stage { return models.StageVectorize }

func (s *Vectorize) Transform(ctx context.Context, job *models.Job, input []byte) ([]byte, error) {
	var embedded []models.EmbeddedChunk
	if err := json.Unmarshal(input, &embedded); err != nil {
		return nil, worker.Validation(fmt.Errorf("decoding embedded chunk artifact: %w", err))
	}
	if len(embedded) == 0 {
		return nil, worker.Validation(fmt.Errorf("embedded chunk artifact is empty"))
	}

	dimension := len(embedded[0].Vector)
	for _, c := range embedded {
		if len(c.Vector) != dimension {
			return nil, worker.Validation(fmt.Errorf("chunk %d has dimension %d, expected %d", c.Index, len(c.Vector), dimension))
		}
	}

	if err := s.index.Upsert(ctx, job.ID, embedded); err != nil {
		return nil, worker.Transient(fmt.Errorf("writing vector index: %w", err))
	}

	manifest := models.IndexManifest{
		ChunksIndexed: len(embedded),
		Dimension:     dimension,
	}
	out, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding index manifest: %w", err)
	}
	return out, nil
}
