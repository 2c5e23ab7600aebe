package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docpipe/docpipe/internal/embedding"
	"github.com/docpipe/docpipe/internal/worker"
	"github.com/docpipe/docpipe/pkg/models"
)

// Embed turns the chunk list into embedded chunks by calling the configured
// provider in batches. Output is a JSON array pairing each chunk with its
// vector.
type Embed struct {
	provider  embedding.Provider
	batchSize int
}

// NewEmbed creates the embed transformer.
func NewEmbed(provider embedding.Provider, batchSize int) *Embed {
	if batchSize < 1 {
		batchSize = 64
	}
	return &Embed{provider: provider, batchSize: batchSize}
}

func (s *Embed) Stage() models.Stage { return models.StageEmbed }

func (s *Embed) Transform(ctx context.Context, job *models.Job, input []byte) ([]byte, error) {
	var chunks []models.Chunk
	if err := json.Unmarshal(input, &chunks); err != nil {
		return nil, worker.Validation(fmt.Errorf("decoding chunk artifact: %w", err))
	}
	if len(chunks) == 0 {
		return nil, worker.Validation(fmt.Errorf("chunk artifact is empty"))
	}

	embedded := make([]models.EmbeddedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		// Provider failures are the environment's fault until proven
		// otherwise; retry with backoff.
		vectors, err := s.provider.Embed(ctx, texts)
		if err != nil {
			return nil, worker.Transient(fmt.Errorf("embedding batch at chunk %d: %w", start, err))
		}
		if len(vectors) != len(batch) {
			return nil, worker.Transient(fmt.Errorf("provider returned %d vectors for %d chunks", len(vectors), len(batch)))
		}

		for i, c := range batch {
			embedded = append(embedded, models.EmbeddedChunk{Chunk: c, Vector: vectors[i]})
		}
	}

	out, err := json.Marshal(embedded)
	if err != nil {
		return nil, fmt.Errorf("encoding embedded chunks: %w", err)
	}
	return out, nil
}
