package mock

import (
	"context"
	"hash/fnv"
)

// Provider is a deterministic embedding provider for tests and local runs:
// the vector depends only on the input text, so equal texts always embed to
// equal vectors.
type Provider struct {
	dimension int

	// EmbedFunc overrides the default behavior when set.
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates a mock provider emitting vectors of the given dimension.
func NewProvider(dimension int) *Provider {
	if dimension <= 0 {
		dimension = 8
	}
	return &Provider{dimension: dimension}
}

func (p *Provider) Name() string   { return "mock" }
func (p *Provider) Dimension() int { return p.dimension }

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		h.Write([]byte(text))
		seed := h.Sum32()

		vec := make([]float32, p.dimension)
		for j := range vec {
			seed = seed*1664525 + 1013904223
			vec[j] = float32(seed%2000)/1000 - 1 // [-1, 1)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
