package embedding

import (
	"context"
	"errors"
)

var (
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrInvalidResponse     = errors.New("embedding provider returned invalid response")
)

// Provider generates embedding vectors for text. The model is a black box:
// text in, fixed-dimension vectors out, one per input in order.
type Provider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
