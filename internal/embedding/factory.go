package embedding

import (
	"fmt"

	"github.com/docpipe/docpipe/internal/config"
	"github.com/docpipe/docpipe/internal/embedding/mock"
	"github.com/docpipe/docpipe/internal/embedding/openai"
)

// NewProvider constructs the configured embedding provider. Called once at
// worker startup.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.APIKey, cfg.Model, cfg.Dimension), nil
	case "mock":
		return mock.NewProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: must be one of openai, mock", cfg.Provider)
	}
}
