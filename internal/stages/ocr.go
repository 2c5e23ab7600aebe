package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docpipe/docpipe/internal/ocr"
	"github.com/docpipe/docpipe/internal/worker"
	"github.com/docpipe/docpipe/pkg/models"
)

// OCR extracts plain text from the ingested document. Plain-text uploads
// pass through untouched; everything else goes to the extraction service.
type OCR struct {
	extractor ocr.Extractor
}

// NewOCR creates the ocr transformer.
func NewOCR(extractor ocr.Extractor) *OCR {
	return &OCR{extractor: extractor}
}

func (s *OCR) Stage() models.Stage { return models.StageOCR }

func (s *OCR) Transform(ctx context.Context, job *models.Job, input []byte) ([]byte, error) {
	format, err := DetectFormat(input)
	if err != nil {
		return nil, worker.Validation(err)
	}

	var text string
	if format == FormatText {
		text = string(input)
	} else {
		result, err := s.extractor.Extract(ctx, input)
		if err != nil {
			return nil, classifyExtractErr(err)
		}
		text = result.Text
	}

	if strings.TrimSpace(text) == "" {
		return nil, worker.Validation(fmt.Errorf("document contains no extractable text"))
	}
	return []byte(text), nil
}

// classifyExtractErr maps service failures onto the retry taxonomy: a
// rejected document is the document's fault and terminal, an unreachable or
// slow service is the environment's fault and retryable.
func classifyExtractErr(err error) error {
	if errors.Is(err, ocr.ErrUnsupportedDocument) {
		return worker.Validation(err)
	}
	return worker.Transient(err)
}
