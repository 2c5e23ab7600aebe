// Package stages implements the per-stage transformations the pipeline
// workers run: ingest, ocr, chunk, embed, vectorize. Each transformer takes
// the prior stage's artifact bytes and produces the next.
package stages

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/docpipe/docpipe/internal/worker"
	"github.com/docpipe/docpipe/pkg/models"
)

// DocumentFormat is the detected upload format.
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatDocx DocumentFormat = "docx"
	FormatText DocumentFormat = "text"
)

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// Ingest validates the uploaded document: size limit, non-empty, recognizable
// format. The artifact it emits is the upload itself, so every later stage
// reads from pipeline-owned storage rather than the caller's reference.
type Ingest struct {
	maxBytes int
}

// NewIngest creates the ingest transformer with a size cap in megabytes.
func NewIngest(maxFileSizeMB int) *Ingest {
	return &Ingest{maxBytes: maxFileSizeMB * 1024 * 1024}
}

func (s *Ingest) Stage() models.Stage { return models.StageIngest }

func (s *Ingest) Transform(ctx context.Context, job *models.Job, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, worker.Validation(fmt.Errorf("document is empty"))
	}
	if len(input) > s.maxBytes {
		return nil, worker.Validation(fmt.Errorf("document is %d bytes, limit is %d", len(input), s.maxBytes))
	}
	if _, err := DetectFormat(input); err != nil {
		return nil, worker.Validation(err)
	}
	return input, nil
}

// DetectFormat sniffs the document format from magic bytes. Anything that is
// neither PDF, zip-packaged (docx), nor valid UTF-8 text is rejected.
func DetectFormat(data []byte) (DocumentFormat, error) {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return FormatPDF, nil
	case bytes.HasPrefix(data, zipMagic):
		return FormatDocx, nil
	case utf8.Valid(data) && !bytes.ContainsRune(data, 0):
		return FormatText, nil
	default:
		return "", fmt.Errorf("unrecognized document format")
	}
}
