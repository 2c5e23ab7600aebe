package stages_test

import (
	"context"
	"errors"
	"testing"

	"github.com/docpipe/docpipe/internal/ocr"
	"github.com/docpipe/docpipe/internal/stages"
	"github.com/docpipe/docpipe/internal/worker"
	"github.com/docpipe/docpipe/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	result ocr.ExtractResult
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(context.Context, []byte) (ocr.ExtractResult, error) {
	f.calls++
	return f.result, f.err
}

func TestOCR_PlainTextPassesThrough(t *testing.T) {
	ex := &fakeExtractor{}
	s := stages.NewOCR(ex)

	out, err := s.Transform(context.Background(), &models.Job{}, []byte("already readable text"))
	require.NoError(t, err)
	assert.Equal(t, "already readable text", string(out))
	assert.Zero(t, ex.calls, "plain text must not hit the service")
}

func TestOCR_PDFGoesToService(t *testing.T) {
	ex := &fakeExtractor{result: ocr.ExtractResult{Text: "extracted words", Pages: 2}}
	s := stages.NewOCR(ex)

	out, err := s.Transform(context.Background(), &models.Job{}, []byte("%PDF-1.7 binary"))
	require.NoError(t, err)
	assert.Equal(t, "extracted words", string(out))
	assert.Equal(t, 1, ex.calls)
}

func TestOCR_UnsupportedDocumentIsValidation(t *testing.T) {
	ex := &fakeExtractor{err: ocr.ErrUnsupportedDocument}
	s := stages.NewOCR(ex)

	_, err := s.Transform(context.Background(), &models.Job{}, []byte("%PDF-1.7"))
	require.Error(t, err)
	assert.True(t, worker.IsValidation(err), "rejected documents never retry")
}

func TestOCR_ServiceDownIsTransient(t *testing.T) {
	for _, cause := range []error{ocr.ErrUnreachable, ocr.ErrTimeout, errors.New("weird")} {
		ex := &fakeExtractor{err: cause}
		s := stages.NewOCR(ex)

		_, err := s.Transform(context.Background(), &models.Job{}, []byte("%PDF-1.7"))
		require.Error(t, err)
		assert.False(t, worker.IsValidation(err), "%v should be retryable", cause)
	}
}

func TestOCR_EmptyExtractionIsValidation(t *testing.T) {
	ex := &fakeExtractor{result: ocr.ExtractResult{Text: "  \n "}}
	s := stages.NewOCR(ex)

	_, err := s.Transform(context.Background(), &models.Job{}, []byte("%PDF-1.7"))
	require.Error(t, err)
	assert.True(t, worker.IsValidation(err))
}
