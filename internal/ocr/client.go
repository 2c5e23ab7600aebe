// Package ocr talks to the external OCR service. The engine itself is a
// black box: bytes in, extracted text out.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for OCR client failures.
var (
	ErrUnreachable = errors.New("ocr service unreachable")
	ErrTimeout     = errors.New("ocr extraction timeout")

	// ErrUnsupportedDocument means the service rejected the document
	// itself (corrupt, encrypted, unreadable). Not retryable.
	ErrUnsupportedDocument = errors.New("document not extractable")
)

// Extractor is the interface for text extraction.
type Extractor interface {
	Extract(ctx context.Context, document []byte) (ExtractResult, error)
}

// ExtractResult is the service's extraction output.
type ExtractResult struct {
	Text       string  `json:"text"`
	Pages      int     `json:"pages"`
	Confidence float64 `json:"confidence"`
}

// HTTPClient implements Extractor against the OCR service's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new OCR HTTP client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Extract(ctx context.Context, document []byte) (ExtractResult, error) {
	u := c.baseURL + "/v1/extract"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(document))
	if err != nil {
		return ExtractResult{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return ExtractResult{}, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusUnsupportedMediaType:
		return ExtractResult{}, fmt.Errorf("%w: status %d", ErrUnsupportedDocument, resp.StatusCode)
	default:
		return ExtractResult{}, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var result ExtractResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ExtractResult{}, fmt.Errorf("decoding ocr response: %w", err)
	}
	return result, nil
}

// Ready checks service availability.
func (c *HTTPClient) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %s", ErrUnreachable, err)
}
