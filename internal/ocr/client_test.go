package ocr_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docpipe/docpipe/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("%PDF-fake"), body)

		json.NewEncoder(w).Encode(ocr.ExtractResult{Text: "hello world", Pages: 3, Confidence: 0.97})
	}))
	defer srv.Close()

	client := ocr.NewHTTPClient(srv.URL, 5*time.Second)
	result, err := client.Extract(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
	assert.Equal(t, 3, result.Pages)
	assert.InDelta(t, 0.97, result.Confidence, 0.001)
}

func TestExtract_UnsupportedDocument(t *testing.T) {
	for _, status := range []int{http.StatusUnprocessableEntity, http.StatusUnsupportedMediaType} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := ocr.NewHTTPClient(srv.URL, 5*time.Second)
		_, err := client.Extract(context.Background(), []byte("junk"))
		assert.ErrorIs(t, err, ocr.ErrUnsupportedDocument, "status %d", status)

		srv.Close()
	}
}

func TestExtract_ServerErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := ocr.NewHTTPClient(srv.URL, 5*time.Second)
	_, err := client.Extract(context.Background(), []byte("doc"))
	assert.ErrorIs(t, err, ocr.ErrUnreachable)
}

func TestExtract_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := ocr.NewHTTPClient(srv.URL, 20*time.Millisecond)
	_, err := client.Extract(context.Background(), []byte("doc"))
	assert.ErrorIs(t, err, ocr.ErrTimeout)
}

func TestExtract_ConnectionRefused(t *testing.T) {
	client := ocr.NewHTTPClient("http://127.0.0.1:1", time.Second)
	_, err := client.Extract(context.Background(), []byte("doc"))
	assert.ErrorIs(t, err, ocr.ErrUnreachable)
}

func TestReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ready", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := ocr.NewHTTPClient(srv.URL, time.Second)
	assert.NoError(t, client.Ready(context.Background()))
}
