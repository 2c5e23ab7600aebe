package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docpipe/docpipe/internal/api"
	"github.com/docpipe/docpipe/internal/api/handler"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs ---

type stubJobService struct {
	jobs     map[uuid.UUID]*models.Job
	poisoned []uuid.UUID
}

func newStubJobService() *stubJobService {
	return &stubJobService{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *stubJobService) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j, nil
}

func (s *stubJobService) List(_ context.Context, filter store.ListFilter) ([]models.Job, int, error) {
	var out []models.Job
	for _, j := range s.jobs {
		if filter.Status == "" || j.Status == filter.Status {
			out = append(out, *j)
		}
	}
	return out, len(out), nil
}

func (s *stubJobService) Poison(_ context.Context, id uuid.UUID) error {
	if _, ok := s.jobs[id]; !ok {
		return store.ErrNotFound
	}
	s.poisoned = append(s.poisoned, id)
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(svc *stubJobService, dbErr, brokerErr error) http.Handler {
	return api.NewRouter(api.Dependencies{
		HealthHandler:   handler.NewHealthHandler(stubPinger{err: dbErr}, stubPinger{err: brokerErr}),
		GetJobHandler:   handler.NewGetJobHandler(svc),
		ListJobsHandler: handler.NewListJobsHandler(svc),
		PoisonHandler:   handler.NewPoisonHandler(svc),
	})
}

func seedJob(svc *stubJobService, status string) *models.Job {
	job := &models.Job{
		ID:        uuid.New(),
		Stage:     models.StageChunk,
		Status:    status,
		Artifacts: map[models.Stage]string{models.StageIngest: "pg://a", models.StageOCR: "pg://b"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	svc.jobs[job.ID] = job
	return job
}

// --- tests ---

func TestHealth_OK(t *testing.T) {
	router := newTestRouter(newStubJobService(), nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHealth_Degraded(t *testing.T) {
	router := newTestRouter(newStubJobService(), errors.New("db down"), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestGetJob(t *testing.T) {
	svc := newStubJobService()
	job := seedJob(svc, models.JobStatusRunning)
	router := newTestRouter(svc, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, job.ID.String(), data["id"])
	assert.Equal(t, "chunk", data["stage"])
	assert.Equal(t, "running", data["status"])

	artifacts := data["artifacts"].(map[string]any)
	assert.Equal(t, "pg://a", artifacts["ingest"])
}

func TestGetJob_NotFound(t *testing.T) {
	router := newTestRouter(newStubJobService(), nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob_BadID(t *testing.T) {
	router := newTestRouter(newStubJobService(), nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs(t *testing.T) {
	svc := newStubJobService()
	seedJob(svc, models.JobStatusPending)
	seedJob(svc, models.JobStatusFailed)
	router := newTestRouter(svc, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=failed", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	data := body["data"].([]any)
	assert.Len(t, data, 1)

	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["total"])
}

func TestListJobs_BadStatus(t *testing.T) {
	router := newTestRouter(newStubJobService(), nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=exploded", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPoisonJob(t *testing.T) {
	svc := newStubJobService()
	job := seedJob(svc, models.JobStatusRunning)
	router := newTestRouter(svc, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/poison", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []uuid.UUID{job.ID}, svc.poisoned)
}

func TestPoisonJob_NotFound(t *testing.T) {
	router := newTestRouter(newStubJobService(), nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/poison", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(newStubJobService(), nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nothing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
