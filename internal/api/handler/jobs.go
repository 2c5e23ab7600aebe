package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/docpipe/docpipe/internal/api/response"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// JobService defines the interface the job handlers depend on. Submission is
// not here: documents enter the pipeline through the ops CLI, and the HTTP
// surface is read-mostly operator tooling.
type JobService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, filter store.ListFilter) ([]models.Job, int, error)
	Poison(ctx context.Context, id uuid.UUID) error
}

// jobResponse is the wire shape of a job record.
type jobResponse struct {
	ID           uuid.UUID         `json:"id"`
	Stage        models.Stage      `json:"stage"`
	Status       string            `json:"status"`
	AttemptCount int               `json:"attempt_count"`
	Artifacts    map[string]string `json:"artifacts"`
	Error        *string           `json:"error,omitempty"`
	Poisoned     bool              `json:"poisoned"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
}

func toJobResponse(j *models.Job) jobResponse {
	artifacts := make(map[string]string, len(j.Artifacts))
	for stage, ref := range j.Artifacts {
		artifacts[string(stage)] = ref
	}
	return jobResponse{
		ID:           j.ID,
		Stage:        j.Stage,
		Status:       j.Status,
		AttemptCount: j.AttemptCount,
		Artifacts:    artifacts,
		Error:        j.ErrorMessage,
		Poisoned:     j.Poisoned,
		CreatedAt:    j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    j.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		job, err := svc.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No job with that ID", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, toJobResponse(job))
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.ListFilter{
			Status: r.URL.Query().Get("status"),
			Page:   queryInt(r, "page", 1),
			Limit:  queryInt(r, "limit", 20),
		}

		switch filter.Status {
		case "", models.JobStatusPending, models.JobStatusRunning, models.JobStatusSucceeded, models.JobStatusFailed:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of pending, running, succeeded, failed", nil)
			return
		}

		jobs, total, err := svc.List(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		items := make([]jobResponse, 0, len(jobs))
		for i := range jobs {
			items = append(items, toJobResponse(&jobs[i]))
		}

		response.Collection(w, items, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// NewPoisonHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/poison.
func NewPoisonHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		err = svc.Poison(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No job with that ID", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, map[string]any{"id": id, "poisoned": true})
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return defaultVal
	}
	return n
}
