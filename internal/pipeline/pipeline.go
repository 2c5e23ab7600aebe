// Package pipeline is the submission-side service: it owns the sequence that
// turns an uploaded document into a pending ingest job. Workers never use
// this package; they only consume what it enqueues.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/docpipe/docpipe/internal/artifact"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
)

// Service submits, inspects, and cancels pipeline jobs.
type Service struct {
	jobs      store.JobStore
	broker    queue.Queue
	artifacts artifact.Store
}

// NewService creates the submission service.
func NewService(jobs store.JobStore, broker queue.Queue, artifacts artifact.Store) *Service {
	return &Service{jobs: jobs, broker: broker, artifacts: artifacts}
}

// Submit stores the uploaded bytes, creates the job record at the ingest
// stage, and enqueues the first task. The upload is persisted before the
// record so the job never points at bytes that do not exist; content
// validation belongs to the ingest worker, not to submission.
func (s *Service) Submit(ctx context.Context, document []byte) (*models.Job, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	jobID := uuid.New()
	ref, err := s.artifacts.Put(ctx, jobID, models.StageUpload, document)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          jobID,
		DocumentRef: ref,
		Stage:       models.StageIngest,
		Status:      models.JobStatusPending,
		Artifacts:   map[models.Stage]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	queueName, _ := models.QueueFor(models.StageIngest)
	if err := s.broker.Enqueue(ctx, queueName, models.NewTask(job.ID, models.StageIngest)); err != nil {
		return nil, fmt.Errorf("enqueueing ingest task: %w", err)
	}

	return job, nil
}

// Get returns the job record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

// List returns a page of jobs plus the unpaged total.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]models.Job, int, error) {
	return s.jobs.ListJobs(ctx, filter)
}

// Poison flags a job so workers skip any of its tasks still in flight. It is
// best-effort cancellation: work already started finishes or fails on its own.
func (s *Service) Poison(ctx context.Context, id uuid.UUID) error {
	return s.jobs.SetPoisoned(ctx, id)
}
