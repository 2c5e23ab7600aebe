package store

import (
	"context"
	"errors"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("job not found")

// ErrConflict is returned when a compare-and-advance (or a guarded status
// update) finds the job no longer at the expected stage. Duplicate or racing
// completions of the same stage transition surface as this error; callers
// treat it as a successful no-op, never as a failure.
var ErrConflict = errors.New("job stage conflict")

// ListFilter narrows and pages a job listing.
type ListFilter struct {
	Status string // empty means all
	Page   int
	Limit  int
}

// JobStore is the job record access interface. CompareAndAdvance is the
// single serialization point enforcing that exactly one stage owns a job at
// a time; there are no other cross-worker locks.
type JobStore interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter ListFilter) ([]models.Job, int, error)

	// CompareAndAdvance records expected's artifact and transfers ownership
	// to next in one atomic update. It succeeds only if the stored stage
	// still equals expected at write time, otherwise it returns ErrConflict.
	// Advancing to StageDone marks the job succeeded.
	CompareAndAdvance(ctx context.Context, id uuid.UUID, expected, next models.Stage, artifactRef string) error

	// MarkRunning flips the job to running for the given stage. ErrConflict
	// if the job is not pending at that stage.
	MarkRunning(ctx context.Context, id uuid.UUID, stage models.Stage) error

	// RecordRetry stores the attempt count after a transient failure and
	// leaves the job pending at the same stage.
	RecordRetry(ctx context.Context, id uuid.UUID, stage models.Stage, attempt int) error

	// MarkFailed terminally fails the job at the given stage.
	MarkFailed(ctx context.Context, id uuid.UUID, stage models.Stage, errMsg string) error

	// SetPoisoned flags the job for external cancellation; workers skip
	// poisoned jobs before starting work.
	SetPoisoned(ctx context.Context, id uuid.UUID) error
}
