package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docpipe/docpipe/internal/artifact"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/pkg/models"
)

// Transformer is one stage's transformation. Implementations receive the
// prior stage's artifact bytes (or the original upload for ingest) and
// return the new artifact bytes. Failures are classified with Transient or
// Validation; anything else is treated as transient.
type Transformer interface {
	Stage() models.Stage
	Transform(ctx context.Context, job *models.Job, input []byte) ([]byte, error)
}

// Outcome describes what processing one task did to the job.
type Outcome string

const (
	OutcomeAdvanced Outcome = "advanced" // artifact recorded, ownership moved on
	OutcomeNoOp     Outcome = "noop"     // duplicate/stale/poisoned, nothing changed
	OutcomeRetried  Outcome = "retried"  // transient failure, re-enqueued with backoff
	OutcomeFailed   Outcome = "failed"   // terminal failure, job stopped
)

// Result is the outcome of a single worker invocation.
type Result struct {
	Outcome     Outcome
	ArtifactRef string
	Err         error
}

// Worker is the stateless processing loop for one stage: dequeue, process,
// commit, acknowledge. All cross-worker coordination goes through the job
// store's compare-and-swap and the broker; workers share no memory.
type Worker struct {
	stage       models.Stage
	queueName   string
	jobs        store.JobStore
	broker      queue.Queue
	artifacts   artifact.Store
	transform   Transformer
	maxAttempts int
	backoff     Backoff
}

// New builds a worker for the transformer's stage.
func New(jobs store.JobStore, broker queue.Queue, artifacts artifact.Store, t Transformer, maxAttempts int, backoff Backoff) (*Worker, error) {
	stage := t.Stage()
	queueName, ok := models.QueueFor(stage)
	if !ok {
		return nil, fmt.Errorf("no queue mapped for stage %q", stage)
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}
	return &Worker{
		stage:       stage,
		queueName:   queueName,
		jobs:        jobs,
		broker:      broker,
		artifacts:   artifacts,
		transform:   t,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}, nil
}

// Run consumes the stage queue until ctx is cancelled. Tasks are handled
// one at a time; run several Run goroutines (or processes) for parallelism.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.broker.Consume(ctx, w.queueName)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.queueName, err)
	}

	slog.Info("worker started", "stage", w.stage, "queue", w.queueName)
	for d := range deliveries {
		res, ack := w.Process(ctx, d.Task)
		if res.Err != nil && res.Outcome != OutcomeRetried && res.Outcome != OutcomeFailed {
			slog.Error("task processing failed, leaving unacked for redelivery",
				"stage", w.stage, "job_id", d.Task.JobID, "error", res.Err)
		}
		if !ack {
			continue
		}
		if err := d.Ack(ctx); err != nil && ctx.Err() == nil {
			// Failed acks mean a future duplicate delivery; the guards
			// below collapse it to a no-op.
			slog.Error("ack failed", "stage", w.stage, "job_id", d.Task.JobID, "error", err)
		}
	}
	slog.Info("worker stopped", "stage", w.stage, "queue", w.queueName)
	return nil
}

// Process runs one task to a Result and reports whether the delivery should
// be acknowledged. Side effects on success are strictly: one artifact write,
// one job-record update, at most one enqueue — then the ack.
func (w *Worker) Process(ctx context.Context, task models.TaskMessage) (Result, bool) {
	log := slog.With("stage", w.stage, "job_id", task.JobID, "attempt", task.AttemptNumber)

	job, err := w.jobs.GetJob(ctx, task.JobID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("task references unknown job, dropping")
		return Result{Outcome: OutcomeNoOp}, true
	}
	if err != nil {
		return Result{Outcome: OutcomeNoOp, Err: err}, false
	}

	// Idempotence and cancellation guards: decisions come from persisted
	// job state, never from the message alone.
	if job.Poisoned {
		log.Info("job poisoned, skipping")
		return Result{Outcome: OutcomeNoOp}, true
	}
	if job.Terminal() {
		log.Info("job already terminal, dropping duplicate", "job_stage", job.Stage, "job_status", job.Status)
		return Result{Outcome: OutcomeNoOp}, true
	}
	if job.Stage != w.stage {
		return w.noopStale(ctx, log, job, task)
	}

	if err := w.jobs.MarkRunning(ctx, job.ID, w.stage); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("job no longer runnable at this stage, dropping duplicate")
			return Result{Outcome: OutcomeNoOp}, true
		}
		return Result{Outcome: OutcomeNoOp, Err: err}, false
	}

	input, err := w.resolveInput(ctx, job)
	if err != nil {
		return w.fail(ctx, log, job, err)
	}

	output, err := w.transform.Transform(ctx, job, input)
	if err != nil {
		return w.fail(ctx, log, job, err)
	}

	return w.commit(ctx, log, job, output)
}

// noopStale handles duplicate deliveries for a stage the job has moved past.
// If the job sits exactly one stage ahead still pending its first attempt,
// the previous worker may have crashed after advancing the record but before
// enqueuing the next task; re-enqueue it so the hand-off is never lost.
func (w *Worker) noopStale(ctx context.Context, log *slog.Logger, job *models.Job, task models.TaskMessage) (Result, bool) {
	next, _ := models.Next(w.stage)
	if job.Stage == next && next != models.StageDone &&
		job.Status == models.JobStatusPending && job.AttemptCount == 0 {
		if err := w.enqueueStage(ctx, job, next); err != nil {
			return Result{Outcome: OutcomeNoOp, Err: err}, false
		}
		log.Info("resumed hand-off for advanced job", "next_stage", next)
		return Result{Outcome: OutcomeNoOp}, true
	}
	log.Info("job not at this stage, dropping duplicate", "job_stage", job.Stage)
	return Result{Outcome: OutcomeNoOp}, true
}

// resolveInput loads the artifact the stage transforms: the original upload
// for ingest, the prior stage's artifact otherwise.
func (w *Worker) resolveInput(ctx context.Context, job *models.Job) ([]byte, error) {
	ref := job.DocumentRef
	if w.stage != models.StageIngest {
		prev, _ := models.Prev(w.stage)
		var ok bool
		ref, ok = job.Artifacts[prev]
		if !ok {
			return nil, Validation(fmt.Errorf("missing %s artifact for job %s", prev, job.ID))
		}
	}

	data, err := w.artifacts.Get(ctx, ref)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, Validation(fmt.Errorf("artifact %s is gone: %w", ref, err))
	}
	if err != nil {
		return nil, Transient(err)
	}
	return data, nil
}

// fail routes a classified failure: validation errors are terminal, transient
// errors retry with backoff until the attempt limit escalates them.
func (w *Worker) fail(ctx context.Context, log *slog.Logger, job *models.Job, cause error) (Result, bool) {
	if IsValidation(cause) {
		return w.failTerminal(ctx, log, job, cause)
	}

	attempt := job.AttemptCount + 1
	if attempt >= w.maxAttempts {
		return w.failTerminal(ctx, log, job, fmt.Errorf("retry limit reached after %d attempts: %w", attempt, cause))
	}

	if err := w.jobs.RecordRetry(ctx, job.ID, w.stage, attempt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Result{Outcome: OutcomeNoOp}, true
		}
		return Result{Outcome: OutcomeNoOp, Err: err}, false
	}

	delay := w.backoff.Delay(attempt)
	retry := models.TaskMessage{JobID: job.ID, TargetStage: w.stage, AttemptNumber: attempt + 1, EnqueuedAt: time.Now().UTC()}
	if err := w.broker.EnqueueIn(ctx, w.queueName, retry, delay); err != nil {
		// The retry task is lost but the record says pending; the original
		// delivery stays unacked and will redeliver.
		return Result{Outcome: OutcomeRetried, Err: err}, false
	}

	log.Warn("transient failure, retrying", "error", cause, "next_attempt", attempt+1, "delay", delay)
	return Result{Outcome: OutcomeRetried, Err: cause}, true
}

func (w *Worker) failTerminal(ctx context.Context, log *slog.Logger, job *models.Job, cause error) (Result, bool) {
	if err := w.jobs.MarkFailed(ctx, job.ID, w.stage, cause.Error()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Result{Outcome: OutcomeNoOp}, true
		}
		return Result{Outcome: OutcomeNoOp, Err: err}, false
	}
	log.Error("job failed terminally", "error", cause)
	return Result{Outcome: OutcomeFailed, Err: cause}, true
}

// commit persists the stage result and hands the job to the next stage.
func (w *Worker) commit(ctx context.Context, log *slog.Logger, job *models.Job, output []byte) (Result, bool) {
	ref, err := w.artifacts.Put(ctx, job.ID, w.stage, output)
	if err != nil {
		return w.fail(ctx, log, job, Transient(err))
	}

	next, _ := models.Next(w.stage)
	err = w.jobs.CompareAndAdvance(ctx, job.ID, w.stage, next, ref)
	if errors.Is(err, store.ErrConflict) {
		// A racing duplicate completed the transition first; its result
		// stands and this copy vanishes quietly.
		log.Info("stage already completed by another worker")
		return Result{Outcome: OutcomeNoOp}, true
	}
	if err != nil {
		return Result{Outcome: OutcomeNoOp, Err: err}, false
	}

	if next != models.StageDone {
		if err := w.enqueueStage(ctx, job, next); err != nil {
			// Record advanced but hand-off unsent: stay unacked so the
			// redelivered task reaches noopStale and resumes the hand-off.
			return Result{Outcome: OutcomeAdvanced, ArtifactRef: ref, Err: err}, false
		}
	}

	log.Info("stage completed", "artifact_ref", ref, "next_stage", next)
	return Result{Outcome: OutcomeAdvanced, ArtifactRef: ref}, true
}

func (w *Worker) enqueueStage(ctx context.Context, job *models.Job, stage models.Stage) error {
	queueName, ok := models.QueueFor(stage)
	if !ok {
		return fmt.Errorf("no queue mapped for stage %q", stage)
	}
	if err := w.broker.Enqueue(ctx, queueName, models.NewTask(job.ID, stage)); err != nil {
		return fmt.Errorf("enqueue %s task: %w", stage, err)
	}
	return nil
}
