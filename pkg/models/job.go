package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Job represents one document's traversal of the pipeline. A job is created
// at the ingest stage and advances monotonically through the topology until
// it reaches StageDone or its status becomes failed at the owning stage.
//
// Artifacts is append-only: each stage records exactly one artifact reference
// before ownership moves to the next stage. AttemptCount counts processing
// attempts at the current stage and resets to zero on advancement.
type Job struct {
	ID           uuid.UUID        `db:"id"            json:"id"`
	DocumentRef  string           `db:"document_ref"  json:"document_ref"`
	Stage        Stage            `db:"stage"         json:"stage"`
	Status       string           `db:"status"        json:"status"`
	AttemptCount int              `db:"attempt_count" json:"attempt_count"`
	Artifacts    map[Stage]string `db:"artifacts"     json:"artifacts"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	Poisoned     bool             `db:"poisoned"      json:"poisoned"`
	CreatedAt    time.Time        `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at"    json:"updated_at"`
}

// Terminal reports whether the job will never be processed again.
func (j *Job) Terminal() bool {
	return j.Stage == StageDone || j.Status == JobStatusFailed
}
