package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskMessage is the unit of queue transport: the instruction to run one
// stage for one job. The JSON shape is the broker wire format and is stable
// across versions; unknown fields are ignored on decode.
//
// A task message is idempotent: workers decide from the persisted job state,
// never from the message alone, so redelivered duplicates collapse to no-ops.
type TaskMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	TargetStage   Stage     `json:"target_stage"`
	AttemptNumber int       `json:"attempt_number"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// NewTask builds the first-attempt task for a stage.
func NewTask(jobID uuid.UUID, stage Stage) TaskMessage {
	return TaskMessage{
		JobID:         jobID,
		TargetStage:   stage,
		AttemptNumber: 1,
		EnqueuedAt:    time.Now().UTC(),
	}
}

// Retry returns a copy of the task for the next attempt.
func (t TaskMessage) Retry() TaskMessage {
	return TaskMessage{
		JobID:         t.JobID,
		TargetStage:   t.TargetStage,
		AttemptNumber: t.AttemptNumber + 1,
		EnqueuedAt:    time.Now().UTC(),
	}
}

// EncodeTask serializes a task message for the broker payload.
func EncodeTask(t TaskMessage) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask parses a broker payload and validates the stage identifier.
func DecodeTask(data []byte) (TaskMessage, error) {
	var t TaskMessage
	if err := json.Unmarshal(data, &t); err != nil {
		return TaskMessage{}, fmt.Errorf("decode task message: %w", err)
	}
	if _, err := ParseStage(string(t.TargetStage)); err != nil {
		return TaskMessage{}, fmt.Errorf("decode task message: %w", err)
	}
	if t.JobID == uuid.Nil {
		return TaskMessage{}, fmt.Errorf("decode task message: missing job_id")
	}
	return t, nil
}
