package models_test

import (
	"testing"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskEncodeDecode(t *testing.T) {
	task := models.NewTask(uuid.New(), models.StageOCR)

	data, err := models.EncodeTask(task)
	require.NoError(t, err)

	got, err := models.DecodeTask(data)
	require.NoError(t, err)
	assert.Equal(t, task.JobID, got.JobID)
	assert.Equal(t, models.StageOCR, got.TargetStage)
	assert.Equal(t, 1, got.AttemptNumber)
}

func TestDecodeTask_Rejections(t *testing.T) {
	_, err := models.DecodeTask([]byte("{not json"))
	assert.Error(t, err)

	_, err = models.DecodeTask([]byte(`{"job_id":"` + uuid.NewString() + `","target_stage":"teleport"}`))
	assert.Error(t, err, "unknown stage must be rejected")

	_, err = models.DecodeTask([]byte(`{"target_stage":"ingest"}`))
	assert.Error(t, err, "missing job_id must be rejected")
}

func TestDecodeTask_IgnoresUnknownFields(t *testing.T) {
	raw := `{"job_id":"` + uuid.NewString() + `","target_stage":"embed","attempt_number":2,"trace_id":"abc"}`

	got, err := models.DecodeTask([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, models.StageEmbed, got.TargetStage)
	assert.Equal(t, 2, got.AttemptNumber)
}

func TestTaskRetry(t *testing.T) {
	task := models.NewTask(uuid.New(), models.StageChunk)
	retry := task.Retry()

	assert.Equal(t, task.JobID, retry.JobID)
	assert.Equal(t, task.TargetStage, retry.TargetStage)
	assert.Equal(t, task.AttemptNumber+1, retry.AttemptNumber)
}

func TestJobTerminal(t *testing.T) {
	j := &models.Job{Stage: models.StageChunk, Status: models.JobStatusPending}
	assert.False(t, j.Terminal())

	j.Status = models.JobStatusFailed
	assert.True(t, j.Terminal())

	j = &models.Job{Stage: models.StageDone, Status: models.JobStatusSucceeded}
	assert.True(t, j.Terminal())
}
