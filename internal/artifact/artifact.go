package artifact

import (
	"context"
	"errors"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("artifact not found")

// Store holds intermediate stage outputs addressed by job and stage.
// References are opaque URIs; stages never assume a particular backend.
//
// Put is deterministic per (job, stage) and overwrite-safe: if a worker
// crashed between the artifact write and the job-record update, the
// redelivered task re-puts the artifact and gets the same reference back,
// so partial writes are absorbed rather than detected as corruption.
type Store interface {
	Put(ctx context.Context, jobID uuid.UUID, stage models.Stage, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}
