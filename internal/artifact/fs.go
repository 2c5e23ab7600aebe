package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
)

const fileScheme = "file://"

// FSStore keeps artifacts on the local filesystem under
// <dir>/<job_id>/<stage>. References look like file://<path>. Suitable for
// single-host deployments; multi-host setups use the Postgres backend.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Put(_ context.Context, jobID uuid.UUID, stage models.Stage, data []byte) (string, error) {
	jobDir := filepath.Join(s.dir, jobID.String())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("put artifact %s/%s: %w", jobID, stage, err)
	}

	path := filepath.Join(jobDir, string(stage))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("put artifact %s/%s: %w", jobID, stage, err)
	}
	// Rename is atomic, so a crash mid-write never leaves a torn artifact
	// behind the final path.
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("put artifact %s/%s: %w", jobID, stage, err)
	}
	return fileScheme + path, nil
}

func (s *FSStore) Get(_ context.Context, ref string) ([]byte, error) {
	path, ok := strings.CutPrefix(ref, fileScheme)
	if !ok {
		return nil, fmt.Errorf("get artifact: unsupported reference %q", ref)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", ref, err)
	}
	return data, nil
}
