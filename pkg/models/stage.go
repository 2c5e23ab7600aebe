package models

import "fmt"

// Stage is one discrete transformation step in the document pipeline.
// A Job's Stage field holds the stage that currently owns the job;
// ownership transfers atomically via the store's CompareAndAdvance.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageOCR       Stage = "ocr"
	StageChunk     Stage = "chunk"
	StageEmbed     Stage = "embed"
	StageVectorize Stage = "vectorize"

	// StageDone marks a job that has traversed the whole pipeline.
	StageDone Stage = "done"

	// StageUpload is not a worker stage: it keys the original uploaded
	// bytes in the artifact store before the ingest stage runs.
	StageUpload Stage = "upload"
)

// Topology is the fixed linear stage order. New stages insert here and in
// the queue map below without touching worker internals.
var Topology = []Stage{StageIngest, StageOCR, StageChunk, StageEmbed, StageVectorize}

var nextStage = map[Stage]Stage{
	StageIngest:    StageOCR,
	StageOCR:       StageChunk,
	StageChunk:     StageEmbed,
	StageEmbed:     StageVectorize,
	StageVectorize: StageDone,
}

// Queue names match the launcher configuration: embed publishes to
// "embeddings" and vectorize to "vectors".
var stageQueues = map[Stage]string{
	StageIngest:    "ingest",
	StageOCR:       "ocr",
	StageChunk:     "chunk",
	StageEmbed:     "embeddings",
	StageVectorize: "vectors",
}

// Next returns the stage that follows s in the pipeline topology.
// The stage after the terminal worker stage is StageDone.
func Next(s Stage) (Stage, bool) {
	n, ok := nextStage[s]
	return n, ok
}

// Prev returns the stage preceding s, or false for the first stage.
func Prev(s Stage) (Stage, bool) {
	for st, n := range nextStage {
		if n == s {
			return st, true
		}
	}
	return "", false
}

// QueueFor returns the broker queue name a stage's tasks are published to.
func QueueFor(s Stage) (string, bool) {
	q, ok := stageQueues[s]
	return q, ok
}

// StageForQueue is the inverse of QueueFor; workers use it to resolve the
// stage they serve from the queue name they are bound to.
func StageForQueue(queue string) (Stage, bool) {
	for s, q := range stageQueues {
		if q == queue {
			return s, true
		}
	}
	return "", false
}

// QueueNames returns all broker queue names in topology order.
func QueueNames() []string {
	names := make([]string, 0, len(Topology))
	for _, s := range Topology {
		names = append(names, stageQueues[s])
	}
	return names
}

// ParseStage validates a stage identifier received from the wire.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageIngest, StageOCR, StageChunk, StageEmbed, StageVectorize, StageDone:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}
