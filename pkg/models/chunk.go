package models

// Chunk is one token-bounded slice of a document's extracted text,
// produced by the chunk stage.
type Chunk struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// EmbeddedChunk pairs a chunk with its embedding vector, produced by the
// embed stage and consumed by the vectorize stage.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"vector"`
}

// IndexManifest is the artifact the vectorize stage records: a summary of
// what was written to the vector index.
type IndexManifest struct {
	ChunksIndexed int `json:"chunks_indexed"`
	Dimension     int `json:"dimension"`
}
