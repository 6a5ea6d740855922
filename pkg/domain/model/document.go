package model

import (
	"time"

	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

// Document is an ingested curriculum document version. Immutable once
// ingested; re-ingestion of the same source creates a new version and
// supersedes the old one rather than mutating it.
type Document struct {
	ID         types.DocumentID
	SourceName string // Human-readable origin, e.g. the uploaded file name
	Topic      types.Topic
	Text       string // Raw extracted text as delivered by the extraction layer
	Language   string // BCP 47 language tag, best effort
	Version    int    // Monotonic per source; bumped on re-ingestion
	Superseded bool   // Hidden from retrieval once a newer version lands
	IngestedAt time.Time
}

// Chunk is a bounded span of document text used as the retrieval unit.
// Identity is (DocumentID, Index) and is stable across re-ingestion of
// unchanged text.
type Chunk struct {
	DocumentID types.DocumentID
	Index      int
	Topic      types.Topic
	Text       string
	TokenCount int
	Truncated  bool   // Set when a run-on sentence was force-split at the max budget
	Hash       string // Content hash used for re-ingestion diffing
	CreatedAt  time.Time
}

// Ref returns the stable identity of the chunk.
func (c *Chunk) Ref() types.ChunkRef {
	return types.ChunkRef{DocumentID: c.DocumentID, Index: c.Index}
}

// EmbeddingRecord holds the vector for exactly one chunk. A chunk whose
// content hash changed invalidates its record; stale vectors are never
// served.
type EmbeddingRecord struct {
	ChunkRef     types.ChunkRef
	Topic        types.Topic
	Hash         string // Content hash of the chunk the vector was computed from
	ModelVersion string // Embedding model that produced the vector
	Vector       []float32
	CreatedAt    time.Time
}
