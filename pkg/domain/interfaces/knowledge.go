package interfaces

import (
	"context"

	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

// DocumentRepository defines persistence for ingested documents.
type DocumentRepository interface {
	// Put stores a new document version
	Put(ctx context.Context, doc *model.Document) (*model.Document, error)

	// Get retrieves a document by ID
	Get(ctx context.Context, id types.DocumentID) (*model.Document, error)

	// ListBySource retrieves all versions ingested under a source name
	ListBySource(ctx context.Context, sourceName string) ([]*model.Document, error)

	// List retrieves all documents
	List(ctx context.Context) ([]*model.Document, error)

	// MarkSuperseded hides a document version from retrieval
	MarkSuperseded(ctx context.Context, id types.DocumentID) error

	// Delete removes a document. Chunk and embedding cascade is the
	// caller's responsibility (see usecase ingest).
	Delete(ctx context.Context, id types.DocumentID) error
}

// ChunkRepository defines persistence for chunks. Chunks are owned by
// the knowledge-base store and keyed by (document_id, chunk_index).
type ChunkRepository interface {
	// PutBatch stores chunks of one document
	PutBatch(ctx context.Context, chunks []*model.Chunk) error

	// Get retrieves a chunk by its stable ref
	Get(ctx context.Context, ref types.ChunkRef) (*model.Chunk, error)

	// ListByDocument retrieves all chunks of a document ordered by index
	ListByDocument(ctx context.Context, id types.DocumentID) ([]*model.Chunk, error)

	// Delete removes a single chunk
	Delete(ctx context.Context, ref types.ChunkRef) error

	// DeleteByDocument removes all chunks of a document
	DeleteByDocument(ctx context.Context, id types.DocumentID) error

	// CountByTopic returns chunk counts grouped by topic
	CountByTopic(ctx context.Context) (map[types.Topic]int, error)
}

// EmbeddingRepository defines persistence for embedding records.
// Records are weak references to chunks: deleting a chunk cascades
// deletion of its record, never the reverse.
type EmbeddingRepository interface {
	// Put stores or replaces the record for a chunk
	Put(ctx context.Context, rec *model.EmbeddingRecord) (*model.EmbeddingRecord, error)

	// Get retrieves the record for a chunk
	Get(ctx context.Context, ref types.ChunkRef) (*model.EmbeddingRecord, error)

	// FindNearest performs vector similarity search, optionally scoped
	// to a topic. Returned records carry their vectors so the caller
	// can score and order deterministically.
	FindNearest(ctx context.Context, topic types.Topic, vector []float32, limit int) ([]*model.EmbeddingRecord, error)

	// Delete removes the record for a chunk
	Delete(ctx context.Context, ref types.ChunkRef) error

	// DeleteByDocument removes all records of a document
	DeleteByDocument(ctx context.Context, id types.DocumentID) error

	// Count returns the number of stored records
	Count(ctx context.Context) (int, error)
}
