package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
)

// Firestore is the durable repository backend. Embedding vectors are
// stored as firestore.Vector32 so FindNearest vector search works.
type Firestore struct {
	client    *firestore.Client
	document  *documentRepository
	chunk     *chunkRepository
	embedding *embeddingRepository
	session   *sessionRepository
	mastery   *masteryRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix namespaces all collections, used by tests to
// isolate runs against a shared project.
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.document.collectionPrefix = prefix
		f.chunk.collectionPrefix = prefix
		f.embedding.collectionPrefix = prefix
		f.session.collectionPrefix = prefix
		f.mastery.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:    client,
		document:  newDocumentRepository(client),
		chunk:     newChunkRepository(client),
		embedding: newEmbeddingRepository(client),
		session:   newSessionRepository(client),
		mastery:   newMasteryRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Document() interfaces.DocumentRepository {
	return f.document
}

func (f *Firestore) Chunk() interfaces.ChunkRepository {
	return f.chunk
}

func (f *Firestore) Embedding() interfaces.EmbeddingRepository {
	return f.embedding
}

func (f *Firestore) Session() interfaces.SessionRepository {
	return f.session
}

func (f *Firestore) Mastery() interfaces.MasteryRepository {
	return f.mastery
}

func (f *Firestore) Close() error {
	return f.client.Close()
}
