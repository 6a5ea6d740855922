package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type chunkDoc struct {
	DocumentID string    `firestore:"document_id"`
	Index      int       `firestore:"index"`
	Topic      string    `firestore:"topic"`
	Text       string    `firestore:"text"`
	TokenCount int       `firestore:"token_count"`
	Truncated  bool      `firestore:"truncated"`
	Hash       string    `firestore:"hash"`
	CreatedAt  time.Time `firestore:"created_at"`
}

func toChunkDoc(c *model.Chunk) *chunkDoc {
	return &chunkDoc{
		DocumentID: string(c.DocumentID),
		Index:      c.Index,
		Topic:      string(c.Topic),
		Text:       c.Text,
		TokenCount: c.TokenCount,
		Truncated:  c.Truncated,
		Hash:       c.Hash,
		CreatedAt:  c.CreatedAt,
	}
}

func fromChunkDoc(d *chunkDoc) *model.Chunk {
	return &model.Chunk{
		DocumentID: types.DocumentID(d.DocumentID),
		Index:      d.Index,
		Topic:      types.Topic(d.Topic),
		Text:       d.Text,
		TokenCount: d.TokenCount,
		Truncated:  d.Truncated,
		Hash:       d.Hash,
		CreatedAt:  d.CreatedAt,
	}
}

type chunkRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newChunkRepository(client *firestore.Client) *chunkRepository {
	return &chunkRepository{client: client}
}

func (r *chunkRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "chunks")
}

func (r *chunkRepository) PutBatch(ctx context.Context, chunks []*model.Chunk) error {
	bw := r.client.BulkWriter(ctx)

	now := time.Now().UTC()
	for _, c := range chunks {
		stored := *c
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		docRef := r.collection().Doc(stored.Ref().String())
		if _, err := bw.Set(docRef, toChunkDoc(&stored)); err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue chunk write", goerr.V("ref", stored.Ref().String()))
		}
	}

	bw.End()
	return nil
}

func (r *chunkRepository) Get(ctx context.Context, ref types.ChunkRef) (*model.Chunk, error) {
	snap, err := r.collection().Doc(ref.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "chunk not found", goerr.V("ref", ref.String()))
		}
		return nil, goerr.Wrap(err, "failed to get chunk", goerr.V("ref", ref.String()))
	}

	var d chunkDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal chunk", goerr.V("ref", ref.String()))
	}

	return fromChunkDoc(&d), nil
}

func (r *chunkRepository) ListByDocument(ctx context.Context, id types.DocumentID) ([]*model.Chunk, error) {
	iter := r.collection().
		Where("document_id", "==", string(id)).
		OrderBy("index", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	chunks := make([]*model.Chunk, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate chunks", goerr.V("document_id", id))
		}

		var d chunkDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal chunk")
		}
		chunks = append(chunks, fromChunkDoc(&d))
	}

	return chunks, nil
}

func (r *chunkRepository) Delete(ctx context.Context, ref types.ChunkRef) error {
	docRef := r.collection().Doc(ref.String())
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "chunk not found", goerr.V("ref", ref.String()))
		}
		return goerr.Wrap(err, "failed to get chunk", goerr.V("ref", ref.String()))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete chunk", goerr.V("ref", ref.String()))
	}

	return nil
}

func (r *chunkRepository) DeleteByDocument(ctx context.Context, id types.DocumentID) error {
	iter := r.collection().
		Where("document_id", "==", string(id)).
		Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to iterate chunks for delete", goerr.V("document_id", id))
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue chunk delete", goerr.V("document_id", id))
		}
	}

	bw.End()
	return nil
}

func (r *chunkRepository) CountByTopic(ctx context.Context) (map[types.Topic]int, error) {
	iter := r.collection().Select("topic").Documents(ctx)
	defer iter.Stop()

	result := make(map[types.Topic]int)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate chunks for count")
		}

		var d chunkDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal chunk topic")
		}
		result[types.Topic(d.Topic)]++
	}

	return result, nil
}
