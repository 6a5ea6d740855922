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

// embeddingDoc is the Firestore representation of model.EmbeddingRecord.
// Vector is stored as firestore.Vector32 so that FindNearest works.
type embeddingDoc struct {
	DocumentID   string             `firestore:"document_id"`
	ChunkIndex   int                `firestore:"chunk_index"`
	Topic        string             `firestore:"topic"`
	Hash         string             `firestore:"hash"`
	ModelVersion string             `firestore:"model_version"`
	Vector       firestore.Vector32 `firestore:"vector,omitempty"`
	CreatedAt    time.Time          `firestore:"created_at"`
}

func toEmbeddingDoc(rec *model.EmbeddingRecord) *embeddingDoc {
	doc := &embeddingDoc{
		DocumentID:   string(rec.ChunkRef.DocumentID),
		ChunkIndex:   rec.ChunkRef.Index,
		Topic:        string(rec.Topic),
		Hash:         rec.Hash,
		ModelVersion: rec.ModelVersion,
		CreatedAt:    rec.CreatedAt,
	}
	if len(rec.Vector) > 0 {
		doc.Vector = firestore.Vector32(rec.Vector)
	}
	return doc
}

func fromEmbeddingDoc(d *embeddingDoc) *model.EmbeddingRecord {
	rec := &model.EmbeddingRecord{
		ChunkRef: types.ChunkRef{
			DocumentID: types.DocumentID(d.DocumentID),
			Index:      d.ChunkIndex,
		},
		Topic:        types.Topic(d.Topic),
		Hash:         d.Hash,
		ModelVersion: d.ModelVersion,
		CreatedAt:    d.CreatedAt,
	}
	if len(d.Vector) > 0 {
		rec.Vector = []float32(d.Vector)
	}
	return rec
}

type embeddingRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newEmbeddingRepository(client *firestore.Client) *embeddingRepository {
	return &embeddingRepository{client: client}
}

func (r *embeddingRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "embeddings")
}

func (r *embeddingRepository) Put(ctx context.Context, rec *model.EmbeddingRecord) (*model.EmbeddingRecord, error) {
	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	docRef := r.collection().Doc(stored.ChunkRef.String())
	if _, err := docRef.Set(ctx, toEmbeddingDoc(&stored)); err != nil {
		return nil, goerr.Wrap(err, "failed to put embedding record",
			goerr.V("ref", stored.ChunkRef.String()))
	}

	return &stored, nil
}

func (r *embeddingRepository) Get(ctx context.Context, ref types.ChunkRef) (*model.EmbeddingRecord, error) {
	snap, err := r.collection().Doc(ref.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "embedding record not found", goerr.V("ref", ref.String()))
		}
		return nil, goerr.Wrap(err, "failed to get embedding record", goerr.V("ref", ref.String()))
	}

	var d embeddingDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal embedding record", goerr.V("ref", ref.String()))
	}

	return fromEmbeddingDoc(&d), nil
}

func (r *embeddingRepository) FindNearest(ctx context.Context, topic types.Topic, vector []float32, limit int) ([]*model.EmbeddingRecord, error) {
	query := r.collection().Query
	if topic != "" {
		query = query.Where("topic", "==", string(topic))
	}

	iter := query.
		FindNearest("vector", firestore.Vector32(vector), limit, firestore.DistanceMeasureCosine, nil).
		Documents(ctx)
	defer iter.Stop()

	records := make([]*model.EmbeddingRecord, 0, limit)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to run vector search", goerr.V("topic", topic))
		}

		var d embeddingDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal embedding record")
		}
		records = append(records, fromEmbeddingDoc(&d))
	}

	return records, nil
}

func (r *embeddingRepository) Delete(ctx context.Context, ref types.ChunkRef) error {
	docRef := r.collection().Doc(ref.String())
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "embedding record not found", goerr.V("ref", ref.String()))
		}
		return goerr.Wrap(err, "failed to get embedding record", goerr.V("ref", ref.String()))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete embedding record", goerr.V("ref", ref.String()))
	}

	return nil
}

func (r *embeddingRepository) DeleteByDocument(ctx context.Context, id types.DocumentID) error {
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
			return goerr.Wrap(err, "failed to iterate embedding records for delete", goerr.V("document_id", id))
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue embedding delete", goerr.V("document_id", id))
		}
	}

	bw.End()
	return nil
}

func (r *embeddingRepository) Count(ctx context.Context) (int, error) {
	iter := r.collection().Select().Documents(ctx)
	defer iter.Stop()

	var n int
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count embedding records")
		}
		n++
	}

	return n, nil
}
