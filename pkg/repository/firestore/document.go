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

type documentDoc struct {
	ID         string    `firestore:"id"`
	SourceName string    `firestore:"source_name"`
	Topic      string    `firestore:"topic"`
	Text       string    `firestore:"text"`
	Language   string    `firestore:"language"`
	Version    int       `firestore:"version"`
	Superseded bool      `firestore:"superseded"`
	IngestedAt time.Time `firestore:"ingested_at"`
}

func toDocumentDoc(d *model.Document) *documentDoc {
	return &documentDoc{
		ID:         string(d.ID),
		SourceName: d.SourceName,
		Topic:      string(d.Topic),
		Text:       d.Text,
		Language:   d.Language,
		Version:    d.Version,
		Superseded: d.Superseded,
		IngestedAt: d.IngestedAt,
	}
}

func fromDocumentDoc(d *documentDoc) *model.Document {
	return &model.Document{
		ID:         types.DocumentID(d.ID),
		SourceName: d.SourceName,
		Topic:      types.Topic(d.Topic),
		Text:       d.Text,
		Language:   d.Language,
		Version:    d.Version,
		Superseded: d.Superseded,
		IngestedAt: d.IngestedAt,
	}
}

func snapToDocument(snap *firestore.DocumentSnapshot) (*model.Document, error) {
	var d documentDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return fromDocumentDoc(&d), nil
}

type documentRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newDocumentRepository(client *firestore.Client) *documentRepository {
	return &documentRepository{client: client}
}

func (r *documentRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "documents")
}

func (r *documentRepository) Put(ctx context.Context, doc *model.Document) (*model.Document, error) {
	stored := *doc
	if stored.IngestedAt.IsZero() {
		stored.IngestedAt = time.Now().UTC()
	}

	docRef := r.collection().Doc(string(stored.ID))
	if _, err := docRef.Set(ctx, toDocumentDoc(&stored)); err != nil {
		return nil, goerr.Wrap(err, "failed to put document", goerr.V("id", stored.ID))
	}

	return &stored, nil
}

func (r *documentRepository) Get(ctx context.Context, id types.DocumentID) (*model.Document, error) {
	snap, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "document not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get document", goerr.V("id", id))
	}

	return snapToDocument(snap)
}

func (r *documentRepository) ListBySource(ctx context.Context, sourceName string) ([]*model.Document, error) {
	iter := r.collection().
		Where("source_name", "==", sourceName).
		OrderBy("version", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	return collectDocuments(iter)
}

func (r *documentRepository) List(ctx context.Context) ([]*model.Document, error) {
	iter := r.collection().OrderBy("id", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	return collectDocuments(iter)
}

func collectDocuments(iter *firestore.DocumentIterator) ([]*model.Document, error) {
	documents := make([]*model.Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents")
		}

		d, err := snapToDocument(snap)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal document")
		}
		documents = append(documents, d)
	}

	return documents, nil
}

func (r *documentRepository) MarkSuperseded(ctx context.Context, id types.DocumentID) error {
	docRef := r.collection().Doc(string(id))
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "superseded", Value: true},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "document not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to mark document superseded", goerr.V("id", id))
	}

	return nil
}

func (r *documentRepository) Delete(ctx context.Context, id types.DocumentID) error {
	docRef := r.collection().Doc(string(id))
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "document not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to get document", goerr.V("id", id))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete document", goerr.V("id", id))
	}

	return nil
}
