package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

type documentRepository struct {
	mu        sync.RWMutex
	documents map[types.DocumentID]*model.Document
}

func newDocumentRepository() *documentRepository {
	return &documentRepository{
		documents: make(map[types.DocumentID]*model.Document),
	}
}

func copyDocument(d *model.Document) *model.Document {
	copied := *d
	return &copied
}

func (r *documentRepository) Put(ctx context.Context, doc *model.Document) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyDocument(doc)
	if created.IngestedAt.IsZero() {
		created.IngestedAt = time.Now().UTC()
	}

	r.documents[created.ID] = created
	return copyDocument(created), nil
}

func (r *documentRepository) Get(ctx context.Context, id types.DocumentID) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "document not found", goerr.V("id", id))
	}

	return copyDocument(doc), nil
}

func (r *documentRepository) ListBySource(ctx context.Context, sourceName string) ([]*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Document
	for _, d := range r.documents {
		if d.SourceName == sourceName {
			result = append(result, copyDocument(d))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})

	return result, nil
}

func (r *documentRepository) List(ctx context.Context) ([]*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Document, 0, len(r.documents))
	for _, d := range r.documents {
		result = append(result, copyDocument(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (r *documentRepository) MarkSuperseded(ctx context.Context, id types.DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.documents[id]
	if !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "document not found", goerr.V("id", id))
	}

	doc.Superseded = true
	return nil
}

func (r *documentRepository) Delete(ctx context.Context, id types.DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.documents[id]; !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "document not found", goerr.V("id", id))
	}

	delete(r.documents, id)
	return nil
}
