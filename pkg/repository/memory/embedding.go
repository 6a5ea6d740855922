package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

type embeddingRepository struct {
	mu      sync.RWMutex
	records map[types.ChunkRef]*model.EmbeddingRecord
}

func newEmbeddingRepository() *embeddingRepository {
	return &embeddingRepository{
		records: make(map[types.ChunkRef]*model.EmbeddingRecord),
	}
}

func copyEmbedding(rec *model.EmbeddingRecord) *model.EmbeddingRecord {
	copied := *rec
	if rec.Vector != nil {
		copied.Vector = make([]float32, len(rec.Vector))
		copy(copied.Vector, rec.Vector)
	}
	return &copied
}

func (r *embeddingRepository) Put(ctx context.Context, rec *model.EmbeddingRecord) (*model.EmbeddingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyEmbedding(rec)
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	r.records[created.ChunkRef] = created
	return copyEmbedding(created), nil
}

func (r *embeddingRepository) Get(ctx context.Context, ref types.ChunkRef) (*model.EmbeddingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[ref]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "embedding record not found", goerr.V("ref", ref.String()))
	}

	return copyEmbedding(rec), nil
}

func (r *embeddingRepository) FindNearest(ctx context.Context, topic types.Topic, vector []float32, limit int) ([]*model.EmbeddingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		rec   *model.EmbeddingRecord
		score float64
	}

	var candidates []scored
	for _, rec := range r.records {
		if topic != "" && rec.Topic != topic {
			continue
		}
		if len(rec.Vector) != len(vector) {
			continue
		}
		s := cosineSimilarity(vector, rec.Vector)
		candidates = append(candidates, scored{rec: copyEmbedding(rec), score: s})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	result := make([]*model.EmbeddingRecord, limit)
	for i := 0; i < limit; i++ {
		result[i] = candidates[i].rec
	}

	return result, nil
}

func (r *embeddingRepository) Delete(ctx context.Context, ref types.ChunkRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[ref]; !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "embedding record not found", goerr.V("ref", ref.String()))
	}

	delete(r.records, ref)
	return nil
}

func (r *embeddingRepository) DeleteByDocument(ctx context.Context, id types.DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ref := range r.records {
		if ref.DocumentID == id {
			delete(r.records, ref)
		}
	}

	return nil
}

func (r *embeddingRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
