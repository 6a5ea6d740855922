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

type chunkRepository struct {
	mu     sync.RWMutex
	chunks map[types.ChunkRef]*model.Chunk
}

func newChunkRepository() *chunkRepository {
	return &chunkRepository{
		chunks: make(map[types.ChunkRef]*model.Chunk),
	}
}

func copyChunk(c *model.Chunk) *model.Chunk {
	copied := *c
	return &copied
}

func (r *chunkRepository) PutBatch(ctx context.Context, chunks []*model.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, c := range chunks {
		created := copyChunk(c)
		if created.CreatedAt.IsZero() {
			created.CreatedAt = now
		}
		r.chunks[created.Ref()] = created
	}

	return nil
}

func (r *chunkRepository) Get(ctx context.Context, ref types.ChunkRef) (*model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunk, exists := r.chunks[ref]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "chunk not found", goerr.V("ref", ref.String()))
	}

	return copyChunk(chunk), nil
}

func (r *chunkRepository) ListByDocument(ctx context.Context, id types.DocumentID) ([]*model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Chunk
	for _, c := range r.chunks {
		if c.DocumentID == id {
			result = append(result, copyChunk(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})

	return result, nil
}

func (r *chunkRepository) Delete(ctx context.Context, ref types.ChunkRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chunks[ref]; !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "chunk not found", goerr.V("ref", ref.String()))
	}

	delete(r.chunks, ref)
	return nil
}

func (r *chunkRepository) DeleteByDocument(ctx context.Context, id types.DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ref, c := range r.chunks {
		if c.DocumentID == id {
			delete(r.chunks, ref)
		}
	}

	return nil
}

func (r *chunkRepository) CountByTopic(ctx context.Context) (map[types.Topic]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[types.Topic]int)
	for _, c := range r.chunks {
		result[c.Topic]++
	}

	return result, nil
}
