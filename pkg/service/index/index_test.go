package index_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/repository/memory"
	"github.com/sahayak-lab/sahayak/pkg/service/index"
)

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	generateEmbeddingFn func(ctx context.Context, dimension int, input []string) ([][]float64, error)
	embeddingCalls      int
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return nil, errors.New("not implemented")
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	c.embeddingCalls++
	if c.generateEmbeddingFn != nil {
		return c.generateEmbeddingFn(ctx, dimension, input)
	}

	vectors := make([][]float64, len(input))
	for i := range input {
		vec := make([]float64, dimension)
		vec[0] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

func newIndex(t *testing.T, llm gollem.LLMClient, repo *memory.Memory, dim int) *index.Index {
	t.Helper()
	x, err := index.New(llm, repo, config.EmbeddingConfig{Dimension: dim}, "test-embed-v1")
	gt.NoError(t, err).Required()
	return x
}

func putChunk(t *testing.T, repo *memory.Memory, docID types.DocumentID, i int, text, hash string) *model.Chunk {
	t.Helper()
	chunk := &model.Chunk{
		DocumentID: docID,
		Index:      i,
		Topic:      "algebra",
		Text:       text,
		TokenCount: len(text),
		Hash:       hash,
	}
	gt.NoError(t, repo.Chunk().PutBatch(context.Background(), []*model.Chunk{chunk})).Required()
	return chunk
}

func TestUpsertIsIdempotentOnUnchangedHash(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	llm := &mockLLMClient{}
	x := newIndex(t, llm, repo, 4)

	chunk := putChunk(t, repo, "doc-1", 0, "linear equations", "hash-a")

	first, err := x.Upsert(ctx, chunk)
	gt.NoError(t, err).Required()
	gt.Value(t, llm.embeddingCalls).Equal(1)
	gt.Value(t, first.ModelVersion).Equal("test-embed-v1")
	gt.Array(t, first.Vector).Length(4)

	second, err := x.Upsert(ctx, chunk)
	gt.NoError(t, err).Required()
	gt.Value(t, llm.embeddingCalls).Equal(1)
	gt.Value(t, second.Hash).Equal(first.Hash)
}

func TestUpsertReembedsOnChangedHash(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	llm := &mockLLMClient{}
	x := newIndex(t, llm, repo, 4)

	chunk := putChunk(t, repo, "doc-1", 0, "linear equations", "hash-a")
	_, err := x.Upsert(ctx, chunk)
	gt.NoError(t, err).Required()

	chunk.Text = "quadratic equations"
	chunk.Hash = "hash-b"
	updated, err := x.Upsert(ctx, chunk)
	gt.NoError(t, err).Required()
	gt.Value(t, llm.embeddingCalls).Equal(2)
	gt.Value(t, updated.Hash).Equal("hash-b")
}

func TestUpsertRejectsWrongModelDimension(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	llm := &mockLLMClient{
		generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
			return [][]float64{{1, 0}}, nil
		},
	}
	x := newIndex(t, llm, repo, 4)

	chunk := putChunk(t, repo, "doc-1", 0, "text", "hash-a")
	_, err := x.Upsert(ctx, chunk)
	gt.Bool(t, errors.Is(err, types.ErrDimensionMismatch)).True()
}

func TestQueryDimensionMismatch(t *testing.T) {
	x := newIndex(t, &mockLLMClient{}, memory.New(), 4)

	_, err := x.Query(context.Background(), "algebra", []float32{1, 0}, 3)
	gt.Bool(t, errors.Is(err, types.ErrDimensionMismatch)).True()
}

func TestQueryOrdersByScore(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	x := newIndex(t, &mockLLMClient{}, repo, 3)

	vectors := map[int][]float32{
		0: {1, 0, 0},
		1: {0, 1, 0},
		2: {0.9, 0.1, 0},
	}
	for i, vec := range vectors {
		chunk := putChunk(t, repo, "doc-1", i, "chunk text", "hash")
		_, err := repo.Embedding().Put(ctx, &model.EmbeddingRecord{
			ChunkRef:     chunk.Ref(),
			Topic:        chunk.Topic,
			Hash:         chunk.Hash,
			ModelVersion: "test-embed-v1",
			Vector:       vec,
		})
		gt.NoError(t, err).Required()
	}

	hits, err := x.Query(ctx, "algebra", []float32{1, 0, 0}, 2)
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(2)
	gt.Value(t, hits[0].ChunkRef.Index).Equal(0)
	gt.Value(t, hits[1].ChunkRef.Index).Equal(2)
	gt.Bool(t, hits[0].Score > hits[1].Score).True()
}

func TestQueryTieBreaksByRecencyThenRef(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	x := newIndex(t, &mockLLMClient{}, repo, 2)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	put := func(docID types.DocumentID, idx int, createdAt time.Time) {
		chunk := putChunk(t, repo, docID, idx, "same text", "hash")
		_, err := repo.Embedding().Put(ctx, &model.EmbeddingRecord{
			ChunkRef:     chunk.Ref(),
			Topic:        chunk.Topic,
			Hash:         chunk.Hash,
			ModelVersion: "test-embed-v1",
			Vector:       []float32{1, 0},
			CreatedAt:    createdAt,
		})
		gt.NoError(t, err).Required()
	}

	put("doc-b", 0, base)
	put("doc-a", 0, base.Add(time.Hour)) // Most recent wins the tie
	put("doc-c", 0, base)

	hits, err := x.Query(ctx, "algebra", []float32{1, 0}, 3)
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(3)
	gt.Value(t, hits[0].ChunkRef.DocumentID).Equal(types.DocumentID("doc-a"))
	gt.Value(t, hits[1].ChunkRef.DocumentID).Equal(types.DocumentID("doc-b"))
	gt.Value(t, hits[2].ChunkRef.DocumentID).Equal(types.DocumentID("doc-c"))
}

func TestQueryFiltersOrphanedRecords(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	x := newIndex(t, &mockLLMClient{}, repo, 2)

	kept := putChunk(t, repo, "doc-kept", 0, "kept text", "hash-kept")
	_, err := repo.Embedding().Put(ctx, &model.EmbeddingRecord{
		ChunkRef:     kept.Ref(),
		Topic:        kept.Topic,
		Hash:         kept.Hash,
		ModelVersion: "test-embed-v1",
		Vector:       []float32{0.5, 0.5},
	})
	gt.NoError(t, err).Required()

	// Record with no backing chunk must never surface.
	_, err = repo.Embedding().Put(ctx, &model.EmbeddingRecord{
		ChunkRef:     types.ChunkRef{DocumentID: "doc-gone", Index: 0},
		Topic:        "algebra",
		Hash:         "hash-gone",
		ModelVersion: "test-embed-v1",
		Vector:       []float32{1, 0},
	})
	gt.NoError(t, err).Required()

	hits, err := x.Query(ctx, "algebra", []float32{1, 0}, 5)
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(1)
	gt.Value(t, hits[0].ChunkRef.DocumentID).Equal(types.DocumentID("doc-kept"))
	gt.Value(t, hits[0].Text).Equal("kept text")
}

func TestQueryEmptyCorpus(t *testing.T) {
	x := newIndex(t, &mockLLMClient{}, memory.New(), 2)

	hits, err := x.Query(context.Background(), "algebra", []float32{1, 0}, 5)
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(0)
}
