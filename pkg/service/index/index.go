package index

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
)

// overfetchFactor widens backend searches so that hits dropped by the
// referential consistency filter still leave k results.
const overfetchFactor = 2

// Index maintains embedding records over chunks and answers vector
// similarity queries. It tolerates partial population: queries succeed
// mid-ingestion and simply see fewer records.
type Index struct {
	llm          gollem.LLMClient
	repo         interfaces.Repository
	dimension    int
	modelVersion string
	now          func() time.Time
}

type Option func(*Index)

// WithClock overrides record timestamping, used by tests.
func WithClock(now func() time.Time) Option {
	return func(x *Index) {
		x.now = now
	}
}

func New(llm gollem.LLMClient, repo interfaces.Repository, cfg config.EmbeddingConfig, modelVersion string, opts ...Option) (*Index, error) {
	if llm == nil {
		return nil, goerr.New("LLM client is required")
	}
	if repo == nil {
		return nil, goerr.New("repository is required")
	}
	if cfg.Dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.V("dimension", cfg.Dimension))
	}
	if modelVersion == "" {
		return nil, goerr.New("embedding model version is required")
	}

	x := &Index{
		llm:          llm,
		repo:         repo,
		dimension:    cfg.Dimension,
		modelVersion: modelVersion,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}

	return x, nil
}

// Version returns the embedding model version the index writes with.
func (x *Index) Version() string {
	return x.modelVersion
}

// Dimension returns the configured vector dimension.
func (x *Index) Dimension() int {
	return x.dimension
}

// Upsert stores the embedding record for a chunk. When the stored
// record already matches the chunk's content hash and the current
// model version, no embedding call is made and the stored record is
// returned unchanged.
func (x *Index) Upsert(ctx context.Context, chunk *model.Chunk) (*model.EmbeddingRecord, error) {
	existing, err := x.repo.Embedding().Get(ctx, chunk.Ref())
	if err == nil && existing.Hash == chunk.Hash && existing.ModelVersion == x.modelVersion {
		return existing, nil
	}
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, goerr.Wrap(err, "failed to look up embedding record", goerr.V("ref", chunk.Ref().String()))
	}

	vector, err := x.Embed(ctx, chunk.Text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed chunk", goerr.V("ref", chunk.Ref().String()))
	}

	rec := &model.EmbeddingRecord{
		ChunkRef:     chunk.Ref(),
		Topic:        chunk.Topic,
		Hash:         chunk.Hash,
		ModelVersion: x.modelVersion,
		Vector:       vector,
		CreatedAt:    x.now().UTC(),
	}

	stored, err := x.repo.Embedding().Put(ctx, rec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store embedding record", goerr.V("ref", chunk.Ref().String()))
	}

	return stored, nil
}

// Embed produces a vector for one text using the index's model.
func (x *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := x.llm.GenerateEmbedding(ctx, x.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "embedding generation failed")
	}
	if len(vectors) != 1 {
		return nil, goerr.New("embedding model returned unexpected batch size", goerr.V("count", len(vectors)))
	}
	if len(vectors[0]) != x.dimension {
		return nil, goerr.Wrap(types.ErrDimensionMismatch, "embedding model returned wrong dimension",
			goerr.V("want", x.dimension), goerr.V("got", len(vectors[0])))
	}

	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}

// Query runs a similarity search scoped to topic (empty = whole
// corpus). Hits are ordered by descending cosine score; ties break by
// most-recent record first, then ascending chunk ref. Records whose
// chunk has been deleted are filtered out.
func (x *Index) Query(ctx context.Context, topic types.Topic, vector []float32, k int) ([]model.Hit, error) {
	if len(vector) != x.dimension {
		return nil, goerr.Wrap(types.ErrDimensionMismatch, "query vector has wrong dimension",
			goerr.V("want", x.dimension), goerr.V("got", len(vector)))
	}
	if k <= 0 {
		return nil, nil
	}

	records, err := x.repo.Embedding().FindNearest(ctx, topic, vector, k*overfetchFactor)
	if err != nil {
		return nil, goerr.Wrap(err, "vector search failed", goerr.V("topic", topic))
	}

	type scored struct {
		rec   *model.EmbeddingRecord
		score float64
	}
	candidates := make([]scored, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, scored{rec: rec, score: CosineSimilarity(vector, rec.Vector)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if !candidates[i].rec.CreatedAt.Equal(candidates[j].rec.CreatedAt) {
			return candidates[i].rec.CreatedAt.After(candidates[j].rec.CreatedAt)
		}
		return candidates[i].rec.ChunkRef.String() < candidates[j].rec.ChunkRef.String()
	})

	logger := logging.From(ctx)
	hits := make([]model.Hit, 0, k)
	for _, c := range candidates {
		if len(hits) >= k {
			break
		}

		chunk, err := x.repo.Chunk().Get(ctx, c.rec.ChunkRef)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				// Stale record whose chunk was deleted mid-flight.
				logger.Debug("dropping hit without backing chunk", "ref", c.rec.ChunkRef.String())
				continue
			}
			return nil, goerr.Wrap(err, "failed to resolve hit chunk", goerr.V("ref", c.rec.ChunkRef.String()))
		}

		hits = append(hits, model.Hit{
			ChunkRef:     c.rec.ChunkRef,
			Score:        c.score,
			Text:         chunk.Text,
			ModelVersion: c.rec.ModelVersion,
			Vector:       c.rec.Vector,
		})
	}

	return hits, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
