package retriever

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/service/index"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
)

// Retriever turns query text into ranked, deduplicated passages. An
// empty corpus or nothing above the relevance floor yields an empty
// result, never an error, so callers can degrade gracefully.
type Retriever struct {
	idx            *index.Index
	relevanceFloor float64
	dedupThreshold float64
	topK           int

	// resolvers maps a stored embedding model version to a client able
	// to embed queries with that version, used to read an index that
	// predates a model upgrade.
	resolvers map[string]gollem.LLMClient
}

type Option func(*Retriever)

// WithVersionResolver registers a client for a superseded embedding
// model version.
func WithVersionResolver(version string, llm gollem.LLMClient) Option {
	return func(r *Retriever) {
		r.resolvers[version] = llm
	}
}

func New(idx *index.Index, cfg config.RetrievalConfig, opts ...Option) (*Retriever, error) {
	if idx == nil {
		return nil, goerr.New("index is required")
	}
	if cfg.TopK <= 0 {
		return nil, goerr.New("retrieval top_k must be positive", goerr.V("top_k", cfg.TopK))
	}

	r := &Retriever{
		idx:            idx,
		relevanceFloor: cfg.RelevanceFloor,
		dedupThreshold: cfg.DedupThreshold,
		topK:           cfg.TopK,
		resolvers:      make(map[string]gollem.LLMClient),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Retrieve embeds the query, searches the index scoped to topic (empty
// = whole corpus) and returns at most k hits ordered by descending
// score. k <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, topic types.Topic, k int) (*model.RetrievalResult, error) {
	if k <= 0 {
		k = r.topK
	}

	vector, err := r.idx.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	// Overfetch so the floor and dedup passes still leave k hits.
	hits, err := r.idx.Query(ctx, topic, vector, k*2)
	if err != nil {
		return nil, goerr.Wrap(err, "index query failed", goerr.V("topic", topic))
	}

	hits, err = r.reconcileVersions(ctx, query, topic, k, hits)
	if err != nil {
		return nil, err
	}

	hits = r.applyFloor(hits)
	hits = r.dedup(hits)
	if len(hits) > k {
		hits = hits[:k]
	}

	return &model.RetrievalResult{
		Query: query,
		Topic: topic,
		Hits:  hits,
	}, nil
}

// reconcileVersions handles hits embedded with a model version other
// than the index's current one. When a resolver is registered for the
// stored version the query is re-embedded with it and the search is
// rerun; otherwise retrieval fails, since scores across embedding
// spaces are not comparable.
func (r *Retriever) reconcileVersions(ctx context.Context, query string, topic types.Topic, k int, hits []model.Hit) ([]model.Hit, error) {
	current := r.idx.Version()

	stale := ""
	for _, h := range hits {
		if h.ModelVersion != current {
			stale = h.ModelVersion
			break
		}
	}
	if stale == "" {
		return hits, nil
	}

	resolver, ok := r.resolvers[stale]
	if !ok {
		return nil, goerr.Wrap(types.ErrEmbeddingVersionMismatch, "index holds records of an unknown model version",
			goerr.V("stored", stale), goerr.V("current", current))
	}

	logging.From(ctx).Info("re-embedding query with superseded model version",
		"stored", stale, "current", current)

	vectors, err := resolver.GenerateEmbedding(ctx, r.idx.Dimension(), []string{query})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to re-embed query", goerr.V("version", stale))
	}
	if len(vectors) != 1 || len(vectors[0]) != r.idx.Dimension() {
		return nil, goerr.Wrap(types.ErrDimensionMismatch, "resolver returned wrong dimension", goerr.V("version", stale))
	}

	vector := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		vector[i] = float32(v)
	}

	rehits, err := r.idx.Query(ctx, topic, vector, k*2)
	if err != nil {
		return nil, goerr.Wrap(err, "index query failed after re-embedding", goerr.V("topic", topic))
	}

	// Keep only hits scored in the space the query was embedded in.
	matched := rehits[:0]
	for _, h := range rehits {
		if h.ModelVersion == stale {
			matched = append(matched, h)
		}
	}
	return matched, nil
}

func (r *Retriever) applyFloor(hits []model.Hit) []model.Hit {
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= r.relevanceFloor {
			kept = append(kept, h)
		}
	}
	return kept
}

// dedup collapses near-identical chunks to the higher-scored one. Hits
// arrive ordered by descending score, so the first of any duplicate
// group survives.
func (r *Retriever) dedup(hits []model.Hit) []model.Hit {
	kept := make([]model.Hit, 0, len(hits))
	for _, h := range hits {
		dup := false
		for _, prev := range kept {
			if index.CosineSimilarity(h.Vector, prev.Vector) >= r.dedupThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, h)
		}
	}
	return kept
}
