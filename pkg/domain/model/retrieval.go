package model

import "github.com/sahayak-lab/sahayak/pkg/domain/types"

// Hit is one ranked retrieval candidate. ModelVersion and Vector come
// from the backing embedding record; the retriever uses them for
// version checking and near-duplicate collapsing.
type Hit struct {
	ChunkRef     types.ChunkRef
	Score        float64 // Cosine similarity in [-1, 1]
	Text         string
	ModelVersion string
	Vector       []float32
}

// RetrievalResult is the ephemeral outcome of a retrieval. An empty
// Hits slice is a valid result (nothing relevant in the corpus) and is
// not an error.
type RetrievalResult struct {
	Query string
	Topic types.Topic
	Hits  []Hit
}

// Empty reports whether nothing relevant was found.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Hits) == 0
}

// MeanScore returns the average hit score, 0 for an empty result.
func (r *RetrievalResult) MeanScore() float64 {
	if r.Empty() {
		return 0
	}
	var sum float64
	for _, h := range r.Hits {
		sum += h.Score
	}
	return sum / float64(len(r.Hits))
}

// Answer is a grounded answer produced by the generation orchestrator.
type Answer struct {
	Text       string
	Confidence float64 // Derived from mean retrieval score
	Citations  []types.ChunkRef
	Sources    []string // Deduplicated source document names
	Grounded   bool     // False for the canned insufficient-material response
}
