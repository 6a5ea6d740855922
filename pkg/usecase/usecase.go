package usecase

import (
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/service/adaptive"
	"github.com/sahayak-lab/sahayak/pkg/service/chunker"
	"github.com/sahayak-lab/sahayak/pkg/service/generator"
	"github.com/sahayak-lab/sahayak/pkg/service/index"
	"github.com/sahayak-lab/sahayak/pkg/service/retriever"
)

// UseCases bundles the application operations over one repository and
// one engine configuration.
type UseCases struct {
	repo   interfaces.Repository
	engine *config.EngineConfig

	Ingest  *IngestUseCase
	Ask     *AskUseCase
	Quiz    *QuizUseCase
	Mastery *MasteryUseCase
}

type Option func(*UseCases)

// WithEngineConfig replaces the default engine configuration.
func WithEngineConfig(cfg *config.EngineConfig) Option {
	return func(uc *UseCases) {
		uc.engine = cfg
	}
}

func New(repo interfaces.Repository, chk *chunker.Chunker, idx *index.Index, ret *retriever.Retriever, gen *generator.Generator, eng *adaptive.Engine, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:   repo,
		engine: config.Default(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Ingest = NewIngestUseCase(repo, chk, idx)
	uc.Ask = NewAskUseCase(ret, gen, uc.engine.Retrieval.TopK)
	uc.Mastery = NewMasteryUseCase(repo, eng)
	uc.Quiz = NewQuizUseCase(repo, ret, gen, eng, uc.engine.Session)

	return uc
}
