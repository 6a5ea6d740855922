package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/service/generator"
	"github.com/sahayak-lab/sahayak/pkg/service/retriever"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
)

// AskUseCase answers learner questions grounded in the knowledge base.
type AskUseCase struct {
	retriever *retriever.Retriever
	generator *generator.Generator
	topK      int
}

func NewAskUseCase(ret *retriever.Retriever, gen *generator.Generator, topK int) *AskUseCase {
	return &AskUseCase{
		retriever: ret,
		generator: gen,
		topK:      topK,
	}
}

// Ask retrieves grounding passages for the query and generates a cited
// answer. k <= 0 falls back to the configured default.
func (uc *AskUseCase) Ask(ctx context.Context, query string, topic types.Topic, k int) (*model.Answer, error) {
	if query == "" {
		return nil, goerr.New("query is required")
	}
	if k <= 0 {
		k = uc.topK
	}

	result, err := uc.retriever.Retrieve(ctx, query, topic, k)
	if err != nil {
		return nil, err
	}

	answer, err := uc.generator.Answer(ctx, query, result)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Info("question answered",
		"topic", topic,
		"passages", len(result.Hits),
		"confidence", answer.Confidence)

	return answer, nil
}
