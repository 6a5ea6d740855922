package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/service/adaptive"
)

// MasteryUseCase builds learner-facing views of the mastery store.
type MasteryUseCase struct {
	repo   interfaces.Repository
	engine *adaptive.Engine
}

func NewMasteryUseCase(repo interfaces.Repository, eng *adaptive.Engine) *MasteryUseCase {
	return &MasteryUseCase{
		repo:   repo,
		engine: eng,
	}
}

// Report aggregates a learner's mastery across topics, weakest topics
// first. A learner without history gets an empty report, not an error.
func (uc *MasteryUseCase) Report(ctx context.Context, learnerID types.LearnerID) (*model.LearnerReport, error) {
	if learnerID == "" {
		return nil, goerr.New("learner ID is required")
	}

	records, err := uc.repo.Mastery().ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list mastery records", goerr.V("learner_id", learnerID))
	}

	report := &model.LearnerReport{LearnerID: learnerID}
	if len(records) == 0 {
		report.Recommendations = []string{"Take a quiz to establish a baseline."}
		return report, nil
	}

	var weighted float64
	for _, rec := range records {
		report.Topics = append(report.Topics, model.TopicMastery{
			Topic:    rec.Topic,
			Estimate: rec.Estimate,
			Attempts: rec.Attempts,
		})
		report.Attempts += rec.Attempts
		weighted += rec.Estimate * float64(rec.Attempts)
	}
	if report.Attempts > 0 {
		report.Overall = weighted / float64(report.Attempts)
	}

	sort.Slice(report.Topics, func(i, j int) bool {
		if report.Topics[i].Estimate != report.Topics[j].Estimate {
			return report.Topics[i].Estimate < report.Topics[j].Estimate
		}
		return report.Topics[i].Topic < report.Topics[j].Topic
	})

	report.Recommendations = uc.recommend(report.Topics)

	return report, nil
}

// recommend names what to do next per topic relative to the target
// success band.
func (uc *MasteryUseCase) recommend(topics []model.TopicMastery) []string {
	low, high := uc.engine.Band()

	var recs []string
	for _, t := range topics {
		switch {
		case t.Estimate < low:
			recs = append(recs, fmt.Sprintf("Review the fundamentals of %s before the next quiz.", t.Topic))
		case t.Estimate > high:
			recs = append(recs, fmt.Sprintf("Ready for harder material in %s.", t.Topic))
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "Keep practicing; current difficulty matches your level.")
	}
	return recs
}
