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

type masteryKey struct {
	learnerID types.LearnerID
	topic     types.Topic
}

type masteryRepository struct {
	mu      sync.RWMutex
	records map[masteryKey]*model.MasteryRecord
}

func newMasteryRepository() *masteryRepository {
	return &masteryRepository{
		records: make(map[masteryKey]*model.MasteryRecord),
	}
}

func copyMastery(m *model.MasteryRecord) *model.MasteryRecord {
	copied := *m
	return &copied
}

func (r *masteryRepository) Get(ctx context.Context, learnerID types.LearnerID, topic types.Topic) (*model.MasteryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[masteryKey{learnerID: learnerID, topic: topic}]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "mastery record not found",
			goerr.V("learner_id", learnerID), goerr.V("topic", topic))
	}

	return copyMastery(rec), nil
}

func (r *masteryRepository) Put(ctx context.Context, rec *model.MasteryRecord) (*model.MasteryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyMastery(rec)
	created.UpdatedAt = time.Now().UTC()

	r.records[masteryKey{learnerID: created.LearnerID, topic: created.Topic}] = created
	return copyMastery(created), nil
}

func (r *masteryRepository) ListByLearner(ctx context.Context, learnerID types.LearnerID) ([]*model.MasteryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.MasteryRecord
	for _, rec := range r.records {
		if rec.LearnerID == learnerID {
			result = append(result, copyMastery(rec))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Topic < result[j].Topic
	})

	return result, nil
}
