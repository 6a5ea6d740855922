package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type masteryDoc struct {
	LearnerID string    `firestore:"learner_id"`
	Topic     string    `firestore:"topic"`
	Estimate  float64   `firestore:"estimate"`
	Attempts  int       `firestore:"attempts"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func toMasteryDoc(rec *model.MasteryRecord) *masteryDoc {
	return &masteryDoc{
		LearnerID: string(rec.LearnerID),
		Topic:     string(rec.Topic),
		Estimate:  rec.Estimate,
		Attempts:  rec.Attempts,
		UpdatedAt: rec.UpdatedAt,
	}
}

func fromMasteryDoc(d *masteryDoc) *model.MasteryRecord {
	return &model.MasteryRecord{
		LearnerID: types.LearnerID(d.LearnerID),
		Topic:     types.Topic(d.Topic),
		Estimate:  d.Estimate,
		Attempts:  d.Attempts,
		UpdatedAt: d.UpdatedAt,
	}
}

type masteryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newMasteryRepository(client *firestore.Client) *masteryRepository {
	return &masteryRepository{client: client}
}

func (r *masteryRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "mastery")
}

func masteryDocID(learnerID types.LearnerID, topic types.Topic) string {
	return fmt.Sprintf("%s:%s", learnerID, topic)
}

func (r *masteryRepository) Get(ctx context.Context, learnerID types.LearnerID, topic types.Topic) (*model.MasteryRecord, error) {
	snap, err := r.collection().Doc(masteryDocID(learnerID, topic)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "mastery record not found",
				goerr.V("learner_id", learnerID), goerr.V("topic", topic))
		}
		return nil, goerr.Wrap(err, "failed to get mastery record",
			goerr.V("learner_id", learnerID), goerr.V("topic", topic))
	}

	var d masteryDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal mastery record",
			goerr.V("learner_id", learnerID), goerr.V("topic", topic))
	}

	return fromMasteryDoc(&d), nil
}

func (r *masteryRepository) Put(ctx context.Context, rec *model.MasteryRecord) (*model.MasteryRecord, error) {
	stored := *rec
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now().UTC()
	}

	docRef := r.collection().Doc(masteryDocID(stored.LearnerID, stored.Topic))
	if _, err := docRef.Set(ctx, toMasteryDoc(&stored)); err != nil {
		return nil, goerr.Wrap(err, "failed to put mastery record",
			goerr.V("learner_id", stored.LearnerID), goerr.V("topic", stored.Topic))
	}

	return &stored, nil
}

func (r *masteryRepository) ListByLearner(ctx context.Context, learnerID types.LearnerID) ([]*model.MasteryRecord, error) {
	iter := r.collection().
		Where("learner_id", "==", string(learnerID)).
		Documents(ctx)
	defer iter.Stop()

	var records []*model.MasteryRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate mastery records", goerr.V("learner_id", learnerID))
		}

		var d masteryDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal mastery record", goerr.V("learner_id", learnerID))
		}
		records = append(records, fromMasteryDoc(&d))
	}

	return records, nil
}
