package firestore

import (
	"context"
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

type quizItemDoc struct {
	ID           string   `firestore:"id"`
	Question     string   `firestore:"question"`
	Options      []string `firestore:"options"`
	Answer       string   `firestore:"answer"`
	Explanation  string   `firestore:"explanation"`
	Topic        string   `firestore:"topic"`
	Difficulty   string   `firestore:"difficulty"`
	SourceChunks []string `firestore:"source_chunks"`
}

type itemResponseDoc struct {
	ItemID     string    `firestore:"item_id"`
	Answer     string    `firestore:"answer"`
	Correct    bool      `firestore:"correct"`
	AnsweredAt time.Time `firestore:"answered_at"`
}

type sessionDoc struct {
	ID             string            `firestore:"id"`
	LearnerID      string            `firestore:"learner_id"`
	Topic          string            `firestore:"topic"`
	Items          []quizItemDoc     `firestore:"items"`
	Position       int               `firestore:"position"`
	Responses      []itemResponseDoc `firestore:"responses"`
	Status         string            `firestore:"status"`
	CreatedAt      time.Time         `firestore:"created_at"`
	UpdatedAt      time.Time         `firestore:"updated_at"`
	LastActivityAt time.Time         `firestore:"last_activity_at"`
}

func toSessionDoc(s *model.QuizSession) *sessionDoc {
	doc := &sessionDoc{
		ID:             string(s.ID),
		LearnerID:      string(s.LearnerID),
		Topic:          string(s.Topic),
		Position:       s.Position,
		Status:         s.Status.String(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		LastActivityAt: s.LastActivityAt,
	}
	for _, item := range s.Items {
		refs := make([]string, 0, len(item.SourceChunks))
		for _, ref := range item.SourceChunks {
			refs = append(refs, ref.String())
		}
		doc.Items = append(doc.Items, quizItemDoc{
			ID:           string(item.ID),
			Question:     item.Question,
			Options:      item.Options,
			Answer:       item.Answer,
			Explanation:  item.Explanation,
			Topic:        string(item.Topic),
			Difficulty:   item.Difficulty.String(),
			SourceChunks: refs,
		})
	}
	for _, resp := range s.Responses {
		doc.Responses = append(doc.Responses, itemResponseDoc{
			ItemID:     string(resp.ItemID),
			Answer:     resp.Answer,
			Correct:    resp.Correct,
			AnsweredAt: resp.AnsweredAt,
		})
	}
	return doc
}

func fromSessionDoc(d *sessionDoc) (*model.QuizSession, error) {
	st, err := types.ParseSessionStatus(d.Status)
	if err != nil {
		return nil, err
	}

	s := &model.QuizSession{
		ID:             types.SessionID(d.ID),
		LearnerID:      types.LearnerID(d.LearnerID),
		Topic:          types.Topic(d.Topic),
		Position:       d.Position,
		Status:         st,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		LastActivityAt: d.LastActivityAt,
	}
	for _, item := range d.Items {
		refs := make([]types.ChunkRef, 0, len(item.SourceChunks))
		for _, raw := range item.SourceChunks {
			ref, err := types.ParseChunkRef(raw)
			if err != nil {
				return nil, goerr.Wrap(err, "broken source chunk ref in session",
					goerr.V("session_id", d.ID), goerr.V("ref", raw))
			}
			refs = append(refs, ref)
		}
		s.Items = append(s.Items, model.QuizItem{
			ID:           types.ItemID(item.ID),
			Question:     item.Question,
			Options:      item.Options,
			Answer:       item.Answer,
			Explanation:  item.Explanation,
			Topic:        types.Topic(item.Topic),
			Difficulty:   types.Difficulty(item.Difficulty),
			SourceChunks: refs,
		})
	}
	for _, resp := range d.Responses {
		s.Responses = append(s.Responses, model.ItemResponse{
			ItemID:     types.ItemID(resp.ItemID),
			Answer:     resp.Answer,
			Correct:    resp.Correct,
			AnsweredAt: resp.AnsweredAt,
		})
	}
	return s, nil
}

type sessionRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newSessionRepository(client *firestore.Client) *sessionRepository {
	return &sessionRepository{client: client}
}

func (r *sessionRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "quiz_sessions")
}

func (r *sessionRepository) Create(ctx context.Context, session *model.QuizSession) (*model.QuizSession, error) {
	stored := *session
	now := time.Now().UTC()
	if stored.ID == "" {
		stored.ID = types.NewSessionID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.LastActivityAt.IsZero() {
		stored.LastActivityAt = now
	}

	docRef := r.collection().Doc(string(stored.ID))
	if _, err := docRef.Set(ctx, toSessionDoc(&stored)); err != nil {
		return nil, goerr.Wrap(err, "failed to create quiz session", goerr.V("session_id", stored.ID))
	}

	return &stored, nil
}

func (r *sessionRepository) Get(ctx context.Context, id types.SessionID) (*model.QuizSession, error) {
	snap, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "quiz session not found", goerr.V("session_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get quiz session", goerr.V("session_id", id))
	}

	var d sessionDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal quiz session", goerr.V("session_id", id))
	}

	return fromSessionDoc(&d)
}

func (r *sessionRepository) GetActive(ctx context.Context, learnerID types.LearnerID, topic types.Topic) (*model.QuizSession, error) {
	iter := r.collection().
		Where("learner_id", "==", string(learnerID)).
		Where("topic", "==", string(topic)).
		Where("status", "in", []string{
			types.SessionStatusCreated.String(),
			types.SessionStatusActive.String(),
		}).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "no active quiz session",
			goerr.V("learner_id", learnerID), goerr.V("topic", topic))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query active quiz session",
			goerr.V("learner_id", learnerID), goerr.V("topic", topic))
	}

	var d sessionDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal quiz session")
	}

	return fromSessionDoc(&d)
}

func (r *sessionRepository) Update(ctx context.Context, session *model.QuizSession) (*model.QuizSession, error) {
	stored := *session
	stored.UpdatedAt = time.Now().UTC()

	docRef := r.collection().Doc(string(stored.ID))
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "quiz session not found", goerr.V("session_id", stored.ID))
		}
		return nil, goerr.Wrap(err, "failed to get quiz session", goerr.V("session_id", stored.ID))
	}

	if _, err := docRef.Set(ctx, toSessionDoc(&stored)); err != nil {
		return nil, goerr.Wrap(err, "failed to update quiz session", goerr.V("session_id", stored.ID))
	}

	return &stored, nil
}
