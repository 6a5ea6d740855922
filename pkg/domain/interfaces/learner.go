package interfaces

import (
	"context"

	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

// SessionRepository defines persistence for quiz sessions. Serializing
// concurrent mutations per (learner, topic) is the usecase layer's
// responsibility; the repository only stores state.
type SessionRepository interface {
	// Create stores a new session
	Create(ctx context.Context, session *model.QuizSession) (*model.QuizSession, error)

	// Get retrieves a session by ID
	Get(ctx context.Context, id types.SessionID) (*model.QuizSession, error)

	// GetActive retrieves the non-terminal session for a learner and
	// topic scope, or ErrNotFound when none exists
	GetActive(ctx context.Context, learnerID types.LearnerID, topic types.Topic) (*model.QuizSession, error)

	// Update replaces the stored session state
	Update(ctx context.Context, session *model.QuizSession) (*model.QuizSession, error)
}

// MasteryRepository defines persistence for mastery records.
type MasteryRepository interface {
	// Get retrieves the record for a learner and topic, or ErrNotFound
	Get(ctx context.Context, learnerID types.LearnerID, topic types.Topic) (*model.MasteryRecord, error)

	// Put stores or replaces a record
	Put(ctx context.Context, rec *model.MasteryRecord) (*model.MasteryRecord, error)

	// ListByLearner retrieves all records of a learner
	ListByLearner(ctx context.Context, learnerID types.LearnerID) ([]*model.MasteryRecord, error)
}
