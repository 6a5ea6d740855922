package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[types.SessionID]*model.QuizSession
}

func newSessionRepository() *sessionRepository {
	return &sessionRepository{
		sessions: make(map[types.SessionID]*model.QuizSession),
	}
}

func copySession(s *model.QuizSession) *model.QuizSession {
	copied := *s

	if s.Items != nil {
		copied.Items = make([]model.QuizItem, len(s.Items))
		copy(copied.Items, s.Items)
		for i := range s.Items {
			if s.Items[i].Options != nil {
				copied.Items[i].Options = append([]string(nil), s.Items[i].Options...)
			}
			if s.Items[i].SourceChunks != nil {
				copied.Items[i].SourceChunks = append([]types.ChunkRef(nil), s.Items[i].SourceChunks...)
			}
		}
	}
	if s.Responses != nil {
		copied.Responses = append([]model.ItemResponse(nil), s.Responses...)
	}

	return &copied
}

func (r *sessionRepository) Create(ctx context.Context, session *model.QuizSession) (*model.QuizSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	created := copySession(session)
	if created.ID == "" {
		created.ID = types.NewSessionID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	if created.LastActivityAt.IsZero() {
		created.LastActivityAt = now
	}

	r.sessions[created.ID] = created
	return copySession(created), nil
}

func (r *sessionRepository) Get(ctx context.Context, id types.SessionID) (*model.QuizSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "session not found", goerr.V("id", id))
	}

	return copySession(session), nil
}

func (r *sessionRepository) GetActive(ctx context.Context, learnerID types.LearnerID, topic types.Topic) (*model.QuizSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.LearnerID == learnerID && s.Topic == topic && !s.Status.IsTerminal() {
			return copySession(s), nil
		}
	}

	return nil, goerr.Wrap(interfaces.ErrNotFound, "no active session",
		goerr.V("learner_id", learnerID), goerr.V("topic", topic))
}

func (r *sessionRepository) Update(ctx context.Context, session *model.QuizSession) (*model.QuizSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "session not found", goerr.V("id", session.ID))
	}

	updated := copySession(session)
	updated.UpdatedAt = time.Now().UTC()

	r.sessions[updated.ID] = updated
	return copySession(updated), nil
}
