package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/service/adaptive"
	"github.com/sahayak-lab/sahayak/pkg/service/generator"
	"github.com/sahayak-lab/sahayak/pkg/service/retriever"
	"github.com/sahayak-lab/sahayak/pkg/utils/async"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
)

// QuizUseCase drives the quiz session lifecycle:
// created -> active -> completed | abandoned.
// Session mutations are serialized per (learner, topic); retrieval and
// generation run outside the lock so slow model calls never block other
// learners' sessions.
type QuizUseCase struct {
	repo      interfaces.Repository
	retriever *retriever.Retriever
	generator *generator.Generator
	engine    *adaptive.Engine
	cfg       config.SessionConfig
	sessions  *async.KeyedMutex
	now       func() time.Time
}

type QuizOption func(*QuizUseCase)

// WithQuizClock overrides the time source for tests.
func WithQuizClock(now func() time.Time) QuizOption {
	return func(uc *QuizUseCase) { uc.now = now }
}

func NewQuizUseCase(repo interfaces.Repository, ret *retriever.Retriever, gen *generator.Generator, eng *adaptive.Engine, cfg config.SessionConfig, opts ...QuizOption) *QuizUseCase {
	uc := &QuizUseCase{
		repo:      repo,
		retriever: ret,
		generator: gen,
		engine:    eng,
		cfg:       cfg,
		sessions:  async.NewKeyedMutex(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func sessionKey(learnerID types.LearnerID, topic types.Topic) string {
	return string(learnerID) + "/" + string(topic)
}

// StartSession creates a quiz session for the learner and topic. At
// most one non-terminal session exists per (learner, topic); an expired
// one is lazily abandoned and does not block. The session is stored
// only after item generation fully succeeded.
func (uc *QuizUseCase) StartSession(ctx context.Context, learnerID types.LearnerID, topic types.Topic, count int) (*model.QuizSession, error) {
	if learnerID == "" {
		return nil, goerr.New("learner ID is required")
	}
	if topic == "" {
		return nil, goerr.New("topic is required")
	}
	if count <= 0 {
		count = uc.cfg.DefaultItemCount
	}

	if err := uc.checkConflict(ctx, learnerID, topic); err != nil {
		return nil, err
	}

	profile, err := uc.engine.Bias(ctx, learnerID, topic)
	if err != nil {
		return nil, err
	}

	result, err := uc.retriever.Retrieve(ctx, string(topic), topic, 0)
	if err != nil {
		return nil, err
	}
	if result.Empty() {
		return nil, goerr.New("no material available for this topic", goerr.V("topic", topic))
	}

	passages := result.Hits
	if profile.Foundational {
		passages = foundationalOrder(passages)
	}

	items, err := uc.generator.GenerateQuizItems(ctx, &generator.QuizRequest{
		Topic:    topic,
		Count:    count,
		Profile:  profile,
		Passages: passages,
	})
	if err != nil {
		return nil, err
	}

	session, err := uc.create(ctx, learnerID, topic, items)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Info("quiz session started",
		"session_id", session.ID,
		"learner_id", learnerID,
		"topic", topic,
		"items", len(items),
		"target", profile.Target)

	return session, nil
}

// checkConflict enforces the single-active-session rule, lazily
// abandoning an expired session first.
func (uc *QuizUseCase) checkConflict(ctx context.Context, learnerID types.LearnerID, topic types.Topic) error {
	key := sessionKey(learnerID, topic)
	uc.sessions.Lock(key)
	defer uc.sessions.Unlock(key)

	existing, err := uc.repo.Session().GetActive(ctx, learnerID, topic)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to check for an active session")
	}

	if !existing.ExpiredAt(uc.now(), uc.cfg.Timeout()) {
		return goerr.Wrap(types.ErrSessionConflict, "session already in progress",
			goerr.V("session_id", existing.ID))
	}

	return uc.expire(ctx, existing)
}

// create stores the generated session, re-checking the conflict rule in
// case another start raced while generation ran unlocked.
func (uc *QuizUseCase) create(ctx context.Context, learnerID types.LearnerID, topic types.Topic, items []*model.QuizItem) (*model.QuizSession, error) {
	key := sessionKey(learnerID, topic)
	uc.sessions.Lock(key)
	defer uc.sessions.Unlock(key)

	if existing, err := uc.repo.Session().GetActive(ctx, learnerID, topic); err == nil {
		if !existing.ExpiredAt(uc.now(), uc.cfg.Timeout()) {
			return nil, goerr.Wrap(types.ErrSessionConflict, "session started concurrently",
				goerr.V("session_id", existing.ID))
		}
		if err := uc.expire(ctx, existing); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, goerr.Wrap(err, "failed to check for an active session")
	}

	now := uc.now()
	session := &model.QuizSession{
		ID:             types.NewSessionID(),
		LearnerID:      learnerID,
		Topic:          topic,
		Items:          make([]model.QuizItem, 0, len(items)),
		Status:         types.SessionStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	for _, item := range items {
		session.Items = append(session.Items, *item)
	}

	stored, err := uc.repo.Session().Create(ctx, session)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store session", goerr.V("learner_id", learnerID))
	}
	return stored, nil
}

// NextItem returns the item the learner should answer now. The first
// call activates a created session; repeated calls re-issue the same
// item until it is answered.
func (uc *QuizUseCase) NextItem(ctx context.Context, learnerID types.LearnerID, sessionID types.SessionID) (*model.QuizItem, error) {
	session, unlock, err := uc.acquire(ctx, learnerID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := uc.ensureLive(ctx, session); err != nil {
		return nil, err
	}

	item := session.CurrentItem()
	if item == nil {
		return nil, goerr.New("session has no remaining items", goerr.V("session_id", session.ID))
	}

	now := uc.now()
	if session.Status == types.SessionStatusCreated {
		session.Status = types.SessionStatusActive
	}
	session.LastActivityAt = now
	session.UpdatedAt = now
	if _, err := uc.repo.Session().Update(ctx, session); err != nil {
		return nil, goerr.Wrap(err, "failed to update session", goerr.V("session_id", session.ID))
	}

	return item, nil
}

// SubmitResult is the scored outcome of one answer.
type SubmitResult struct {
	Correct       bool
	CorrectAnswer string
	Explanation   string
	Completed     bool
	Summary       *model.SessionSummary // Set on the final submission
}

// SubmitAnswer scores an answer to the currently presented item. An
// answer targeting any other item fails with ErrInvalidSubmission and
// leaves the session untouched. The final answer completes the session
// and feeds every scored response into the mastery engine.
func (uc *QuizUseCase) SubmitAnswer(ctx context.Context, learnerID types.LearnerID, sessionID types.SessionID, itemID types.ItemID, answer string) (*SubmitResult, error) {
	session, unlock, err := uc.acquire(ctx, learnerID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := uc.ensureLive(ctx, session); err != nil {
		return nil, err
	}

	if session.Status != types.SessionStatusActive {
		return nil, goerr.Wrap(types.ErrInvalidSubmission, "no item has been presented yet",
			goerr.V("session_id", session.ID))
	}

	item := session.CurrentItem()
	if item == nil || item.ID != itemID {
		return nil, goerr.Wrap(types.ErrInvalidSubmission, "answer targets a different item",
			goerr.V("session_id", session.ID), goerr.V("item_id", itemID))
	}

	now := uc.now()
	correct := item.Score(answer)
	session.Responses = append(session.Responses, model.ItemResponse{
		ItemID:     item.ID,
		Answer:     answer,
		Correct:    correct,
		AnsweredAt: now,
	})
	session.Position++
	session.LastActivityAt = now
	session.UpdatedAt = now

	res := &SubmitResult{
		Correct:       correct,
		CorrectAnswer: item.Answer,
		Explanation:   item.Explanation,
	}

	if session.Position >= len(session.Items) {
		session.Status = types.SessionStatusCompleted
	}

	// The session commits before mastery moves. A failed commit leaves
	// mastery untouched, so retrying the submission cannot feed the
	// same answer into the engine twice.
	if _, err := uc.repo.Session().Update(ctx, session); err != nil {
		return nil, goerr.Wrap(err, "failed to update session", goerr.V("session_id", session.ID))
	}

	if session.Status == types.SessionStatusCompleted {
		if err := uc.applyMastery(ctx, session); err != nil {
			return nil, err
		}
		res.Completed = true
		res.Summary = buildSummary(session, now)
		logging.From(ctx).Info("quiz session completed",
			"session_id", session.ID,
			"learner_id", session.LearnerID,
			"topic", session.Topic,
			"score", res.Summary.Score)
	}

	return res, nil
}

// Abandon terminates a session explicitly. Abandoning an already
// abandoned session is a no-op.
func (uc *QuizUseCase) Abandon(ctx context.Context, learnerID types.LearnerID, sessionID types.SessionID) error {
	session, unlock, err := uc.acquire(ctx, learnerID, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	switch session.Status {
	case types.SessionStatusAbandoned:
		return nil
	case types.SessionStatusCompleted:
		return goerr.New("completed session cannot be abandoned", goerr.V("session_id", session.ID))
	}

	return uc.expire(ctx, session)
}

// Get returns a learner's session.
func (uc *QuizUseCase) Get(ctx context.Context, learnerID types.LearnerID, sessionID types.SessionID) (*model.QuizSession, error) {
	session, err := uc.repo.Session().Get(ctx, sessionID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
	}
	if session.LearnerID != learnerID {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "session belongs to another learner",
			goerr.V("session_id", sessionID))
	}
	return session, nil
}

// acquire loads a learner's session and takes its (learner, topic)
// lock, re-reading the session under the lock.
func (uc *QuizUseCase) acquire(ctx context.Context, learnerID types.LearnerID, sessionID types.SessionID) (*model.QuizSession, func(), error) {
	session, err := uc.Get(ctx, learnerID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	key := sessionKey(session.LearnerID, session.Topic)
	uc.sessions.Lock(key)

	session, err = uc.repo.Session().Get(ctx, sessionID)
	if err != nil {
		uc.sessions.Unlock(key)
		return nil, nil, goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
	}

	return session, func() { uc.sessions.Unlock(key) }, nil
}

// ensureLive rejects terminal sessions and lazily abandons expired
// ones.
func (uc *QuizUseCase) ensureLive(ctx context.Context, session *model.QuizSession) error {
	if session.ExpiredAt(uc.now(), uc.cfg.Timeout()) {
		if err := uc.expire(ctx, session); err != nil {
			return err
		}
	}
	if session.Status.IsTerminal() {
		return goerr.New("session is no longer active",
			goerr.V("session_id", session.ID), goerr.V("status", session.Status))
	}
	return nil
}

func (uc *QuizUseCase) expire(ctx context.Context, session *model.QuizSession) error {
	now := uc.now()
	session.Status = types.SessionStatusAbandoned
	session.UpdatedAt = now
	if _, err := uc.repo.Session().Update(ctx, session); err != nil {
		return goerr.Wrap(err, "failed to abandon session", goerr.V("session_id", session.ID))
	}
	logging.From(ctx).Info("quiz session abandoned",
		"session_id", session.ID,
		"learner_id", session.LearnerID,
		"topic", session.Topic,
		"answered", len(session.Responses))
	return nil
}

// applyMastery feeds each scored response into the adaptive engine.
func (uc *QuizUseCase) applyMastery(ctx context.Context, session *model.QuizSession) error {
	itemsByID := make(map[types.ItemID]*model.QuizItem, len(session.Items))
	for i := range session.Items {
		itemsByID[session.Items[i].ID] = &session.Items[i]
	}

	for _, resp := range session.Responses {
		item, ok := itemsByID[resp.ItemID]
		if !ok {
			continue
		}
		if _, err := uc.engine.Update(ctx, session.LearnerID, item.Topic, resp.Correct, item.Difficulty); err != nil {
			return goerr.Wrap(err, "failed to update mastery",
				goerr.V("learner_id", session.LearnerID), goerr.V("topic", item.Topic))
		}
	}
	return nil
}

// buildSummary aggregates a completed session for the export layer.
func buildSummary(session *model.QuizSession, completedAt time.Time) *model.SessionSummary {
	perTopic := make(map[types.Topic]*model.TopicBreakdown)
	itemsByID := make(map[types.ItemID]*model.QuizItem, len(session.Items))
	for i := range session.Items {
		itemsByID[session.Items[i].ID] = &session.Items[i]
	}

	for _, resp := range session.Responses {
		item, ok := itemsByID[resp.ItemID]
		if !ok {
			continue
		}
		row, ok := perTopic[item.Topic]
		if !ok {
			row = &model.TopicBreakdown{Topic: item.Topic}
			perTopic[item.Topic] = row
		}
		row.Total++
		if resp.Correct {
			row.Correct++
		}
	}

	breakdown := make([]model.TopicBreakdown, 0, len(perTopic))
	for _, row := range perTopic {
		breakdown = append(breakdown, *row)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].Topic < breakdown[j].Topic
	})

	var citations []types.ChunkRef
	seen := make(map[string]bool)
	for i := range session.Items {
		for _, ref := range session.Items[i].SourceChunks {
			if key := ref.String(); !seen[key] {
				seen[key] = true
				citations = append(citations, ref)
			}
		}
	}

	total := len(session.Items)
	correct := session.CorrectCount()
	summary := &model.SessionSummary{
		SessionID:   session.ID,
		LearnerID:   session.LearnerID,
		Topic:       session.Topic,
		Total:       total,
		Correct:     correct,
		Breakdown:   breakdown,
		Citations:   citations,
		CompletedAt: completedAt,
	}
	if total > 0 {
		summary.Score = float64(correct) / float64(total)
	}
	return summary
}

// foundationalOrder prefers chunks from earlier document positions,
// keeping score order within the same position band.
func foundationalOrder(hits []model.Hit) []model.Hit {
	ordered := make([]model.Hit, len(hits))
	copy(ordered, hits)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChunkRef.Index < ordered[j].ChunkRef.Index
	})
	return ordered
}
