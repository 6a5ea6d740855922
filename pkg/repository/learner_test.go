package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

func newTestLearnerID() types.LearnerID {
	return types.LearnerID(fmt.Sprintf("learner-%d", time.Now().UnixNano()))
}

func newTestSession(learnerID types.LearnerID, topic types.Topic) *model.QuizSession {
	return &model.QuizSession{
		LearnerID: learnerID,
		Topic:     topic,
		Status:    types.SessionStatusCreated,
		Items: []model.QuizItem{
			{
				ID:         types.NewItemID(),
				Question:   "What is the slope of y = 2x + 1?",
				Options:    []string{"1", "2", "3", "4"},
				Answer:     "2",
				Topic:      topic,
				Difficulty: types.DifficultyMedium,
				SourceChunks: []types.ChunkRef{
					{DocumentID: "doc-a", Index: 0},
				},
			},
			{
				ID:         types.NewItemID(),
				Question:   "What is the y-intercept of y = 2x + 1?",
				Options:    []string{"0", "1", "2", "-1"},
				Answer:     "1",
				Topic:      topic,
				Difficulty: types.DifficultyEasy,
			},
		},
	}
}

func runSessionRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns ID and timestamps", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Session().Create(ctx, newTestSession(newTestLearnerID(), "algebra"))
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if created.ID == "" {
			t.Error("expected non-empty session ID")
		}
		if created.CreatedAt.IsZero() {
			t.Error("expected non-zero CreatedAt")
		}
		if created.LastActivityAt.IsZero() {
			t.Error("expected non-zero LastActivityAt")
		}
	})

	t.Run("Get round-trips items and responses", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		session := newTestSession(newTestLearnerID(), "algebra")
		session.Responses = []model.ItemResponse{
			{
				ItemID:     session.Items[0].ID,
				Answer:     "2",
				Correct:    true,
				AnsweredAt: time.Now().UTC().Truncate(time.Second),
			},
		}
		session.Position = 1
		session.Status = types.SessionStatusActive

		created, err := repo.Session().Create(ctx, session)
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		retrieved, err := repo.Session().Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if len(retrieved.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(retrieved.Items))
		}
		if retrieved.Items[0].Answer != "2" {
			t.Errorf("expected answer key 2, got %s", retrieved.Items[0].Answer)
		}
		if len(retrieved.Items[0].Options) != 4 {
			t.Errorf("expected 4 options, got %d", len(retrieved.Items[0].Options))
		}
		if len(retrieved.Items[0].SourceChunks) != 1 {
			t.Fatalf("expected 1 source chunk, got %d", len(retrieved.Items[0].SourceChunks))
		}
		if retrieved.Items[0].SourceChunks[0].DocumentID != "doc-a" {
			t.Errorf("expected source chunk doc-a, got %s", retrieved.Items[0].SourceChunks[0].DocumentID)
		}
		if len(retrieved.Responses) != 1 {
			t.Fatalf("expected 1 response, got %d", len(retrieved.Responses))
		}
		if !retrieved.Responses[0].Correct {
			t.Error("expected response to be correct")
		}
		if retrieved.Position != 1 {
			t.Errorf("expected position 1, got %d", retrieved.Position)
		}
		if retrieved.Status != types.SessionStatusActive {
			t.Errorf("expected status active, got %s", retrieved.Status)
		}
	})

	t.Run("Get returns ErrNotFound for missing session", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Session().Get(ctx, types.NewSessionID())
		if !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetActive finds only non-terminal sessions", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		learnerID := newTestLearnerID()

		done := newTestSession(learnerID, "algebra")
		done.Status = types.SessionStatusCompleted
		if _, err := repo.Session().Create(ctx, done); err != nil {
			t.Fatalf("failed to create completed session: %v", err)
		}

		if _, err := repo.Session().GetActive(ctx, learnerID, "algebra"); !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound with only terminal sessions, got %v", err)
		}

		active, err := repo.Session().Create(ctx, newTestSession(learnerID, "algebra"))
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		found, err := repo.Session().GetActive(ctx, learnerID, "algebra")
		if err != nil {
			t.Fatalf("failed to get active session: %v", err)
		}
		if found.ID != active.ID {
			t.Errorf("expected session %s, got %s", active.ID, found.ID)
		}
	})

	t.Run("GetActive scopes by topic", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		learnerID := newTestLearnerID()
		if _, err := repo.Session().Create(ctx, newTestSession(learnerID, "algebra")); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		if _, err := repo.Session().GetActive(ctx, learnerID, "geometry"); !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound for other topic, got %v", err)
		}
	})

	t.Run("Update replaces session state", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Session().Create(ctx, newTestSession(newTestLearnerID(), "algebra"))
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		created.Status = types.SessionStatusAbandoned
		created.Position = 2
		if _, err := repo.Session().Update(ctx, created); err != nil {
			t.Fatalf("failed to update session: %v", err)
		}

		retrieved, err := repo.Session().Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if retrieved.Status != types.SessionStatusAbandoned {
			t.Errorf("expected status abandoned, got %s", retrieved.Status)
		}
		if retrieved.Position != 2 {
			t.Errorf("expected position 2, got %d", retrieved.Position)
		}
	})

	t.Run("Update of missing session returns ErrNotFound", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		session := newTestSession(newTestLearnerID(), "algebra")
		session.ID = types.NewSessionID()
		if _, err := repo.Session().Update(ctx, session); !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func runMasteryRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put and Get round-trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		learnerID := newTestLearnerID()
		rec := &model.MasteryRecord{
			LearnerID: learnerID,
			Topic:     "algebra",
			Estimate:  0.72,
			Attempts:  15,
		}

		stored, err := repo.Mastery().Put(ctx, rec)
		if err != nil {
			t.Fatalf("failed to put mastery record: %v", err)
		}
		if stored.UpdatedAt.IsZero() {
			t.Error("expected non-zero UpdatedAt")
		}

		retrieved, err := repo.Mastery().Get(ctx, learnerID, "algebra")
		if err != nil {
			t.Fatalf("failed to get mastery record: %v", err)
		}
		if retrieved.Estimate != 0.72 {
			t.Errorf("expected estimate 0.72, got %f", retrieved.Estimate)
		}
		if retrieved.Attempts != 15 {
			t.Errorf("expected 15 attempts, got %d", retrieved.Attempts)
		}
	})

	t.Run("Get returns ErrNotFound for missing record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Mastery().Get(ctx, newTestLearnerID(), "algebra")
		if !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Put replaces the existing record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		learnerID := newTestLearnerID()
		for _, estimate := range []float64{0.5, 0.65} {
			if _, err := repo.Mastery().Put(ctx, &model.MasteryRecord{
				LearnerID: learnerID,
				Topic:     "algebra",
				Estimate:  estimate,
				Attempts:  1,
			}); err != nil {
				t.Fatalf("failed to put mastery record: %v", err)
			}
		}

		retrieved, err := repo.Mastery().Get(ctx, learnerID, "algebra")
		if err != nil {
			t.Fatalf("failed to get mastery record: %v", err)
		}
		if retrieved.Estimate != 0.65 {
			t.Errorf("expected estimate 0.65, got %f", retrieved.Estimate)
		}
	})

	t.Run("ListByLearner returns records across topics", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		learnerID := newTestLearnerID()
		for _, topic := range []types.Topic{"algebra", "geometry", "chemistry"} {
			if _, err := repo.Mastery().Put(ctx, &model.MasteryRecord{
				LearnerID: learnerID,
				Topic:     topic,
				Estimate:  0.5,
				Attempts:  3,
			}); err != nil {
				t.Fatalf("failed to put mastery record: %v", err)
			}
		}

		records, err := repo.Mastery().ListByLearner(ctx, learnerID)
		if err != nil {
			t.Fatalf("failed to list mastery records: %v", err)
		}
		if len(records) != 3 {
			t.Errorf("expected 3 records, got %d", len(records))
		}
	})
}

func TestMemorySessionRepository(t *testing.T) {
	runSessionRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreSessionRepository(t *testing.T) {
	runSessionRepositoryTest(t, newFirestoreRepository)
}

func TestMemoryMasteryRepository(t *testing.T) {
	runMasteryRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreMasteryRepository(t *testing.T) {
	runMasteryRepositoryTest(t, newFirestoreRepository)
}
