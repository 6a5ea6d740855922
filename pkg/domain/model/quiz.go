package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

// QuizItem is one generated question. SourceChunks records the chunks
// the question was grounded on, for explainability.
type QuizItem struct {
	ID           types.ItemID
	Question     string
	Options      []string // Empty for free-text items
	Answer       string   // Correct answer key; must be one of Options for multiple choice
	Explanation  string
	Topic        types.Topic
	Difficulty   types.Difficulty
	SourceChunks []types.ChunkRef
}

// Validate checks the structural invariants of a generated item.
func (q *QuizItem) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return goerr.New("quiz item has no question text")
	}
	if strings.TrimSpace(q.Answer) == "" {
		return goerr.New("quiz item has no answer key", goerr.V("question", q.Question))
	}
	if !q.Difficulty.IsValid() {
		return goerr.New("quiz item has invalid difficulty",
			goerr.V("question", q.Question),
			goerr.V("difficulty", q.Difficulty))
	}
	if len(q.Options) > 0 && !q.keyInOptions() {
		return goerr.New("answer key is not among the options",
			goerr.V("question", q.Question),
			goerr.V("answer", q.Answer))
	}
	return nil
}

func (q *QuizItem) keyInOptions() bool {
	for _, opt := range q.Options {
		if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(q.Answer)) {
			return true
		}
	}
	return false
}

// Score compares a learner's answer with the answer key. Comparison is
// case-insensitive with surrounding whitespace ignored.
func (q *QuizItem) Score(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.Answer))
}

// ItemResponse records a learner's scored answer to one item.
type ItemResponse struct {
	ItemID     types.ItemID
	Answer     string
	Correct    bool
	AnsweredAt time.Time
}

// QuizSession owns the lifecycle of one quiz run. Owned exclusively by
// the learner who started it; at most one active session per
// (learner, topic) at a time.
type QuizSession struct {
	ID             types.SessionID
	LearnerID      types.LearnerID
	Topic          types.Topic
	Items          []QuizItem
	Position       int // Index of the currently presented item
	Responses      []ItemResponse
	Status         types.SessionStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt time.Time
}

// CurrentItem returns the item presented to the learner, or nil when
// the session is finished.
func (s *QuizSession) CurrentItem() *QuizItem {
	if s.Position < 0 || s.Position >= len(s.Items) {
		return nil
	}
	return &s.Items[s.Position]
}

// CorrectCount returns the number of correctly answered items so far.
func (s *QuizSession) CorrectCount() int {
	var n int
	for _, r := range s.Responses {
		if r.Correct {
			n++
		}
	}
	return n
}

// ExpiredAt reports whether the session's inactivity window has passed.
func (s *QuizSession) ExpiredAt(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || s.Status.IsTerminal() {
		return false
	}
	return now.Sub(s.LastActivityAt) > timeout
}

// TopicBreakdown is the per-topic slice of a session summary.
type TopicBreakdown struct {
	Topic   types.Topic
	Total   int
	Correct int
}

// SessionSummary is the structured result handed to the export layer
// when a session completes.
type SessionSummary struct {
	SessionID   types.SessionID
	LearnerID   types.LearnerID
	Topic       types.Topic
	Total       int
	Correct     int
	Score       float64 // Correct / Total
	Breakdown   []TopicBreakdown
	Citations   []types.ChunkRef
	CompletedAt time.Time
}

// DifficultyProfile parameterizes future item generation and retrieval
// for one learner. Produced by the adaptive scoring engine; never
// mutates the index or chunks.
type DifficultyProfile struct {
	Target types.Difficulty
	// Mix gives the desired share of items per difficulty. Weights are
	// relative, not required to sum to 1.
	Mix map[types.Difficulty]float64
	// Foundational requests retrieval emphasis on introductory chunks
	// (earlier positions in their documents).
	Foundational bool
}

// DefaultDifficultyProfile is used for learners without history.
func DefaultDifficultyProfile() *DifficultyProfile {
	return &DifficultyProfile{
		Target: types.DifficultyMedium,
		Mix: map[types.Difficulty]float64{
			types.DifficultyEasy:   0.25,
			types.DifficultyMedium: 0.5,
			types.DifficultyHard:   0.25,
		},
	}
}
