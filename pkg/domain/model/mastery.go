package model

import (
	"time"

	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

// MasteryRecord is the per-(learner, topic) competence estimate.
// Updated only by the adaptive scoring engine after an item is scored.
type MasteryRecord struct {
	LearnerID types.LearnerID
	Topic     types.Topic
	Estimate  float64 // Exponentially weighted correctness in [0, 1]
	Attempts  int
	UpdatedAt time.Time
}

// TopicMastery is one row of a learner report, weakest topics first.
type TopicMastery struct {
	Topic    types.Topic
	Estimate float64
	Attempts int
}

// LearnerReport aggregates mastery across topics for the export layer.
type LearnerReport struct {
	LearnerID       types.LearnerID
	Overall         float64
	Attempts        int
	Topics          []TopicMastery // Sorted ascending by estimate
	Recommendations []string
}
