package adaptive

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/domain/model"
	"github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
)

// priorEstimate seeds learners without history in the middle of the
// scale so early updates move the estimate either way.
const priorEstimate = 0.5

// Engine maintains per-(learner, topic) mastery estimates and biases
// future item difficulty. It never touches the index or chunks.
type Engine struct {
	mastery interfaces.MasteryRepository
	cfg     config.MasteryConfig
	now     func() time.Time
}

type Option func(*Engine)

// WithClock overrides record timestamping, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(mastery interfaces.MasteryRepository, cfg config.MasteryConfig, opts ...Option) (*Engine, error) {
	if mastery == nil {
		return nil, goerr.New("mastery repository is required")
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing >= 1 {
		return nil, goerr.New("mastery smoothing must be in (0, 1)", goerr.V("smoothing", cfg.Smoothing))
	}
	if cfg.TargetLow <= 0 || cfg.TargetHigh >= 1 || cfg.TargetLow >= cfg.TargetHigh {
		return nil, goerr.New("mastery target band must satisfy 0 < low < high < 1",
			goerr.V("low", cfg.TargetLow), goerr.V("high", cfg.TargetHigh))
	}

	e := &Engine{
		mastery: mastery,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Band returns the configured target success band.
func (e *Engine) Band() (low, high float64) {
	return e.cfg.TargetLow, e.cfg.TargetHigh
}

// difficultyWeight scales the EWMA step. Being right on hard material
// is stronger evidence of mastery than being right on easy material;
// being wrong on easy material is stronger evidence of a gap than
// being wrong on hard material.
func difficultyWeight(correct bool, difficulty types.Difficulty) float64 {
	switch difficulty {
	case types.DifficultyEasy:
		if correct {
			return 0.6
		}
		return 1.4
	case types.DifficultyHard:
		if correct {
			return 1.4
		}
		return 0.6
	default:
		return 1.0
	}
}

// Update folds one scored response into the mastery estimate. The
// estimate stays in [0, 1] after any sequence of updates.
func (e *Engine) Update(ctx context.Context, learnerID types.LearnerID, topic types.Topic, correct bool, difficulty types.Difficulty) (*model.MasteryRecord, error) {
	if !difficulty.IsValid() {
		return nil, goerr.New("invalid difficulty", goerr.V("difficulty", difficulty))
	}

	rec, err := e.mastery.Get(ctx, learnerID, topic)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(err, "failed to load mastery record",
				goerr.V("learner_id", learnerID), goerr.V("topic", topic))
		}
		rec = &model.MasteryRecord{
			LearnerID: learnerID,
			Topic:     topic,
			Estimate:  priorEstimate,
		}
	}

	outcome := 0.0
	if correct {
		outcome = 1.0
	}

	step := e.cfg.Smoothing * difficultyWeight(correct, difficulty)
	if step > 1 {
		step = 1
	}

	rec.Estimate = clamp01((1-step)*rec.Estimate + step*outcome)
	rec.Attempts++
	rec.UpdatedAt = e.now().UTC()

	stored, err := e.mastery.Put(ctx, rec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store mastery record",
			goerr.V("learner_id", learnerID), goerr.V("topic", topic))
	}

	return stored, nil
}

// Bias derives the difficulty profile keeping expected success inside
// the configured target band. Learners without history get the default
// profile.
func (e *Engine) Bias(ctx context.Context, learnerID types.LearnerID, topic types.Topic) (*model.DifficultyProfile, error) {
	rec, err := e.mastery.Get(ctx, learnerID, topic)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return model.DefaultDifficultyProfile(), nil
		}
		return nil, goerr.Wrap(err, "failed to load mastery record",
			goerr.V("learner_id", learnerID), goerr.V("topic", topic))
	}

	switch {
	case rec.Estimate > e.cfg.TargetHigh:
		return &model.DifficultyProfile{
			Target: types.DifficultyHard,
			Mix: map[types.Difficulty]float64{
				types.DifficultyEasy:   0.1,
				types.DifficultyMedium: 0.3,
				types.DifficultyHard:   0.6,
			},
		}, nil
	case rec.Estimate < e.cfg.TargetLow:
		return &model.DifficultyProfile{
			Target: types.DifficultyEasy,
			Mix: map[types.Difficulty]float64{
				types.DifficultyEasy:   0.6,
				types.DifficultyMedium: 0.3,
				types.DifficultyHard:   0.1,
			},
			Foundational: true,
		}, nil
	default:
		return model.DefaultDifficultyProfile(), nil
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
