package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// EngineConfig holds the policy parameters of the core. The relevance
// floor, dedup threshold and mastery band are tunables, not structure,
// so they are loaded from TOML rather than hardcoded.
type EngineConfig struct {
	Chunk     ChunkConfig     `toml:"chunk"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Mastery   MasteryConfig   `toml:"mastery"`
	Session   SessionConfig   `toml:"session"`
}

// ChunkConfig bounds chunk sizes. Budgets are measured by the token
// estimator configured on the chunker (runes by default).
type ChunkConfig struct {
	MinTokens int `toml:"min_tokens"`
	MaxTokens int `toml:"max_tokens"`
}

// EmbeddingConfig fixes the vector dimension of the index.
type EmbeddingConfig struct {
	Dimension int `toml:"dimension"`
}

// RetrievalConfig tunes the retriever.
type RetrievalConfig struct {
	TopK           int     `toml:"top_k"`
	RelevanceFloor float64 `toml:"relevance_floor"`
	DedupThreshold float64 `toml:"dedup_threshold"`
}

// MasteryConfig tunes the adaptive scoring engine. The target band is
// the expected success range the difficulty bias aims to keep the
// learner inside.
type MasteryConfig struct {
	Smoothing  float64 `toml:"smoothing"`
	TargetLow  float64 `toml:"target_low"`
	TargetHigh float64 `toml:"target_high"`
}

// SessionConfig tunes quiz sessions.
type SessionConfig struct {
	TimeoutMinutes   int `toml:"timeout_minutes"`
	DefaultItemCount int `toml:"default_item_count"`
}

// Timeout returns the inactivity window after which an active session
// is abandoned.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// Default returns the engine configuration used when no TOML file is
// given. Chunk budgets follow the original curriculum pipeline (500
// character chunks); the mastery band targets 60-80% success.
func Default() *EngineConfig {
	return &EngineConfig{
		Chunk:     ChunkConfig{MinTokens: 200, MaxTokens: 500},
		Embedding: EmbeddingConfig{Dimension: 768},
		Retrieval: RetrievalConfig{TopK: 5, RelevanceFloor: 0.3, DedupThreshold: 0.95},
		Mastery:   MasteryConfig{Smoothing: 0.3, TargetLow: 0.6, TargetHigh: 0.8},
		Session:   SessionConfig{TimeoutMinutes: 30, DefaultItemCount: 5},
	}
}

// Validate checks the EngineConfig is internally consistent.
func (c *EngineConfig) Validate() error {
	if c.Chunk.MinTokens <= 0 {
		return goerr.New("chunk min_tokens must be positive", goerr.V("min", c.Chunk.MinTokens))
	}
	if c.Chunk.MaxTokens < c.Chunk.MinTokens {
		return goerr.New("chunk max_tokens must be >= min_tokens",
			goerr.V("min", c.Chunk.MinTokens), goerr.V("max", c.Chunk.MaxTokens))
	}
	if c.Embedding.Dimension <= 0 {
		return goerr.New("embedding dimension must be positive", goerr.V("dimension", c.Embedding.Dimension))
	}
	if c.Retrieval.TopK <= 0 {
		return goerr.New("retrieval top_k must be positive", goerr.V("top_k", c.Retrieval.TopK))
	}
	if c.Retrieval.RelevanceFloor < 0 || c.Retrieval.RelevanceFloor > 1 {
		return goerr.New("relevance_floor must be in [0, 1]", goerr.V("floor", c.Retrieval.RelevanceFloor))
	}
	if c.Retrieval.DedupThreshold <= c.Retrieval.RelevanceFloor || c.Retrieval.DedupThreshold > 1 {
		return goerr.New("dedup_threshold must be in (relevance_floor, 1]",
			goerr.V("threshold", c.Retrieval.DedupThreshold))
	}
	if c.Mastery.Smoothing <= 0 || c.Mastery.Smoothing >= 1 {
		return goerr.New("mastery smoothing must be in (0, 1)", goerr.V("smoothing", c.Mastery.Smoothing))
	}
	if c.Mastery.TargetLow <= 0 || c.Mastery.TargetHigh >= 1 || c.Mastery.TargetLow >= c.Mastery.TargetHigh {
		return goerr.New("mastery target band must satisfy 0 < low < high < 1",
			goerr.V("low", c.Mastery.TargetLow), goerr.V("high", c.Mastery.TargetHigh))
	}
	if c.Session.TimeoutMinutes <= 0 {
		return goerr.New("session timeout_minutes must be positive", goerr.V("minutes", c.Session.TimeoutMinutes))
	}
	if c.Session.DefaultItemCount <= 0 {
		return goerr.New("session default_item_count must be positive", goerr.V("count", c.Session.DefaultItemCount))
	}
	return nil
}
