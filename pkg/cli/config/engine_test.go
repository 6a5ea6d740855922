package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/sahayak-lab/sahayak/pkg/cli/config"
)

func writeEngineFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600)).Required()
	return path
}

func TestEngineDefaults(t *testing.T) {
	var e config.Engine

	cfg, err := e.Configure()
	gt.NoError(t, err).Required()
	gt.Value(t, cfg.Chunk.MinTokens).Equal(200)
	gt.Value(t, cfg.Chunk.MaxTokens).Equal(500)
	gt.Value(t, cfg.Retrieval.TopK).Equal(5)
	gt.Value(t, cfg.Session.DefaultItemCount).Equal(5)
}

func TestEngineFromTOML(t *testing.T) {
	path := writeEngineFile(t, `
[chunk]
min_tokens = 100
max_tokens = 300

[mastery]
smoothing = 0.2
`)

	var e config.Engine
	e.SetPath(path)

	cfg, err := e.Configure()
	gt.NoError(t, err).Required()
	gt.Value(t, cfg.Chunk.MinTokens).Equal(100)
	gt.Value(t, cfg.Chunk.MaxTokens).Equal(300)
	gt.Value(t, cfg.Mastery.Smoothing).Equal(0.2)
	// Untouched sections keep their defaults.
	gt.Value(t, cfg.Retrieval.TopK).Equal(5)
}

func TestEngineRejectsInvalidBudgets(t *testing.T) {
	path := writeEngineFile(t, `
[chunk]
min_tokens = 500
max_tokens = 100
`)

	var e config.Engine
	e.SetPath(path)

	_, err := e.Configure()
	gt.Error(t, err)
}

func TestEngineMissingFile(t *testing.T) {
	var e config.Engine
	e.SetPath("/no/such/file.toml")

	_, err := e.Configure()
	gt.Error(t, err)
}
