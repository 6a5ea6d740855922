package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	domainConfig "github.com/sahayak-lab/sahayak/pkg/domain/model/config"
	"github.com/urfave/cli/v3"
)

// Engine holds CLI flags for the engine tuning configuration
type Engine struct {
	path         string
	modelVersion string
}

// Flags returns CLI flags for engine configuration
func (e *Engine) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "engine-config",
			Usage:       "Path to an engine tuning TOML file (defaults apply when omitted)",
			Sources:     cli.EnvVars("SAHAYAK_ENGINE_CONFIG"),
			Destination: &e.path,
		},
		&cli.StringFlag{
			Name:        "embedding-model-version",
			Usage:       "Identifier of the embedding model stored alongside vectors",
			Value:       "text-embedding-004",
			Sources:     cli.EnvVars("SAHAYAK_EMBEDDING_MODEL_VERSION"),
			Destination: &e.modelVersion,
		},
	}
}

// ModelVersion returns the embedding model identifier
func (e *Engine) ModelVersion() string {
	return e.modelVersion
}

// Configure loads the engine configuration from the TOML file, falling
// back to defaults when no path is given. Absent keys keep their
// default values.
func (e *Engine) Configure() (*domainConfig.EngineConfig, error) {
	cfg := domainConfig.Default()

	if e.path != "" {
		// #nosec G304 - path is expected to be provided by CLI argument
		data, err := os.ReadFile(e.path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read engine config file", goerr.V("path", e.path))
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, goerr.Wrap(err, "failed to parse engine config TOML", goerr.V("path", e.path))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "engine config validation failed", goerr.V("path", e.path))
	}

	return cfg, nil
}
