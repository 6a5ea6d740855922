package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/sahayak-lab/sahayak/pkg/service/llm/ollama"
	"github.com/urfave/cli/v3"
)

// Gemini holds configuration for the online Gemini LLM client
type Gemini struct {
	projectID string
	location  string
}

// Flags returns CLI flags for Gemini configuration
func (g *Gemini) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Sources:     cli.EnvVars("SAHAYAK_GEMINI_PROJECT"),
			Destination: &g.projectID,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Sources:     cli.EnvVars("SAHAYAK_GEMINI_LOCATION"),
			Destination: &g.location,
		},
	}
}

// LogAttrs returns log attributes for the Gemini configuration
func (g *Gemini) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("project_id", g.projectID),
		slog.String("location", g.location),
	}
}

// Configure creates a new Gemini LLM client from the configured flags.
// Returns nil if projectID is not configured.
func (g *Gemini) Configure(ctx context.Context) (gollem.LLMClient, error) {
	if g.projectID == "" {
		return nil, nil
	}

	client, err := gemini.New(ctx, g.projectID, g.location)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}

	return client, nil
}

// Ollama holds configuration for the local fallback LLM client
type Ollama struct {
	baseURL    string
	model      string
	embedModel string
}

// Flags returns CLI flags for Ollama configuration
func (o *Ollama) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ollama-base-url",
			Usage:       "Base URL of a local Ollama server (enables offline fallback)",
			Sources:     cli.EnvVars("SAHAYAK_OLLAMA_BASE_URL"),
			Destination: &o.baseURL,
		},
		&cli.StringFlag{
			Name:        "ollama-model",
			Usage:       "Ollama model for generation",
			Sources:     cli.EnvVars("SAHAYAK_OLLAMA_MODEL"),
			Destination: &o.model,
		},
		&cli.StringFlag{
			Name:        "ollama-embedding-model",
			Usage:       "Ollama model for embeddings",
			Sources:     cli.EnvVars("SAHAYAK_OLLAMA_EMBEDDING_MODEL"),
			Destination: &o.embedModel,
		},
	}
}

// Configure creates a new Ollama client. Returns nil if no base URL is
// configured.
func (o *Ollama) Configure() (gollem.LLMClient, error) {
	if o.baseURL == "" {
		return nil, nil
	}

	var opts []ollama.Option
	if o.model != "" {
		opts = append(opts, ollama.WithModel(o.model))
	}
	if o.embedModel != "" {
		opts = append(opts, ollama.WithEmbeddingModel(o.embedModel))
	}

	client, err := ollama.New(o.baseURL, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Ollama client")
	}

	return client, nil
}
