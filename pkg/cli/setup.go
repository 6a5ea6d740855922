package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/sahayak-lab/sahayak/pkg/cli/config"
	"github.com/sahayak-lab/sahayak/pkg/domain/interfaces"
	"github.com/sahayak-lab/sahayak/pkg/service/adaptive"
	"github.com/sahayak-lab/sahayak/pkg/service/chunker"
	"github.com/sahayak-lab/sahayak/pkg/service/generator"
	"github.com/sahayak-lab/sahayak/pkg/service/index"
	"github.com/sahayak-lab/sahayak/pkg/service/retriever"
	"github.com/sahayak-lab/sahayak/pkg/usecase"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// engineSetup groups the CLI flag structs every engine-touching command
// shares.
type engineSetup struct {
	repoCfg   config.Repository
	geminiCfg config.Gemini
	ollamaCfg config.Ollama
	engineCfg config.Engine
}

func (s *engineSetup) flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, s.repoCfg.Flags()...)
	flags = append(flags, s.geminiCfg.Flags()...)
	flags = append(flags, s.ollamaCfg.Flags()...)
	flags = append(flags, s.engineCfg.Flags()...)
	return flags
}

// build wires the full pipeline. The returned repository must be closed
// by the caller.
func (s *engineSetup) build(ctx context.Context) (*usecase.UseCases, interfaces.Repository, error) {
	repo, err := s.repoCfg.Configure(ctx)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize repository")
	}

	uc, err := s.buildWithRepo(ctx, repo)
	if err != nil {
		closeRepo(repo)
		return nil, nil, err
	}

	return uc, repo, nil
}

func (s *engineSetup) buildWithRepo(ctx context.Context, repo interfaces.Repository) (*usecase.UseCases, error) {
	online, err := s.geminiCfg.Configure(ctx)
	if err != nil {
		return nil, err
	}
	local, err := s.ollamaCfg.Configure()
	if err != nil {
		return nil, err
	}
	if online == nil && local == nil {
		return nil, goerr.New("an LLM backend is required: configure gemini-project or ollama-base-url")
	}

	// Embeddings come from the online client when available; a local
	// only deployment embeds with Ollama.
	var embedder gollem.LLMClient
	if online != nil {
		embedder = online
		logging.Default().Info("Gemini backend enabled")
	} else {
		embedder = local
		logging.Default().Info("Running on local Ollama backend only")
	}

	cfg, err := s.engineCfg.Configure()
	if err != nil {
		return nil, err
	}

	chk, err := chunker.New(cfg.Chunk)
	if err != nil {
		return nil, err
	}
	idx, err := index.New(embedder, repo, cfg.Embedding, s.engineCfg.ModelVersion())
	if err != nil {
		return nil, err
	}
	ret, err := retriever.New(idx, cfg.Retrieval)
	if err != nil {
		return nil, err
	}

	genOpts := []generator.Option{
		generator.WithDocumentRepository(repo.Document()),
	}
	if local != nil {
		genOpts = append(genOpts, generator.WithLocalClient(local))
	}
	gen, err := generator.New(online, genOpts...)
	if err != nil {
		return nil, err
	}

	eng, err := adaptive.New(repo.Mastery(), cfg.Mastery)
	if err != nil {
		return nil, err
	}

	return usecase.New(repo, chk, idx, ret, gen, eng, usecase.WithEngineConfig(cfg)), nil
}

func closeRepo(repo interfaces.Repository) {
	if err := repo.Close(); err != nil {
		logging.Default().Error("failed to close repository", "error", err.Error())
	}
}
