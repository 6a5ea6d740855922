package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/sahayak-lab/sahayak/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdIngest() *cli.Command {
	var topic string
	var sourceName string
	var language string
	var setup engineSetup

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "topic",
			Usage:       "Topic the documents belong to (required)",
			Required:    true,
			Sources:     cli.EnvVars("SAHAYAK_INGEST_TOPIC"),
			Destination: &topic,
		},
		&cli.StringFlag{
			Name:        "source-name",
			Usage:       "Source name stored with the document (defaults to the file name)",
			Destination: &sourceName,
		},
		&cli.StringFlag{
			Name:        "language",
			Usage:       "BCP 47 language tag of the documents",
			Destination: &language,
		},
	}
	flags = append(flags, setup.flags()...)

	return &cli.Command{
		Name:      "ingest",
		Aliases:   []string{"i"},
		Usage:     "Ingest extracted text files into the knowledge base",
		ArgsUsage: "FILE [FILE...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			files := c.Args().Slice()
			if len(files) == 0 {
				return goerr.New("at least one text file is required")
			}
			if sourceName != "" && len(files) > 1 {
				return goerr.New("source-name can only be used with a single file")
			}

			uc, repo, err := setup.build(ctx)
			if err != nil {
				return err
			}
			defer closeRepo(repo)

			for _, file := range files {
				// #nosec G304 - path is expected to be provided by CLI argument
				data, err := os.ReadFile(file)
				if err != nil {
					return goerr.Wrap(err, "failed to read input file", goerr.V("path", file))
				}

				name := sourceName
				if name == "" {
					name = filepath.Base(file)
				}

				res, err := uc.Ingest.Ingest(ctx, &usecase.IngestInput{
					SourceName: name,
					Topic:      types.Topic(topic),
					Text:       string(data),
					Language:   language,
				})
				if err != nil {
					return goerr.Wrap(err, "failed to ingest document", goerr.V("path", file))
				}

				color.Green("✓ %s", name)
				fmt.Printf("  version: %d  chunks: %d  embedded: %d  reused: %d\n",
					res.Document.Version, res.ChunkCount, res.NewEmbeddings, res.ReusedEmbeddings)
			}

			return nil
		},
	}
}
