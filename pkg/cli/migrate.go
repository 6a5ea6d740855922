package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/cli/config"
	"github.com/sahayak-lab/sahayak/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var projectID string
	var databaseID string
	var dryRun bool
	var engineCfg config.Engine

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required)",
			Required:    true,
			Sources:     cli.EnvVars("SAHAYAK_FIRESTORE_PROJECT_ID"),
			Destination: &projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Sources:     cli.EnvVars("SAHAYAK_FIRESTORE_DATABASE_ID"),
			Destination: &databaseID,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview changes without applying",
			Destination: &dryRun,
		},
	}
	flags = append(flags, engineCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate Firestore indexes",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			logger.Info("Migrate configuration",
				"projectID", projectID,
				"databaseID", databaseID,
				"dryRun", dryRun)

			cfg, err := engineCfg.Configure()
			if err != nil {
				return err
			}
			indexConfig := getIndexConfig(cfg.Embedding.Dimension)

			client, err := fireconf.NewClient(ctx, projectID, databaseID)
			if err != nil {
				return goerr.Wrap(err, "failed to create fireconf client")
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("failed to close fireconf client", "error", err.Error())
				}
			}()

			if dryRun {
				logger.Info("Dry run mode - previewing changes")
				plan, err := client.GetMigrationPlan(ctx, indexConfig)
				if err != nil {
					return goerr.Wrap(err, "failed to create migration plan")
				}

				if len(plan.Steps) == 0 {
					logger.Info("No changes required")
					return nil
				}

				for _, step := range plan.Steps {
					logger.Info("Migration step",
						"collection", step.Collection,
						"operation", step.Operation,
						"description", step.Description,
						"destructive", step.Destructive)
				}
			} else {
				logger.Info("Applying migrations")
				if err := client.Migrate(ctx, indexConfig); err != nil {
					return goerr.Wrap(err, "failed to apply migrations")
				}
				logger.Info("Migrations applied successfully")
			}

			return nil
		},
	}
}

// getIndexConfig returns the Firestore index configuration
func getIndexConfig(dimension int) *fireconf.Config {
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: "documents",
				Indexes: []fireconf.Index{
					// ListBySource: source_name ASC, version ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "source_name", Order: fireconf.OrderAscending},
							{Path: "version", Order: fireconf.OrderAscending},
						},
					},
				},
			},
			{
				Name: "chunks",
				Indexes: []fireconf.Index{
					// ListByDocument: document_id ASC, index ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "document_id", Order: fireconf.OrderAscending},
							{Path: "index", Order: fireconf.OrderAscending},
						},
					},
				},
			},
			{
				Name: "embeddings",
				Indexes: []fireconf.Index{
					// FindNearest scoped to a topic
					{
						Fields: []fireconf.IndexField{
							{Path: "topic", Order: fireconf.OrderAscending},
							{
								Path: "vector",
								Vector: &fireconf.VectorConfig{
									Dimension: dimension,
								},
							},
						},
					},
				},
			},
			{
				Name: "quiz_sessions",
				Indexes: []fireconf.Index{
					// GetActive: learner_id ASC, topic ASC, status IN
					{
						Fields: []fireconf.IndexField{
							{Path: "learner_id", Order: fireconf.OrderAscending},
							{Path: "topic", Order: fireconf.OrderAscending},
							{Path: "status", Order: fireconf.OrderAscending},
						},
					},
				},
			},
		},
	}
}
