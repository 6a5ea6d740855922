package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdStats() *cli.Command {
	var setup engineSetup

	return &cli.Command{
		Name:  "stats",
		Usage: "Show knowledge base statistics",
		Flags: setup.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, repo, err := setup.build(ctx)
			if err != nil {
				return err
			}
			defer closeRepo(repo)

			stats, err := uc.Ingest.Stats(ctx)
			if err != nil {
				return err
			}

			color.Cyan("documents:  %d (%d active)", stats.Documents, stats.ActiveDocuments)
			color.Cyan("chunks:     %d", stats.Chunks)
			color.Cyan("embeddings: %d", stats.Embeddings)

			topics := make([]types.Topic, 0, len(stats.ChunksByTopic))
			for topic := range stats.ChunksByTopic {
				topics = append(topics, topic)
			}
			sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
			for _, topic := range topics {
				fmt.Printf("  %s: %d chunks\n", topic, stats.ChunksByTopic[topic])
			}

			return nil
		},
	}
}
