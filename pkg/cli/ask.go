package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sahayak-lab/sahayak/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdAsk() *cli.Command {
	var topic string
	var k int
	var setup engineSetup

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "topic",
			Usage:       "Restrict retrieval to one topic",
			Destination: &topic,
		},
		&cli.IntFlag{
			Name:        "k",
			Usage:       "Number of passages to retrieve (0 uses the configured default)",
			Destination: &k,
		},
	}
	flags = append(flags, setup.flags()...)

	return &cli.Command{
		Name:      "ask",
		Aliases:   []string{"q"},
		Usage:     "Ask a question against the knowledge base",
		ArgsUsage: "QUESTION",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("a question is required")
			}

			uc, repo, err := setup.build(ctx)
			if err != nil {
				return err
			}
			defer closeRepo(repo)

			answer, err := uc.Ask.Ask(ctx, query, types.Topic(topic), k)
			if err != nil {
				return err
			}

			fmt.Println(answer.Text)
			fmt.Println()

			if !answer.Grounded {
				color.Yellow("no grounding material found")
				return nil
			}

			color.Cyan("confidence: %.2f", answer.Confidence)
			if len(answer.Sources) > 0 {
				color.Cyan("sources: %s", strings.Join(answer.Sources, ", "))
			}
			return nil
		},
	}
}
