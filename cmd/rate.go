package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ratemymr/internal/config"
	"github.com/ratemymr/internal/logging"
	"github.com/ratemymr/internal/pipeline"
)

// RateCommand returns the rate command: one full assessment of one merge
// request, exiting non-zero when the run fails before a comment lands.
func RateCommand() *cli.Command {
	return &cli.Command{
		Name:  "rate",
		Usage: "Assess one merge request and synchronize its rating comment",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "project",
				Aliases:  []string{"p"},
				Usage:    "Project path (group/app) or numeric id",
				Required: true,
			},
			&cli.IntFlag{
				Name:     "mr",
				Aliases:  []string{"m"},
				Usage:    "Merge request IID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "request-id",
				Usage: "Correlation identifier handed in by a dispatcher (generated when empty)",
			},
		},
		Action: runRate,
	}
}

func runRate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	params := pipeline.Params{
		ProjectID:     c.String("project"),
		MRIID:         c.Int("mr"),
		CorrelationID: c.String("request-id"),
	}

	result, err := pipeline.Run(context.Background(), cfg, params, logging.NewConsoleWriter())
	if err != nil {
		return fmt.Errorf("assessment failed: %w", err)
	}

	fmt.Printf("Rated %s!%d: %d/%d (passed=%t) request_id=%s\n",
		params.ProjectID, params.MRIID,
		result.Rating.Score, result.Rating.Total, result.Rating.Passed,
		result.CorrelationID)
	return nil
}
