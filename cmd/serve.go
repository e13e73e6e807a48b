package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/ratemymr/internal/config"
	"github.com/ratemymr/internal/dispatch"
	"github.com/ratemymr/internal/logging"
	"github.com/ratemymr/internal/pipeline"
	"github.com/ratemymr/internal/server"
)

// ServeCommand returns the serve command: the webhook receiver plus the
// worker pool that runs one isolated pipeline per accepted event.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Receive GitLab webhooks and rate merge requests as they change",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address (overrides server.listen_addr)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	addr := cfg.Server.ListenAddr
	if c.String("listen") != "" {
		addr = c.String("listen")
	}

	// Serve mode logs JSON to stdout; each pipeline run tags its own lines
	// with its correlation identifier.
	logger := zerolog.New(os.Stdout).Level(logging.ParseLevel(cfg.Log.Level)).With().Timestamp().Logger()

	pool := dispatch.NewPool(cfg.Server.Workers, cfg.Server.QueueSize,
		func(ctx context.Context, params pipeline.Params) error {
			_, err := pipeline.Run(ctx, cfg, params, os.Stdout)
			return err
		}, logger)

	srv := server.New(pool, cfg.Server.WebhookSecret, logger)
	defer srv.Shutdown()

	return srv.Start(addr)
}
