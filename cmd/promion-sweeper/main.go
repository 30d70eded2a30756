package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/promion/pkg/cmd"
	"github.com/dukex/promion/pkg/log"
	"github.com/dukex/promion/pkg/retention"
)

func main() {
	cmd := &cli.Command{
		Name:                  "promion-sweeper",
		Usage:                 "Sweep historical records past their retention window",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a filesystem root)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "site-config",
				Usage:    "Path to the site config JSON (environments, drift policies, tenants)",
				Required: true,
				Sources:  cli.EnvVars("SITE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "cron",
				Usage:   "Sweep schedule (five-field cron expression)",
				Value:   "0 3 * * *",
				Sources: cli.EnvVars("SWEEP_CRON"),
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "Report what would be deleted without deleting",
				Sources: cli.EnvVars("SWEEP_DRY_RUN"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single sweep immediately and exit",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: runSweeper,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func runSweeper(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("promion-sweeper")

	site, err := cmd.LoadSiteConfig(command.String("site-config"))
	if err != nil {
		return err
	}

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		closeErr := persistence.Close(ctx)
		if closeErr != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", closeErr)
		}
	}()

	engine := retention.NewEngine(logger, persistence.RetentionRepository(), site.EntitlementsGate())

	if command.Bool("once") {
		result, err := engine.SweepAll(ctx, command.Bool("dry-run"))
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "Sweep finished",
			"deleted", result.Deleted, "tenants", len(result.Tenants), "errors", len(result.Errors))

		return nil
	}

	eventBus := cmd.NewEventBus(
		command.String("event-bus"),
		"promion-sweeper",
		command.String("kafka-brokers"),
		logger,
	)
	defer func() {
		closeErr := eventBus.Close()
		if closeErr != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", closeErr)
		}
	}()

	sweeper := retention.NewSweeper(logger, engine, command.String("cron"), command.Bool("dry-run")).
		WithPublisher(eventBus)

	err = sweeper.Start(ctx)
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	sweeper.Stop(ctx)

	return nil
}
