package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/promion/pkg/cmd"
	"github.com/dukex/promion/pkg/log"
	"github.com/dukex/promion/pkg/reconciler"
	"github.com/dukex/promion/pkg/verification"
)

func main() {
	cmd := &cli.Command{
		Name:                  "promion-reconciler",
		Usage:                 "Detect runtime drift and manage drift incidents",
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
				Usage:   "Reconciliation schedule (five-field cron expression)",
				Value:   "*/15 * * * *",
				Sources: cli.EnvVars("RECONCILE_CRON"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single reconciliation pass immediately and exit",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: runReconciler,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func runReconciler(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("promion-reconciler")

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

	eventBus := cmd.NewEventBus(
		command.String("event-bus"),
		"promion-reconciler",
		command.String("kafka-brokers"),
		logger,
	)
	defer func() {
		closeErr := eventBus.Close()
		if closeErr != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", closeErr)
		}
	}()

	targets, err := buildTargets(logger, site)
	if err != nil {
		return err
	}

	engine := reconciler.NewEngine(
		logger,
		verification.NewEngine(logger),
		persistence.IncidentRepository(),
		persistence.MappingRepository(),
		site.PolicyLoader(),
		eventBus,
	)

	if command.Bool("once") {
		report, err := engine.ReconcileAll(ctx, targets)
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "Reconciliation pass finished",
			"environments", len(report.Environments), "errors", len(report.Errors))

		return nil
	}

	scheduler := reconciler.NewScheduler(logger, engine, targets, command.String("cron"))

	err = scheduler.Start(ctx)
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	scheduler.Stop(ctx)

	return nil
}

// buildTargets creates one reconciliation target per drift-tracking
// environment in the site config.
func buildTargets(logger *slog.Logger, site *cmd.SiteConfig) (reconciler.StaticTargets, error) {
	registry := cmd.NewRegistry(logger)

	targets := make(reconciler.StaticTargets, 0, len(site.Environments))

	for _, entry := range site.Environments {
		if !entry.Environment.TracksDrift() {
			continue
		}

		adapter, err := registry.CreateAdapter(entry.Environment, entry.Config)
		if err != nil {
			return nil, err
		}

		targets = append(targets, reconciler.Target{
			Environment: entry.Environment,
			Adapter:     adapter,
		})
	}

	return targets, nil
}
