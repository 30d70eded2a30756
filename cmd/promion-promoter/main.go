package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "promion-promoter",
		Usage:                 "Promote, approve, and roll back workflow environments",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a filesystem root)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "git-root",
				Usage:    "Root of the snapshot Git working tree",
				Required: true,
				Sources:  cli.EnvVars("GIT_ROOT"),
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
				Name:    "redis-url",
				Usage:   "Redis URL for the shared fingerprint collision registry (in-memory if empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "strict-verification",
				Usage:   "Fail promotions on post-deploy verification mismatches",
				Sources: cli.EnvVars("STRICT_VERIFICATION"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NewPromoteCommand(),
			NewApproveCommand(),
			NewRejectCommand(),
			NewRollbackCommand(),
			NewSyncCommand(),
			NewStatusCommand(),
			NewListCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
