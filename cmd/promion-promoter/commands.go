package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/promion/pkg/services"
)

func tenantFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "tenant",
		Usage:    "Tenant id the operation runs under",
		Required: true,
		Sources:  cli.EnvVars("PROMION_TENANT"),
	}
}

func actorFlag(name, usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     name,
		Usage:    usage,
		Required: true,
		Sources:  cli.EnvVars("PROMION_ACTOR"),
	}
}

// printResult writes the result as JSON and translates non-success kinds to
// a command error so the exit code reflects the outcome.
func printResult(result *services.PromotionResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if result.Kind != services.ResultSuccess && result.Kind != services.ResultAlreadyRunning {
		return fmt.Errorf("operation finished with result %s", result.Kind)
	}

	return nil
}

func NewPromoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "promote",
		Usage: "Promote workflows from a source environment into a target environment",
		Flags: []cli.Flag{
			tenantFlag(),
			&cli.StringFlag{Name: "source", Usage: "Source environment id", Required: true},
			&cli.StringFlag{Name: "target", Usage: "Target environment id", Required: true},
			&cli.StringSliceFlag{Name: "workflow", Usage: "Runtime workflow id to promote (repeatable, dev source only)"},
			actorFlag("requested-by", "User id requesting the promotion"),
			&cli.StringFlag{Name: "reason", Usage: "Free-form promotion reason"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			app, err := buildApp(ctx, command, command.String("tenant"))
			if err != nil {
				return err
			}
			defer app.close(ctx)

			return printResult(app.service.Promote(ctx, services.PromoteRequest{
				TenantID:    command.String("tenant"),
				SourceEnvID: command.String("source"),
				TargetEnvID: command.String("target"),
				WorkflowIDs: command.StringSlice("workflow"),
				RequestedBy: command.String("requested-by"),
				Reason:      command.String("reason"),
			}))
		},
	}
}

func NewApproveCommand() *cli.Command {
	return &cli.Command{
		Name:  "approve",
		Usage: "Approve and execute a promotion waiting for approval",
		Flags: []cli.Flag{
			tenantFlag(),
			&cli.StringFlag{Name: "promotion", Usage: "Promotion id", Required: true},
			actorFlag("approved-by", "User id approving the promotion"),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			app, err := buildApp(ctx, command, command.String("tenant"))
			if err != nil {
				return err
			}
			defer app.close(ctx)

			return printResult(app.service.Approve(ctx, services.ApproveRequest{
				TenantID:    command.String("tenant"),
				PromotionID: command.String("promotion"),
				ApprovedBy:  command.String("approved-by"),
			}))
		},
	}
}

func NewRejectCommand() *cli.Command {
	return &cli.Command{
		Name:  "reject",
		Usage: "Reject a promotion waiting for approval",
		Flags: []cli.Flag{
			tenantFlag(),
			&cli.StringFlag{Name: "promotion", Usage: "Promotion id", Required: true},
			actorFlag("decided-by", "User id rejecting the promotion"),
			&cli.StringFlag{Name: "reason", Usage: "Why the promotion is rejected"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			app, err := buildApp(ctx, command, command.String("tenant"))
			if err != nil {
				return err
			}
			defer app.close(ctx)

			return printResult(app.service.Reject(ctx, services.RejectRequest{
				TenantID:    command.String("tenant"),
				PromotionID: command.String("promotion"),
				DecidedBy:   command.String("decided-by"),
				Reason:      command.String("reason"),
			}))
		},
	}
}

func NewRollbackCommand() *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "Roll an environment back to one of its earlier snapshots",
		Flags: []cli.Flag{
			tenantFlag(),
			&cli.StringFlag{Name: "environment", Usage: "Environment id to roll back", Required: true},
			&cli.StringFlag{Name: "snapshot", Usage: "Snapshot id to restore", Required: true},
			actorFlag("requested-by", "User id requesting the rollback"),
			&cli.StringFlag{Name: "reason", Usage: "Free-form rollback reason"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			app, err := buildApp(ctx, command, command.String("tenant"))
			if err != nil {
				return err
			}
			defer app.close(ctx)

			return printResult(app.service.Rollback(ctx, services.RollbackRequest{
				TenantID:      command.String("tenant"),
				EnvironmentID: command.String("environment"),
				SnapshotID:    command.String("snapshot"),
				RequestedBy:   command.String("requested-by"),
				Reason:        command.String("reason"),
			}))
		},
	}
}

func NewSyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Refresh an environment's mapping table from its runtime",
		Flags: []cli.Flag{
			tenantFlag(),
			&cli.StringFlag{Name: "environment", Usage: "Environment id to sync", Required: true},
			actorFlag("requested-by", "User id requesting the sync"),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			app, err := buildApp(ctx, command, command.String("tenant"))
			if err != nil {
				return err
			}
			defer app.close(ctx)

			result := app.service.SyncEnvironment(ctx, services.SyncRequest{
				TenantID:      command.String("tenant"),
				EnvironmentID: command.String("environment"),
				RequestedBy:   command.String("requested-by"),
			})

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			err = encoder.Encode(result)
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}

			if result.Kind != services.ResultSuccess && result.Kind != services.ResultAlreadyRunning {
				return fmt.Errorf("operation finished with result %s", result.Kind)
			}

			return nil
		},
	}
}

func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show one promotion record",
		Flags: []cli.Flag{
			tenantFlag(),
			&cli.StringFlag{Name: "promotion", Usage: "Promotion id", Required: true},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			app, err := buildApp(ctx, command, command.String("tenant"))
			if err != nil {
				return err
			}
			defer app.close(ctx)

			return printResult(app.service.GetPromotion(ctx, command.String("tenant"), command.String("promotion")))
		},
	}
}

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List promotion records for a tenant",
		Flags: []cli.Flag{
			tenantFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			app, err := buildApp(ctx, command, command.String("tenant"))
			if err != nil {
				return err
			}
			defer app.close(ctx)

			records, err := app.service.ListPromotions(ctx, command.String("tenant"))
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(records)
		},
	}
}
