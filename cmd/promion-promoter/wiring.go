package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/promion/pkg/cmd"
	"github.com/dukex/promion/pkg/definition"
	"github.com/dukex/promion/pkg/deployer"
	"github.com/dukex/promion/pkg/enforcement"
	"github.com/dukex/promion/pkg/eventbus"
	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/jobs"
	"github.com/dukex/promion/pkg/log"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/promotion"
	"github.com/dukex/promion/pkg/services"
	"github.com/dukex/promion/pkg/snapshotstore"
	"github.com/dukex/promion/pkg/verification"
)

// app bundles the wired promotion stack for one command invocation.
type app struct {
	service     *services.Promotion
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
}

// buildApp wires persistence, the snapshot store, the runtime registry, the
// event bus, and the orchestrator into a promotion service.
func buildApp(ctx context.Context, command *cli.Command, tenantID string) (*app, error) {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("promion-promoter")

	site, err := cmd.LoadSiteConfig(command.String("site-config"))
	if err != nil {
		return nil, err
	}

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	repo := cmd.NewGitRepository(command.String("git-root"))
	registry := cmd.NewRegistry(logger)
	eventBus := cmd.NewEventBus(
		command.String("event-bus"),
		"promion-promoter",
		command.String("kafka-brokers"),
		logger,
	)

	guard := fingerprint.NewService(newDigestRegistry(command.String("redis-url")), logger).
		WithPublisher(eventBus)

	orchestrator := promotion.NewOrchestrator(logger, promotion.Dependencies{
		Store:      snapshotstore.NewStore(repo, logger).WithGuard(guard),
		Deployer:   deployer.NewDeployer(logger),
		Verifier:   verification.NewEngine(logger),
		Validator:  definition.NewValidator(),
		Promotions: store.PromotionRepository(),
		Mappings:   store.MappingRepository(),
		History:    store.RetentionRepository(),
		Publisher:  eventBus,
		Sink:       jobs.NewEventBusSink(logger, eventBus, tenantID),
	}, promotion.Options{
		StrictVerification: command.Bool("strict-verification"),
	})

	enforcer := enforcement.NewEnforcer(
		logger,
		site.PolicyLoader(),
		store.IncidentRepository(),
		store.ApprovalRepository(),
	)
	manager := jobs.NewManager(logger, store.PromotionRepository())

	return &app{
		service:     services.NewPromotion(logger, store, orchestrator, enforcer, manager, registry, site.Directory(), site.EntitlementsGate()),
		logger:      logger,
		persistence: store,
		eventBus:    eventBus,
	}, nil
}

// newDigestRegistry picks the collision registry: Redis when a URL is
// configured, process-local otherwise.
func newDigestRegistry(redisURL string) fingerprint.Registry {
	if redisURL == "" {
		return fingerprint.NewMemoryRegistry()
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(err)
	}

	return fingerprint.NewRedisRegistry(redis.NewClient(options))
}

// close releases the wired resources, logging failures instead of failing
// the command that already finished.
func (a *app) close(ctx context.Context) {
	err := a.eventBus.Close()
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	err = a.persistence.Close(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}
}
