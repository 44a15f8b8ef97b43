package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/internal/bootstrap"
	"github.com/interact-platform/lifecycle-engine/internal/config"
	"github.com/interact-platform/lifecycle-engine/internal/server"
	"github.com/interact-platform/lifecycle-engine/pkg/analytics"
	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/handler"
	"github.com/interact-platform/lifecycle-engine/pkg/intervention"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
	"github.com/interact-platform/lifecycle-engine/pkg/notify"
	"github.com/interact-platform/lifecycle-engine/pkg/store"
)

const metricsEndpoint = "/metrics"

// App holds all application components and manages their lifecycle.
type App struct {
	config *config.Config

	redisClient *redis.Client
	store       *store.RedisStore
	playbook    intervention.Playbook

	httpServer    *server.HTTPServer
	metricsServer *server.MetricsServer

	shutdownTelemetry func(context.Context) error
}

// New creates the application, connecting to dependencies and wiring every
// component. Initialization order matters: storage first, then the playbook,
// then the domain engines, then the servers.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{config: cfg}

	// Step 1: Redis
	client, err := store.NewRedisClient(ctx, store.RedisOptions{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, err
	}
	a.redisClient = client
	a.store = store.NewRedisStore(client)

	// Step 2: Domain engines
	notifier := notify.NewLogNotifier(logrus.StandardLogger())

	tracker := lifecycle.NewTracker(a.store)

	processor, err := bootstrap.InitRulesEngine(a.store, notifier)
	if err != nil {
		return nil, err
	}

	interventions, err := bootstrap.InitInterventionStack(a.store, cfg.PlaybookPath, notifier)
	if err != nil {
		return nil, err
	}
	a.playbook = interventions.Playbook

	assigner := experiment.NewAssigner(a.store)
	completer := experiment.NewCompleter(a.store)

	reporter := analytics.NewReporter(a.store)

	// Step 3: HTTP server
	a.httpServer = server.NewHTTPServer(cfg.HTTPPort, server.Handlers{
		Lifecycle:    handler.NewLifecycleHandler(tracker, assigner, a.store),
		Rules:        handler.NewRulesHandler(processor, a.store),
		Intervention: handler.NewInterventionHandler(interventions.Selector, interventions.Dispatcher, interventions.Recorder),
		Experiment:   handler.NewExperimentHandler(a.store, tracker, assigner, completer),
		Analytics:    handler.NewAnalyticsHandler(reporter),
	})
	if err := a.httpServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup HTTP server: %w", err)
	}

	// Step 4: Metrics server
	a.metricsServer = server.NewMetricsServer(cfg.MetricsPort, metricsEndpoint)
	if err := a.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	// Step 5: Telemetry
	if cfg.OtelEnabled {
		shutdown, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, cfg.ZipkinEndpoint, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		a.shutdownTelemetry = shutdown
	}

	logrus.Info("application initialized")
	return a, nil
}
