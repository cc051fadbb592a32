package initialization

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/internal/config"
	"github.com/techwithparamesh/agent-app-sub006/internal/controllers"
	"github.com/techwithparamesh/agent-app-sub006/internal/dispatcher"
	"github.com/techwithparamesh/agent-app-sub006/internal/managers"
	"github.com/techwithparamesh/agent-app-sub006/internal/store/memory"
	"github.com/techwithparamesh/agent-app-sub006/internal/store/mongodb"
	"github.com/techwithparamesh/agent-app-sub006/internal/store/postgres"
	"github.com/techwithparamesh/agent-app-sub006/internal/store/seed"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain/executor"
	"github.com/techwithparamesh/agent-app-sub006/pkg/expressions"
)

// Container holds the wired process dependencies.
type Container struct {
	WorkflowStore       domain.WorkflowStore
	ExecutionStore      domain.ExecutionStore
	CredentialStore     domain.CredentialStore
	IntegrationSelector domain.IntegrationSelector
	ExecutorService     executor.WorkflowExecutorService
	Dispatcher          *dispatcher.Dispatcher
	WebhookController   *controllers.WebhookController

	closers []func(ctx context.Context) error
}

type stores interface {
	domain.WorkflowStore
	domain.ExecutionStore
	domain.CredentialStore
}

func BuildContainer(ctx context.Context, cfg config.Config) (*Container, error) {
	log.Info().Str("storeDriver", string(cfg.Store.Driver)).Msg("Building dependencies")

	c := &Container{}

	store, err := c.openStore(ctx, cfg.Store)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	c.WorkflowStore = store
	c.ExecutionStore = store
	c.CredentialStore = store

	if cfg.Store.SeedFile != "" {
		if err := seedWorkflows(ctx, store, cfg.Store.SeedFile); err != nil {
			c.Close(ctx)
			return nil, err
		}
	}

	evaluator, err := expressions.NewDefaultEvaluator()
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("failed to create expression evaluator: %w", err)
	}

	var decryptionService *managers.CredentialDecryptionService

	if cfg.Credentials.X25519PrivateKey != "" {
		decryptionService, err = managers.NewCredentialDecryptionService(cfg.Credentials.X25519PrivateKey)
		if err != nil {
			c.Close(ctx)
			return nil, err
		}
	} else {
		log.Warn().Msg("No credentials.x25519_private_key configured, credentialed nodes will fail")
	}

	credentialResolver := managers.NewCredentialResolver(managers.CredentialResolverDependencies{
		Store:             store,
		DecryptionService: decryptionService,
	})

	eventPublisher, err := c.openEventPublisher(ctx, cfg.Redis)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	c.IntegrationSelector = domain.NewIntegrationSelector()

	RegisterIntegrations(c.IntegrationSelector, domain.IntegrationDeps{
		HTTPTimeout: cfg.Executor.AdapterTimeout,
	})

	c.ExecutorService = executor.NewWorkflowExecutorService(executor.WorkflowExecutorServiceDependencies{
		IntegrationSelector:   c.IntegrationSelector,
		CredentialResolver:    credentialResolver,
		Evaluator:             evaluator,
		JavaScriptRunner:      expressions.NewJavaScriptRunner(cfg.Executor.CodeTimeout),
		OrderedEventPublisher: eventPublisher,
		WorkflowStore:         store,
		ExecutionStore:        store,
		AdapterTimeout:        cfg.Executor.AdapterTimeout,
		MaxLoopIterations:     cfg.Executor.MaxLoopIterations,
	})

	c.Dispatcher = dispatcher.New(dispatcher.Dependencies{
		WorkflowStore:       store,
		ExecutorService:     c.ExecutorService,
		IntegrationSelector: c.IntegrationSelector,
		CredentialResolver:  credentialResolver,
		TickInterval:        cfg.Dispatcher.TickInterval,
		Concurrency:         cfg.Dispatcher.Concurrency,
		EvaluationTimeout:   cfg.Dispatcher.EvaluationTimeout,
		MaxEventsPerTick:    cfg.Dispatcher.MaxEventsPerTick,
	})

	c.WebhookController = controllers.NewWebhookController(controllers.WebhookControllerDependencies{
		WorkflowStore:       store,
		ExecutorService:     c.ExecutorService,
		IntegrationSelector: c.IntegrationSelector,
	})

	return c, nil
}

func (c *Container) openStore(ctx context.Context, cfg config.StoreConfig) (stores, error) {
	switch cfg.Driver {
	case config.StoreDriverPostgres:
		store, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}

		c.closers = append(c.closers, func(context.Context) error {
			store.Close()
			return nil
		})

		return store, nil

	case config.StoreDriverMongo:
		store, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}

		c.closers = append(c.closers, store.Close)

		return store, nil
	}

	return memory.New(), nil
}

// openEventPublisher returns a nil publisher when no redis url is configured.
func (c *Container) openEventPublisher(ctx context.Context, cfg config.RedisConfig) (domain.EventPublisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	options, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c.closers = append(c.closers, func(context.Context) error {
		return client.Close()
	})

	publisher := managers.NewRedisEventPublisher(client, managers.DefaultEventChannelPrefix)

	return domain.NewOrderedEventPublisher(publisher), nil
}

func seedWorkflows(ctx context.Context, store domain.WorkflowStore, path string) error {
	workflows, err := seed.LoadWorkflows(path)
	if err != nil {
		return err
	}

	for _, workflow := range workflows {
		if err := store.SaveWorkflow(ctx, workflow); err != nil {
			return fmt.Errorf("failed to seed workflow %s: %w", workflow.ID, err)
		}
	}

	log.Info().Int("workflows", len(workflows)).Str("path", path).Msg("Seeded workflows")

	return nil
}

// Close releases store and redis connections in reverse order of opening.
func (c *Container) Close(ctx context.Context) {
	if c.Dispatcher != nil {
		if err := c.Dispatcher.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop dispatcher")
		}
	}

	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close dependency")
		}
	}

	c.closers = nil
}
