package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tweetscape/indexer/internal/config"
	"github.com/tweetscape/indexer/internal/graph"
	"github.com/tweetscape/indexer/internal/indexer"
	"github.com/tweetscape/indexer/internal/platform/postgres"
	"github.com/tweetscape/indexer/internal/service"
	"github.com/tweetscape/indexer/internal/store"
	"github.com/tweetscape/indexer/internal/task"
	"github.com/tweetscape/indexer/internal/task/kafkaqueue"
	"github.com/tweetscape/indexer/internal/timeline"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	taskStore  store.TaskStore
	tokenStore store.TokenStore
	graphStore graph.Store

	// Graph driver, nil when the in-memory store is selected
	neo4jDriver neo4j.DriverWithContext

	// Indexing pipeline
	timelineClient timeline.Client
	credentials    timeline.CredentialSource
	engine         *indexer.Engine
	tracker        *indexer.RangeTracker
	workflow       *indexer.Workflow

	// Service interfaces
	taskService service.TaskService

	// Task handling
	queue         *task.ChannelQueue
	kafkaProducer *kafkaqueue.Producer
	kafkaConsumer *kafkaqueue.Consumer
	runner        *task.Runner
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize stores
	app.taskStore = postgres.NewPostgresTaskStore(db)
	app.tokenStore = postgres.NewPostgresTokenStore(db)

	if err := app.setupGraphStore(ctx); err != nil {
		return nil, err
	}

	// Upstream timeline client and credential broker
	app.timelineClient = timeline.NewHTTPClient(cfg.Twitter.BaseURL, nil)
	app.credentials = timeline.NewCredentialBroker(
		app.tokenStore,
		cfg.Twitter.TokenURL,
		cfg.Twitter.ClientID,
		cfg.Twitter.ClientSecret,
		nil,
	)

	// Indexing pipeline
	app.engine = indexer.NewEngine(app.graphStore, indexer.EngineConfig{
		ChunkSize:        cfg.Indexer.ChunkSize,
		MaxWriteAttempts: 3,
		WriteRetryBase:   500 * time.Millisecond,
	}, logger)
	app.tracker = indexer.NewRangeTracker(app.graphStore)

	backoff := indexer.DefaultBackoffPolicy()
	backoff.FallbackDelay = time.Duration(cfg.Indexer.RateLimitFallbackMinutes) * time.Minute

	app.workflow = indexer.NewWorkflow(
		app.timelineClient,
		app.credentials,
		app.engine,
		app.tracker,
		indexer.NewQuotaLedger(),
		backoff,
		app.taskStore,
		indexer.WorkflowConfig{
			PageSize:          cfg.Indexer.PageSize,
			FollowingPageSize: cfg.Indexer.FollowingPageSize,
			MaxFetchAttempts:  3,
			FetchRetryBase:    time.Second,
			BusyRetryDelay:    30 * time.Second,
		},
	)

	if err := app.setupTaskPipeline(); err != nil {
		return nil, err
	}

	var err error
	app.taskService, err = service.NewTaskService(app.db, app.taskStore, app.queueWriter(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupGraphStore connects to neo4j, or falls back to the in-memory store
// when no URI is configured.
func (app *application) setupGraphStore(ctx context.Context) error {
	if app.config.Graph.URI == "" {
		app.logger.Warn("No graph URI configured, using in-memory graph store")
		app.graphStore = graph.NewMemoryStore()
		return nil
	}

	driver, err := neo4j.NewDriverWithContext(
		app.config.Graph.URI,
		neo4j.BasicAuth(app.config.Graph.Username, app.config.Graph.Password, ""),
	)
	if err != nil {
		return fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		return fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	app.neo4jDriver = driver
	app.graphStore = graph.NewNeo4jStore(driver)
	app.logger.Info("Graph store connected", "uri", app.config.Graph.URI)
	return nil
}

// setupTaskPipeline builds the queue and the runner and starts processing.
func (app *application) setupTaskPipeline() error {
	if app.config.Queue.Driver == "kafka" {
		app.kafkaProducer = kafkaqueue.NewProducer(app.config.Queue.Brokers, app.config.Queue.Topic)
		app.kafkaConsumer = kafkaqueue.NewConsumer(
			app.config.Queue.Brokers,
			app.config.Queue.Topic,
			app.config.Queue.GroupID,
			app.logger.With("component", "kafka_consumer"),
		)
	}

	// The channel queue always exists: in kafka mode it carries the
	// signals the monitors re-deliver locally.
	app.queue = task.NewChannelQueue(app.config.Queue.Size, app.logger)

	app.runner = task.NewRunner(
		app.taskStore,
		app.workflow,
		app.queue,
		app.queue,
		task.RunnerConfig{
			WorkerCount: app.config.Indexer.WorkerCount,
		},
		app.logger.With("component", "task_runner"),
	)

	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	return nil
}

// queueWriter returns the queue the API submits to: Kafka when configured,
// the in-process channel otherwise.
func (app *application) queueWriter() task.QueueWriter {
	if app.kafkaProducer != nil {
		return app.kafkaProducer
	}
	return app.queue
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if app.kafkaConsumer != nil {
		go func() {
			err := app.kafkaConsumer.Run(ctx, func(ctx context.Context, taskID uuid.UUID) {
				app.runner.ProcessByID(ctx, taskID, -1)
			})
			if err != nil {
				app.logger.Error("Kafka consumer stopped", "error", err)
			}
		}()
	}

	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}

	if app.kafkaProducer != nil {
		if err := app.kafkaProducer.Close(); err != nil {
			app.logger.Error("Error closing kafka producer", "error", err)
		}
	}
	if app.kafkaConsumer != nil {
		if err := app.kafkaConsumer.Close(); err != nil {
			app.logger.Error("Error closing kafka consumer", "error", err)
		}
	}

	if app.neo4jDriver != nil {
		if err := app.neo4jDriver.Close(context.Background()); err != nil {
			app.logger.Error("Error closing neo4j driver", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
