package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hotelplan/internal/util"
	"hotelplan/pkg/pipeline"
	"hotelplan/pkg/queue"
	"hotelplan/pkg/store"
)

// Config holds runtime configuration.
type Config struct {
	Store                  store.Store
	StoreDriver            string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	QueueName              string
	QueueGroup             string
	QueueConcurrency       int
	QueueMaxRetries        int
	QueueRetryDelaySeconds int
	Logger                 *slog.Logger
}

// App runs pipeline stages. Triggers run a stage in the request; the
// follow-up stage goes through the Redis queue and is picked up by the
// workers started in Start. Without a Redis address follow-ups run inline.
type App struct {
	store       store.Store
	queue       *queue.RedisJobQueue
	coordinator *pipeline.Coordinator
	concurrency int
	logger      *slog.Logger
}

func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dataStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{store: dataStore, concurrency: cfg.QueueConcurrency, logger: logger}

	var dispatcher pipeline.Dispatcher
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     defaultQueueName(cfg.QueueName),
			Group:      defaultQueueGroup(cfg.QueueGroup),
			Consumer:   "pipeline-" + util.NewID(),
			MaxRetries: cfg.QueueMaxRetries,
			RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init queue: %w", err)
		}
		a.queue = q
		dispatcher = pipeline.NewQueueDispatcher(q)
	}
	a.coordinator, err = pipeline.NewCoordinator(pipeline.Config{
		Store:      dataStore,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openStore(cfg Config) (store.Store, error) {
	if cfg.Store != nil {
		return cfg.Store, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "memory":
		return store.NewMemoryStore(), nil
	case "", "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
}

// Start launches queue workers. It is a no-op without a queue.
func (a *App) Start(ctx context.Context) {
	if a.queue == nil {
		a.logger.Warn("no queue configured; follow-up stages run inline")
		return
	}
	concurrency := a.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	a.queue.Start(ctx, concurrency, pipeline.QueueHandler(a.coordinator))
}

// DesignChanged runs the design-change stage.
func (a *App) DesignChanged(ctx context.Context, projectID string) error {
	return a.coordinator.OnDesignChange(ctx, projectID)
}

// Recalculate runs the recalculation stage.
func (a *App) Recalculate(ctx context.Context, projectID string) error {
	return a.coordinator.OnRecalculate(ctx, projectID)
}

// Cost runs the cost stage with explicit inputs.
func (a *App) Cost(ctx context.Context, projectID, brandTier string, regionalMultiplier float64) error {
	return a.coordinator.OnCost(ctx, projectID, brandTier, regionalMultiplier)
}

// GetJob reports the state of a queued follow-up stage.
func (a *App) GetJob(ctx context.Context, id string) (queue.Job, bool, error) {
	if a.queue == nil {
		return queue.Job{}, false, nil
	}
	return a.queue.GetJob(ctx, id)
}

func (a *App) Close() error {
	if a.queue == nil {
		return nil
	}
	return a.queue.Close()
}

func defaultQueueName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "hotelplan:pipeline"
	}
	return name
}

func defaultQueueGroup(name string) string {
	if strings.TrimSpace(name) == "" {
		return "pipeline"
	}
	return name
}
