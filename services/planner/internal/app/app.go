package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hotelplan/internal/util"
	"hotelplan/pkg/conversation"
	"hotelplan/pkg/domain"
	"hotelplan/pkg/pipeline"
	"hotelplan/pkg/queue"
	"hotelplan/pkg/storage"
	"hotelplan/pkg/store"
)

// Config holds runtime configuration for the planner.
type Config struct {
	Store       store.Store
	StoreDriver string
	DatabaseURL string

	// Objects overrides the MinIO settings. With neither, models are not archived.
	Objects        storage.ObjectStore
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Dispatcher overrides the Redis settings. With neither, stages run in
	// process against Store.
	Dispatcher    pipeline.Dispatcher
	RedisAddr     string
	RedisPassword string
	QueueName     string

	ConversationCacheSize int
	Logger                *slog.Logger
	Now                   func() time.Time
}

// App is the planner core: conversation, project reads and design commands.
type App struct {
	store      store.Store
	engine     *conversation.CachedEngine
	archive    *storage.ModelArchive
	dispatcher pipeline.Dispatcher
	queue      *queue.RedisJobQueue
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	dataStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := conversation.NewCachedEngine(conversation.NewEngine(), cfg.ConversationCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init conversation cache: %w", err)
	}
	a := &App{
		store:  dataStore,
		engine: engine,
		logger: logger,
		now:    now,
	}

	objects := cfg.Objects
	if objects == nil && strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err = storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
	}
	if objects != nil {
		a.archive = storage.NewModelArchive(objects)
	}

	switch {
	case cfg.Dispatcher != nil:
		a.dispatcher = cfg.Dispatcher
	case strings.TrimSpace(cfg.RedisAddr) != "":
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   defaultQueueName(cfg.QueueName),
			Consumer: "planner-" + util.NewID(),
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init queue: %w", err)
		}
		a.queue = q
		a.dispatcher = pipeline.NewQueueDispatcher(q)
	default:
		coordinator, err := pipeline.NewCoordinator(pipeline.Config{Store: dataStore, Logger: logger})
		if err != nil {
			return nil, err
		}
		logger.Warn("no queue configured; pipeline stages run in the planner process")
		a.dispatcher = pipeline.Inline(coordinator)
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

func (a *App) Close() error {
	if a.queue == nil {
		return nil
	}
	return a.queue.Close()
}

// ProjectView is a project with its presentation status label.
type ProjectView struct {
	domain.Project
	StatusLabel string `json:"statusLabel"`
}

func viewOf(p domain.Project) ProjectView {
	if p.NonCompliance == nil {
		p.NonCompliance = []domain.ComplianceIssue{}
	}
	return ProjectView{Project: p, StatusLabel: p.Status.Label()}
}

// ListProjects returns the owner's projects.
func (a *App) ListProjects(ownerID string) ([]ProjectView, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrOwnerRequired
	}
	projects, err := a.store.ListProjectsByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		out = append(out, viewOf(p))
	}
	return out, nil
}

func (a *App) GetProject(ownerID, projectID string) (ProjectView, error) {
	p, err := a.ownedProject(ownerID, projectID)
	if err != nil {
		return ProjectView{}, err
	}
	return viewOf(p), nil
}

// BaseModel returns the model the project was created from.
func (a *App) BaseModel(ownerID, projectID string) (domain.HotelBaseModel, error) {
	if _, err := a.ownedProject(ownerID, projectID); err != nil {
		return domain.HotelBaseModel{}, err
	}
	model, ok, err := a.store.GetBaseModel(projectID)
	if err != nil {
		return domain.HotelBaseModel{}, err
	}
	if !ok {
		return domain.HotelBaseModel{}, ErrProjectNotFound
	}
	return model, nil
}

// ModelDownloadURL returns a presigned link to the archived base model.
func (a *App) ModelDownloadURL(ctx context.Context, ownerID, projectID string) (string, error) {
	if a.archive == nil {
		return "", ErrArchiveUnavailable
	}
	if _, err := a.ownedProject(ownerID, projectID); err != nil {
		return "", err
	}
	return a.archive.DownloadURL(ctx, projectID, 15*time.Minute)
}

func (a *App) ownedProject(ownerID, projectID string) (domain.Project, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Project{}, ErrOwnerRequired
	}
	p, ok, err := a.store.GetProject(projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok || p.OwnerID != ownerID {
		return domain.Project{}, ErrProjectNotFound
	}
	return p, nil
}

func defaultQueueName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "hotelplan:pipeline"
	}
	return name
}
