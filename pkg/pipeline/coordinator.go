// Package pipeline moves a project through draft, needs_recalc, costs_ready
// and compliant as its design changes. Each stage reads current state, writes
// its result by absolute value and hands off to the next stage through a
// Dispatcher. Concurrent stages for one project are not serialised: whichever
// write lands last is what the project shows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hotelplan/pkg/compliance"
	"hotelplan/pkg/cost"
	"hotelplan/pkg/domain"
	"hotelplan/pkg/store"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrUnknownStage    = errors.New("unknown pipeline stage")
	ErrProjectRequired = errors.New("projectId required")
)

// ProjectStore is the storage the stages read and write.
type ProjectStore interface {
	GetProject(id string) (domain.Project, bool, error)
	ListFloors(projectID string) ([]domain.Floor, error)
	ListPublicAreas(projectID string) ([]domain.PublicArea, error)
	SetProjectStatus(id string, status domain.ProjectStatus) error
	SaveComplianceResult(id string, issues []domain.ComplianceIssue, totalRooms int, status domain.ProjectStatus, at time.Time) error
	SaveCostStatus(id string, status domain.ProjectStatus, at time.Time) error
	AppendCostSummary(domain.CostSummary) error
}

type Config struct {
	Store ProjectStore
	// Dispatcher receives follow-up stages. Nil runs them inline.
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Now        func() time.Time
}

type Coordinator struct {
	store      ProjectStore
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("pipeline: store required")
	}
	c := &Coordinator{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.dispatcher == nil {
		c.dispatcher = inlineDispatcher{handle: c.Handle}
	}
	return c, nil
}

// Handle runs the stage named by task.
func (c *Coordinator) Handle(ctx context.Context, task Task) error {
	switch task.Stage {
	case StageDesignChange:
		return c.OnDesignChange(ctx, task.ProjectID)
	case StageRecalculate:
		return c.OnRecalculate(ctx, task.ProjectID)
	case StageCost:
		return c.OnCost(ctx, task.ProjectID, task.BrandTier, task.RegionalMultiplier)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStage, task.Stage)
	}
}

// OnDesignChange marks the project as needing recalculation and requests one.
// A design change for a project that no longer exists is dropped.
func (c *Coordinator) OnDesignChange(ctx context.Context, projectID string) error {
	if projectID == "" {
		return ErrProjectRequired
	}
	logger := c.stageLogger(StageDesignChange, projectID)
	status := NextStatus("", EventDesignChanged, false)
	if err := c.store.SetProjectStatus(projectID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("design change for unknown project ignored")
			return nil
		}
		return fmt.Errorf("set status: %w", err)
	}
	logger.Info("project status updated", "status", status)
	if err := c.dispatcher.Dispatch(ctx, RecalculateTask(projectID)); err != nil {
		return fmt.Errorf("dispatch recalculation: %w", err)
	}
	return nil
}

// OnRecalculate evaluates compliance over the current design, stores the
// issues and room total, moves to costs_ready and requests a cost run with
// the default tier and multiplier.
func (c *Coordinator) OnRecalculate(ctx context.Context, projectID string) error {
	if projectID == "" {
		return ErrProjectRequired
	}
	logger := c.stageLogger(StageRecalculate, projectID)

	var floors []domain.Floor
	var areas []domain.PublicArea
	var g errgroup.Group
	g.Go(func() error {
		var err error
		floors, err = c.store.ListFloors(projectID)
		if err != nil {
			return fmt.Errorf("list floors: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		areas, err = c.store.ListPublicAreas(projectID)
		if err != nil {
			return fmt.Errorf("list public areas: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	issues := compliance.Evaluate(floors, areas)
	totalRooms := compliance.TotalRooms(floors)
	status := NextStatus("", EventRecalculated, domain.HasErrors(issues))
	if err := c.store.SaveComplianceResult(projectID, issues, totalRooms, status, c.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return fmt.Errorf("save compliance result: %w", err)
	}
	errs, warnings, infos := compliance.Counts(issues)
	logger.Info("compliance evaluated",
		"status", status,
		"total_rooms", totalRooms,
		"errors", errs,
		"warnings", warnings,
		"infos", infos,
	)
	task := CostTask(projectID, cost.DefaultBrandTier, cost.DefaultRegionalMultiplier)
	if err := c.dispatcher.Dispatch(ctx, task); err != nil {
		return fmt.Errorf("dispatch cost: %w", err)
	}
	return nil
}

// OnCost prices the project's stored room total, appends a cost row and sets
// the final status from the stored issue list. Every call appends a row.
func (c *Coordinator) OnCost(ctx context.Context, projectID, brandTier string, regionalMultiplier float64) error {
	if projectID == "" {
		return ErrProjectRequired
	}
	logger := c.stageLogger(StageCost, projectID)
	project, ok, err := c.store.GetProject(projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	est := cost.Calculate(project.TotalRooms, brandTier, regionalMultiplier)
	now := c.now()
	row := domain.CostSummary{
		ID:                 uuid.NewString(),
		ProjectID:          projectID,
		LowCostPerKey:      est.LowPerKey,
		MidCostPerKey:      est.MidPerKey,
		HighCostPerKey:     est.HighPerKey,
		TotalRooms:         est.TotalRooms,
		TotalLow:           est.TotalLow(),
		TotalMid:           est.TotalMid(),
		TotalHigh:          est.TotalHigh(),
		RegionalMultiplier: est.RegionalMultiplier,
		BrandTier:          est.BrandTier,
		CreatedAt:          now,
	}
	if err := c.store.AppendCostSummary(row); err != nil {
		return fmt.Errorf("append cost summary: %w", err)
	}

	status := NextStatus(project.Status, EventCostCalculated, domain.HasErrors(project.NonCompliance))
	if err := c.store.SaveCostStatus(projectID, status, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return fmt.Errorf("save cost status: %w", err)
	}
	logger.Info("cost calculated",
		"status", status,
		"brand_tier", brandTier,
		"regional_multiplier", regionalMultiplier,
		"mid_cost_per_key", est.MidPerKey,
	)
	return nil
}

func (c *Coordinator) stageLogger(stage Stage, projectID string) *slog.Logger {
	return c.logger.With("stage", string(stage), "project_id", projectID)
}
