package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"hotelplan/internal/util"
	"hotelplan/pkg/cost"
	"hotelplan/pkg/design"
	"hotelplan/pkg/domain"
	"hotelplan/pkg/pipeline"
	"hotelplan/pkg/store"
)

// loadDesign reads the owner's current floors and public areas.
func (a *App) loadDesign(ctx context.Context, ownerID, projectID string) (design.Design, error) {
	if _, err := a.ownedProject(ownerID, projectID); err != nil {
		return design.Design{}, err
	}
	var floors []domain.Floor
	var areas []domain.PublicArea
	var g errgroup.Group
	g.Go(func() error {
		var err error
		floors, err = a.store.ListFloors(projectID)
		return err
	})
	g.Go(func() error {
		var err error
		areas, err = a.store.ListPublicAreas(projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return design.Design{}, fmt.Errorf("load design: %w", err)
	}
	return design.New(projectID, floors, areas), nil
}

// Design returns the current floors and public areas.
func (a *App) Design(ctx context.Context, ownerID, projectID string) (design.Design, error) {
	return a.loadDesign(ctx, ownerID, projectID)
}

// KPIs summarises the current design.
func (a *App) KPIs(ctx context.Context, ownerID, projectID string) (design.KPIs, error) {
	d, err := a.loadDesign(ctx, ownerID, projectID)
	if err != nil {
		return design.KPIs{}, err
	}
	return d.KPIs(), nil
}

func (a *App) AddFloor(ctx context.Context, ownerID, projectID string, floor domain.Floor) (domain.Floor, error) {
	d, err := a.loadDesign(ctx, ownerID, projectID)
	if err != nil {
		return domain.Floor{}, err
	}
	_, added, err := d.AddFloor(floor)
	if err != nil {
		return domain.Floor{}, mapDesignErr(err)
	}
	if err := a.saveFloors(ctx, projectID, added); err != nil {
		return domain.Floor{}, err
	}
	return added, nil
}

func (a *App) UpdateFloor(ctx context.Context, ownerID, projectID, floorID string, patch design.FloorPatch) (domain.Floor, error) {
	d, err := a.loadDesign(ctx, ownerID, projectID)
	if err != nil {
		return domain.Floor{}, err
	}
	_, updated, err := d.UpdateFloor(floorID, patch)
	if err != nil {
		return domain.Floor{}, mapDesignErr(err)
	}
	if err := a.saveFloors(ctx, projectID, updated); err != nil {
		return domain.Floor{}, err
	}
	return updated, nil
}

func (a *App) RemoveFloor(ctx context.Context, ownerID, projectID, floorID string) error {
	d, err := a.loadDesign(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	if _, err := d.RemoveFloor(floorID); err != nil {
		return mapDesignErr(err)
	}
	if err := a.store.DeleteFloor(projectID, floorID); err != nil {
		return mapStoreErr(err, ErrFloorNotFound)
	}
	return a.publish(ctx, projectID)
}

// SetRoom sets quantity and average size of one room type on a floor.
func (a *App) SetRoom(ctx context.Context, ownerID, projectID, floorID string, room domain.RoomConfiguration) (domain.Floor, error) {
	d, err := a.loadDesign(ctx, ownerID, projectID)
	if err != nil {
		return domain.Floor{}, err
	}
	_, updated, err := d.UpdateRoomConfiguration(floorID, room)
	if err != nil {
		return domain.Floor{}, mapDesignErr(err)
	}
	if err := a.saveFloors(ctx, projectID, updated); err != nil {
		return domain.Floor{}, err
	}
	return updated, nil
}

// BulkSetRooms applies positive quantities to every listed floor.
func (a *App) BulkSetRooms(ctx context.Context, ownerID, projectID string, floorIDs []string, rooms map[string]int) ([]domain.Floor, error) {
	if len(floorIDs) == 0 {
		return nil, fmt.Errorf("%w: floorIds required", ErrInvalidDesign)
	}
	d, err := a.loadDesign(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	_, changed, err := d.BulkSetRooms(floorIDs, rooms)
	if err != nil {
		return nil, mapDesignErr(err)
	}
	if err := a.saveFloors(ctx, projectID, changed...); err != nil {
		return nil, err
	}
	return changed, nil
}

func (a *App) SetPublicArea(ctx context.Context, ownerID, projectID string, area domain.PublicArea) (domain.PublicArea, error) {
	d, err := a.loadDesign(ctx, ownerID, projectID)
	if err != nil {
		return domain.PublicArea{}, err
	}
	_, saved, err := d.SetPublicArea(area)
	if err != nil {
		return domain.PublicArea{}, mapDesignErr(err)
	}
	if err := a.store.SavePublicArea(saved); err != nil {
		return domain.PublicArea{}, mapStoreErr(err, ErrProjectNotFound)
	}
	return saved, a.publish(ctx, projectID)
}

func (a *App) RemovePublicArea(ctx context.Context, ownerID, projectID, areaID string) error {
	d, err := a.loadDesign(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	if _, err := d.RemovePublicArea(areaID); err != nil {
		return mapDesignErr(err)
	}
	if err := a.store.DeletePublicArea(projectID, areaID); err != nil {
		return mapStoreErr(err, ErrAreaNotFound)
	}
	return a.publish(ctx, projectID)
}

// RequestRecalculation asks the pipeline to re-run compliance.
func (a *App) RequestRecalculation(ctx context.Context, ownerID, projectID string) error {
	if _, err := a.ownedProject(ownerID, projectID); err != nil {
		return err
	}
	return a.dispatcher.Dispatch(ctx, pipeline.RecalculateTask(projectID))
}

// RequestCost asks the pipeline for a cost run. Nil inputs take the defaults.
func (a *App) RequestCost(ctx context.Context, ownerID, projectID string, brandTier *string, regionalMultiplier *float64) error {
	if _, err := a.ownedProject(ownerID, projectID); err != nil {
		return err
	}
	tier := cost.DefaultBrandTier
	if brandTier != nil {
		tier = *brandTier
	}
	multiplier := cost.DefaultRegionalMultiplier
	if regionalMultiplier != nil {
		multiplier = *regionalMultiplier
	}
	return a.dispatcher.Dispatch(ctx, pipeline.CostTask(projectID, tier, multiplier))
}

// LatestCost returns the newest cost row, or false when none exists yet.
func (a *App) LatestCost(ownerID, projectID string) (domain.CostSummary, bool, error) {
	if _, err := a.ownedProject(ownerID, projectID); err != nil {
		return domain.CostSummary{}, false, err
	}
	return a.store.LatestCostSummary(projectID)
}

// CostHistory returns up to limit rows, newest first.
func (a *App) CostHistory(ownerID, projectID string, limit int) ([]domain.CostSummary, error) {
	if _, err := a.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	return a.store.ListCostSummaries(projectID, limit)
}

func (a *App) saveFloors(ctx context.Context, projectID string, floors ...domain.Floor) error {
	for _, f := range floors {
		if err := a.store.SaveFloor(f); err != nil {
			return mapStoreErr(err, ErrFloorNotFound)
		}
	}
	return a.publish(ctx, projectID)
}

// publish tells the pipeline the design changed. There is no coalescing:
// every mutation publishes.
func (a *App) publish(ctx context.Context, projectID string) error {
	if err := a.dispatcher.Dispatch(ctx, pipeline.DesignChangeTask(projectID)); err != nil {
		util.LoggerFromContext(ctx).Error("publish design change failed", "project_id", projectID, "err", err)
		return fmt.Errorf("%w: %v", ErrNotPublished, err)
	}
	return nil
}

func mapDesignErr(err error) error {
	switch {
	case errors.Is(err, design.ErrDuplicateLevel):
		return ErrDuplicateLevel
	case errors.Is(err, design.ErrFloorNotFound):
		return ErrFloorNotFound
	case errors.Is(err, design.ErrAreaNotFound):
		return ErrAreaNotFound
	case errors.Is(err, design.ErrInvalidFloor), errors.Is(err, design.ErrInvalidRoom), errors.Is(err, design.ErrInvalidArea):
		return fmt.Errorf("%w: %s", ErrInvalidDesign, strings.TrimSpace(err.Error()))
	default:
		return err
	}
}

func mapStoreErr(err, notFound error) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrDuplicateLevel
	case errors.Is(err, store.ErrNotFound):
		return notFound
	default:
		return err
	}
}
