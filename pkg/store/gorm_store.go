package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"hotelplan/pkg/domain"
)

const migrateLockID int64 = 48151623

const defaultCostListLimit = 20

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&ProjectModel{},
			&BaseModelRecord{},
			&FloorModel{},
			&RoomConfigurationModel{},
			&PublicAreaModel{},
			&ProjectCostModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'floors'
					AND constraint_name = 'floors_project_id_fkey'
				) THEN
					ALTER TABLE floors
					ADD CONSTRAINT floors_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'room_configurations'
					AND constraint_name = 'room_configurations_floor_id_fkey'
				) THEN
					ALTER TABLE room_configurations
					ADD CONSTRAINT room_configurations_floor_id_fkey
					FOREIGN KEY (floor_id) REFERENCES floors(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'public_areas'
					AND constraint_name = 'public_areas_project_id_fkey'
				) THEN
					ALTER TABLE public_areas
					ADD CONSTRAINT public_areas_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'project_costs'
					AND constraint_name = 'project_costs_project_id_fkey'
				) THEN
					ALTER TABLE project_costs
					ADD CONSTRAINT project_costs_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure project foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateProject persists a new project with its base model and seeded design in one transaction.
func (s *GormStore) CreateProject(seed ProjectSeed) error {
	return translate(s.db.Transaction(func(tx *gorm.DB) error {
		project := projectToModel(seed.Project)
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		record := BaseModelRecord{
			ProjectID:  seed.Project.ID,
			Data:       datatypes.NewJSONType(seed.Model),
			ArchiveKey: seed.ArchiveKey,
			CreatedAt:  seed.Project.CreatedAt,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		for _, floor := range seed.Floors {
			if err := saveFloor(tx, floor); err != nil {
				return err
			}
		}
		for _, area := range seed.PublicAreas {
			model := publicAreaToModel(area)
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		}
		return nil
	}))
}

// GetProject retrieves a project.
func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	p, err := projectFromModel(model)
	if err != nil {
		return domain.Project{}, false, err
	}
	return p, true, nil
}

// ListProjectsByOwner returns the owner's projects, newest first.
func (s *GormStore) ListProjectsByOwner(ownerID string) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		p, err := projectFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// GetBaseModel returns the model a project was created from.
func (s *GormStore) GetBaseModel(projectID string) (domain.HotelBaseModel, bool, error) {
	var record BaseModelRecord
	if err := s.db.First(&record, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.HotelBaseModel{}, false, nil
		}
		return domain.HotelBaseModel{}, false, err
	}
	return record.Data.Data(), true, nil
}

// SetProjectStatus overwrites the status.
func (s *GormStore) SetProjectStatus(id string, status domain.ProjectStatus) error {
	return s.updateProject(id, map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
}

// SaveComplianceResult replaces the issue list and room total and sets the status.
func (s *GormStore) SaveComplianceResult(id string, issues []domain.ComplianceIssue, totalRooms int, status domain.ProjectStatus, at time.Time) error {
	raw, err := marshalIssues(issues)
	if err != nil {
		return err
	}
	return s.updateProject(id, map[string]any{
		"non_compliance": raw,
		"total_rooms":    totalRooms,
		"status":         string(status),
		"last_recalc_at": at.UTC(),
		"updated_at":     time.Now().UTC(),
	})
}

// SaveCostStatus records the outcome of a cost calculation.
func (s *GormStore) SaveCostStatus(id string, status domain.ProjectStatus, at time.Time) error {
	return s.updateProject(id, map[string]any{
		"status":            string(status),
		"last_cost_calc_at": at.UTC(),
		"updated_at":        time.Now().UTC(),
	})
}

func (s *GormStore) updateProject(id string, updates map[string]any) error {
	res := s.db.Model(&ProjectModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveFloor stores or updates a floor and replaces its room configurations.
func (s *GormStore) SaveFloor(f domain.Floor) error {
	return translate(s.db.Transaction(func(tx *gorm.DB) error {
		return saveFloor(tx, f)
	}))
}

// saveFloor upserts by id. The update only applies to a row of the same
// project, so an id owned by another project affects nothing and reports
// ErrNotFound.
func saveFloor(tx *gorm.DB, f domain.Floor) error {
	model := floorToModel(f)
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "level", "height", "floor_type", "total_area", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "floors", Name: "project_id"}, Value: f.ProjectID},
		}},
	}).Create(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	if err := tx.Delete(&RoomConfigurationModel{}, "floor_id = ?", f.ID).Error; err != nil {
		return err
	}
	if len(f.Rooms) == 0 {
		return nil
	}
	rooms := make([]RoomConfigurationModel, 0, len(f.Rooms))
	for i, r := range f.Rooms {
		rooms = append(rooms, RoomConfigurationModel{
			FloorID:     f.ID,
			RoomTypeID:  r.RoomTypeID,
			Position:    i,
			Quantity:    r.Quantity,
			AverageSize: r.AverageSize,
		})
	}
	return tx.Create(&rooms).Error
}

// DeleteFloor removes a floor; room configurations go with it.
func (s *GormStore) DeleteFloor(projectID, floorID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&RoomConfigurationModel{}, "floor_id = ?", floorID).Error; err != nil {
			return err
		}
		res := tx.Delete(&FloorModel{}, "id = ? AND project_id = ?", floorID, projectID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListFloors returns a project's floors ordered by level, rooms attached.
func (s *GormStore) ListFloors(projectID string) ([]domain.Floor, error) {
	var floors []FloorModel
	if err := s.db.Where("project_id = ?", projectID).Order("level ASC").Find(&floors).Error; err != nil {
		return nil, err
	}
	if len(floors) == 0 {
		return []domain.Floor{}, nil
	}
	ids := make([]string, 0, len(floors))
	for _, f := range floors {
		ids = append(ids, f.ID)
	}
	var rooms []RoomConfigurationModel
	if err := s.db.Where("floor_id IN ?", ids).Order("position ASC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	byFloor := make(map[string][]domain.RoomConfiguration, len(floors))
	for _, r := range rooms {
		byFloor[r.FloorID] = append(byFloor[r.FloorID], domain.RoomConfiguration{
			RoomTypeID:  r.RoomTypeID,
			Quantity:    r.Quantity,
			AverageSize: r.AverageSize,
		})
	}
	res := make([]domain.Floor, 0, len(floors))
	for _, f := range floors {
		res = append(res, floorFromModel(f, byFloor[f.ID]))
	}
	return res, nil
}

// SavePublicArea stores or updates the area of one type.
func (s *GormStore) SavePublicArea(a domain.PublicArea) error {
	model := publicAreaToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"area_type", "size_sqft", "is_required", "level", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) DeletePublicArea(projectID, areaID string) error {
	res := s.db.Delete(&PublicAreaModel{}, "project_id = ? AND id = ?", projectID, areaID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPublicAreas returns a project's public areas ordered by level then id.
func (s *GormStore) ListPublicAreas(projectID string) ([]domain.PublicArea, error) {
	var models []PublicAreaModel
	if err := s.db.Where("project_id = ?", projectID).Order("level ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PublicArea, 0, len(models))
	for _, m := range models {
		res = append(res, publicAreaFromModel(m))
	}
	return res, nil
}

// AppendCostSummary inserts a cost row. Rows are never updated.
func (s *GormStore) AppendCostSummary(c domain.CostSummary) error {
	model := costToModel(c)
	return s.db.Create(&model).Error
}

// LatestCostSummary returns the most recent cost row of a project.
func (s *GormStore) LatestCostSummary(projectID string) (domain.CostSummary, bool, error) {
	var model ProjectCostModel
	if err := s.db.Where("project_id = ?", projectID).Order("created_at DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CostSummary{}, false, nil
		}
		return domain.CostSummary{}, false, err
	}
	return costFromModel(model), true, nil
}

// ListCostSummaries returns recent cost rows, newest first.
func (s *GormStore) ListCostSummaries(projectID string, limit int) ([]domain.CostSummary, error) {
	if limit <= 0 {
		limit = defaultCostListLimit
	}
	var models []ProjectCostModel
	if err := s.db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.CostSummary, 0, len(models))
	for _, m := range models {
		res = append(res, costFromModel(m))
	}
	return res, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func marshalIssues(issues []domain.ComplianceIssue) (datatypes.JSON, error) {
	if issues == nil {
		issues = []domain.ComplianceIssue{}
	}
	raw, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("marshal issues: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func projectToModel(p domain.Project) ProjectModel {
	raw, _ := marshalIssues(p.NonCompliance)
	return ProjectModel{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Name:           p.Name,
		Status:         string(p.Status),
		NonCompliance:  raw,
		TotalRooms:     p.TotalRooms,
		LastRecalcAt:   p.LastRecalcAt,
		LastCostCalcAt: p.LastCostCalcAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) (domain.Project, error) {
	status, err := domain.ParseProjectStatus(m.Status)
	if err != nil {
		status = domain.StatusDraft
	}
	issues := []domain.ComplianceIssue{}
	if len(m.NonCompliance) > 0 {
		if err := json.Unmarshal(m.NonCompliance, &issues); err != nil {
			return domain.Project{}, fmt.Errorf("decode non-compliance of project %s: %w", m.ID, err)
		}
	}
	return domain.Project{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		Name:           m.Name,
		Status:         status,
		NonCompliance:  issues,
		TotalRooms:     m.TotalRooms,
		LastRecalcAt:   m.LastRecalcAt,
		LastCostCalcAt: m.LastCostCalcAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func floorToModel(f domain.Floor) FloorModel {
	now := time.Now().UTC()
	return FloorModel{
		ID:        f.ID,
		ProjectID: f.ProjectID,
		Name:      f.Name,
		Level:     f.Level,
		Height:    f.Height,
		FloorType: string(f.FloorType),
		TotalArea: f.TotalArea,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func floorFromModel(m FloorModel, rooms []domain.RoomConfiguration) domain.Floor {
	if rooms == nil {
		rooms = []domain.RoomConfiguration{}
	}
	return domain.Floor{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Name:      m.Name,
		Level:     m.Level,
		Height:    m.Height,
		FloorType: domain.FloorType(m.FloorType),
		Rooms:     rooms,
		TotalArea: m.TotalArea,
	}
}

func publicAreaToModel(a domain.PublicArea) PublicAreaModel {
	return PublicAreaModel{
		ProjectID:  a.ProjectID,
		ID:         a.ID,
		AreaType:   a.AreaType,
		SizeSqft:   a.SizeSqft,
		IsRequired: a.IsRequired,
		Level:      a.Level,
		UpdatedAt:  time.Now().UTC(),
	}
}

func publicAreaFromModel(m PublicAreaModel) domain.PublicArea {
	return domain.PublicArea{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		AreaType:   m.AreaType,
		SizeSqft:   m.SizeSqft,
		IsRequired: m.IsRequired,
		Level:      m.Level,
	}
}

func costToModel(c domain.CostSummary) ProjectCostModel {
	return ProjectCostModel{
		ID:                 c.ID,
		ProjectID:          c.ProjectID,
		LowCostPerKey:      c.LowCostPerKey,
		MidCostPerKey:      c.MidCostPerKey,
		HighCostPerKey:     c.HighCostPerKey,
		TotalRooms:         c.TotalRooms,
		TotalLow:           c.TotalLow,
		TotalMid:           c.TotalMid,
		TotalHigh:          c.TotalHigh,
		RegionalMultiplier: c.RegionalMultiplier,
		BrandTier:          c.BrandTier,
		CreatedAt:          c.CreatedAt,
	}
}

func costFromModel(m ProjectCostModel) domain.CostSummary {
	return domain.CostSummary{
		ID:                 m.ID,
		ProjectID:          m.ProjectID,
		LowCostPerKey:      m.LowCostPerKey,
		MidCostPerKey:      m.MidCostPerKey,
		HighCostPerKey:     m.HighCostPerKey,
		TotalRooms:         m.TotalRooms,
		TotalLow:           m.TotalLow,
		TotalMid:           m.TotalMid,
		TotalHigh:          m.TotalHigh,
		RegionalMultiplier: m.RegionalMultiplier,
		BrandTier:          m.BrandTier,
		CreatedAt:          m.CreatedAt,
	}
}
