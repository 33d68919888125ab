package store

import (
	"sort"
	"sync"
	"time"

	"hotelplan/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and single-node dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]domain.Project
	models   map[string]domain.HotelBaseModel
	floors   map[string]map[string]domain.Floor      // project ID -> floor ID -> floor
	areas    map[string]map[string]domain.PublicArea // project ID -> area ID -> area
	costs    map[string][]domain.CostSummary         // project ID -> rows in insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]domain.Project),
		models:   make(map[string]domain.HotelBaseModel),
		floors:   make(map[string]map[string]domain.Floor),
		areas:    make(map[string]map[string]domain.PublicArea),
		costs:    make(map[string][]domain.CostSummary),
	}
}

func (m *MemoryStore) CreateProject(seed ProjectSeed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.projects[seed.Project.ID]; exists {
		return ErrConflict
	}
	levels := make(map[int]struct{}, len(seed.Floors))
	for _, f := range seed.Floors {
		if _, dup := levels[f.Level]; dup {
			return ErrConflict
		}
		levels[f.Level] = struct{}{}
	}
	p := seed.Project
	p.NonCompliance = cloneIssues(p.NonCompliance)
	m.projects[p.ID] = p
	m.models[p.ID] = seed.Model
	floors := make(map[string]domain.Floor, len(seed.Floors))
	for _, f := range seed.Floors {
		floors[f.ID] = cloneFloor(f)
	}
	m.floors[p.ID] = floors
	areas := make(map[string]domain.PublicArea, len(seed.PublicAreas))
	for _, a := range seed.PublicAreas {
		areas[a.ID] = a
	}
	m.areas[p.ID] = areas
	return nil
}

func (m *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, false, nil
	}
	p.NonCompliance = cloneIssues(p.NonCompliance)
	return p, true, nil
}

// ListProjectsByOwner returns the owner's projects, newest first.
func (m *MemoryStore) ListProjectsByOwner(ownerID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0)
	for _, p := range m.projects {
		if p.OwnerID != ownerID {
			continue
		}
		p.NonCompliance = cloneIssues(p.NonCompliance)
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) GetBaseModel(projectID string) (domain.HotelBaseModel, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, ok := m.models[projectID]
	return model, ok, nil
}

func (m *MemoryStore) SetProjectStatus(id string, status domain.ProjectStatus) error {
	return m.updateProject(id, func(p *domain.Project) {
		p.Status = status
	})
}

func (m *MemoryStore) SaveComplianceResult(id string, issues []domain.ComplianceIssue, totalRooms int, status domain.ProjectStatus, at time.Time) error {
	return m.updateProject(id, func(p *domain.Project) {
		stamp := at.UTC()
		p.NonCompliance = cloneIssues(issues)
		p.TotalRooms = totalRooms
		p.Status = status
		p.LastRecalcAt = &stamp
	})
}

func (m *MemoryStore) SaveCostStatus(id string, status domain.ProjectStatus, at time.Time) error {
	return m.updateProject(id, func(p *domain.Project) {
		stamp := at.UTC()
		p.Status = status
		p.LastCostCalcAt = &stamp
	})
}

func (m *MemoryStore) updateProject(id string, apply func(*domain.Project)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	apply(&p)
	p.UpdatedAt = time.Now().UTC()
	m.projects[id] = p
	return nil
}

// SaveFloor stores or replaces a floor. Level must stay unique within the
// project, and an id held by another project is reported as ErrNotFound.
func (m *MemoryStore) SaveFloor(f domain.Floor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for projectID, floors := range m.floors {
		if _, taken := floors[f.ID]; taken && projectID != f.ProjectID {
			return ErrNotFound
		}
	}
	floors, ok := m.floors[f.ProjectID]
	if !ok {
		floors = make(map[string]domain.Floor)
		m.floors[f.ProjectID] = floors
	}
	for id, existing := range floors {
		if id != f.ID && existing.Level == f.Level {
			return ErrConflict
		}
	}
	floors[f.ID] = cloneFloor(f)
	return nil
}

func (m *MemoryStore) DeleteFloor(projectID, floorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	floors := m.floors[projectID]
	if _, ok := floors[floorID]; !ok {
		return ErrNotFound
	}
	delete(floors, floorID)
	return nil
}

// ListFloors returns floors ordered by level.
func (m *MemoryStore) ListFloors(projectID string) ([]domain.Floor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Floor, 0, len(m.floors[projectID]))
	for _, f := range m.floors[projectID] {
		res = append(res, cloneFloor(f))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Level < res[j].Level })
	return res, nil
}

func (m *MemoryStore) SavePublicArea(a domain.PublicArea) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	areas, ok := m.areas[a.ProjectID]
	if !ok {
		areas = make(map[string]domain.PublicArea)
		m.areas[a.ProjectID] = areas
	}
	areas[a.ID] = a
	return nil
}

func (m *MemoryStore) DeletePublicArea(projectID, areaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	areas := m.areas[projectID]
	if _, ok := areas[areaID]; !ok {
		return ErrNotFound
	}
	delete(areas, areaID)
	return nil
}

// ListPublicAreas returns areas ordered by level then id.
func (m *MemoryStore) ListPublicAreas(projectID string) ([]domain.PublicArea, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PublicArea, 0, len(m.areas[projectID]))
	for _, a := range m.areas[projectID] {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Level != res[j].Level {
			return res[i].Level < res[j].Level
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// AppendCostSummary appends a cost row. Duplicates are kept.
func (m *MemoryStore) AppendCostSummary(c domain.CostSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costs[c.ProjectID] = append(m.costs[c.ProjectID], c)
	return nil
}

func (m *MemoryStore) LatestCostSummary(projectID string) (domain.CostSummary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.costs[projectID]
	if len(rows) == 0 {
		return domain.CostSummary{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

// ListCostSummaries returns up to limit rows, newest first.
func (m *MemoryStore) ListCostSummaries(projectID string, limit int) ([]domain.CostSummary, error) {
	if limit <= 0 {
		limit = defaultCostListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.costs[projectID]
	res := make([]domain.CostSummary, 0, min(limit, len(rows)))
	for i := len(rows) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, rows[i])
	}
	return res, nil
}

func cloneIssues(issues []domain.ComplianceIssue) []domain.ComplianceIssue {
	res := make([]domain.ComplianceIssue, len(issues))
	copy(res, issues)
	return res
}

func cloneFloor(f domain.Floor) domain.Floor {
	rooms := make([]domain.RoomConfiguration, len(f.Rooms))
	copy(rooms, f.Rooms)
	f.Rooms = rooms
	return f
}
