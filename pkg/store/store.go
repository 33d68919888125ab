package store

import (
	"errors"
	"time"

	"hotelplan/pkg/domain"
)

var (
	// ErrNotFound is returned by writers when the target row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness rule,
	// such as two floors on the same level of a project.
	ErrConflict = errors.New("store: conflict")
)

// ProjectSeed is everything persisted when a conversation completes.
type ProjectSeed struct {
	Project     domain.Project
	Model       domain.HotelBaseModel
	ArchiveKey  string
	Floors      []domain.Floor
	PublicAreas []domain.PublicArea
}

// Store defines persistence operations for projects, their design and their cost history.
type Store interface {
	// projects
	CreateProject(seed ProjectSeed) error
	GetProject(id string) (domain.Project, bool, error)
	ListProjectsByOwner(ownerID string) ([]domain.Project, error)
	GetBaseModel(projectID string) (domain.HotelBaseModel, bool, error)

	// status writes are absolute; the last writer wins.
	SetProjectStatus(id string, status domain.ProjectStatus) error
	SaveComplianceResult(id string, issues []domain.ComplianceIssue, totalRooms int, status domain.ProjectStatus, at time.Time) error
	SaveCostStatus(id string, status domain.ProjectStatus, at time.Time) error

	// floors
	SaveFloor(domain.Floor) error
	DeleteFloor(projectID, floorID string) error
	ListFloors(projectID string) ([]domain.Floor, error)

	// public areas
	SavePublicArea(domain.PublicArea) error
	DeletePublicArea(projectID, areaID string) error
	ListPublicAreas(projectID string) ([]domain.PublicArea, error)

	// costs, append-only
	AppendCostSummary(domain.CostSummary) error
	LatestCostSummary(projectID string) (domain.CostSummary, bool, error)
	ListCostSummaries(projectID string, limit int) ([]domain.CostSummary, error)
}
