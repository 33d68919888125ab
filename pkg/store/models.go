package store

import (
	"time"

	"gorm.io/datatypes"

	"hotelplan/pkg/domain"
)

// GORM models used for persistence.
type ProjectModel struct {
	ID             string         `gorm:"primaryKey"`
	OwnerID        string         `gorm:"not null;index"`
	Name           string         `gorm:"not null"`
	Status         string         `gorm:"not null"`
	NonCompliance  datatypes.JSON `gorm:"type:jsonb"`
	TotalRooms     int            `gorm:"not null;default:0"`
	LastRecalcAt   *time.Time
	LastCostCalcAt *time.Time
	CreatedAt      time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (ProjectModel) TableName() string { return "projects" }

type BaseModelRecord struct {
	ProjectID  string                                    `gorm:"primaryKey"`
	Data       datatypes.JSONType[domain.HotelBaseModel] `gorm:"type:jsonb;not null"`
	ArchiveKey string
	CreatedAt  time.Time `gorm:"not null"`
}

func (BaseModelRecord) TableName() string { return "hotel_base_models" }

type FloorModel struct {
	ID        string    `gorm:"primaryKey"`
	ProjectID string    `gorm:"not null;uniqueIndex:idx_floors_project_level,priority:1"`
	Name      string    `gorm:"not null"`
	Level     int       `gorm:"not null;uniqueIndex:idx_floors_project_level,priority:2"`
	Height    float64   `gorm:"not null"`
	FloorType string    `gorm:"not null"`
	TotalArea float64   `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (FloorModel) TableName() string { return "floors" }

type RoomConfigurationModel struct {
	FloorID     string  `gorm:"primaryKey"`
	RoomTypeID  string  `gorm:"primaryKey"`
	Position    int     `gorm:"not null"`
	Quantity    int     `gorm:"not null"`
	AverageSize float64 `gorm:"not null"`
}

func (RoomConfigurationModel) TableName() string { return "room_configurations" }

type PublicAreaModel struct {
	ProjectID  string `gorm:"primaryKey"`
	ID         string `gorm:"primaryKey"`
	AreaType   string `gorm:"not null"`
	SizeSqft   int    `gorm:"not null"`
	IsRequired bool   `gorm:"not null"`
	Level      int    `gorm:"not null"`
	UpdatedAt  time.Time
}

func (PublicAreaModel) TableName() string { return "public_areas" }

type ProjectCostModel struct {
	ID                 string    `gorm:"primaryKey"`
	ProjectID          string    `gorm:"not null;index:idx_project_costs_project_created,priority:1"`
	LowCostPerKey      float64   `gorm:"not null"`
	MidCostPerKey      float64   `gorm:"not null"`
	HighCostPerKey     float64   `gorm:"not null"`
	TotalRooms         int       `gorm:"not null"`
	TotalLow           float64   `gorm:"not null"`
	TotalMid           float64   `gorm:"not null"`
	TotalHigh          float64   `gorm:"not null"`
	RegionalMultiplier float64   `gorm:"not null"`
	BrandTier          string    `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null;index:idx_project_costs_project_created,priority:2"`
}

func (ProjectCostModel) TableName() string { return "project_costs" }
