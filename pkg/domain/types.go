package domain

import "time"

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one turn of the guided conversation.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

type FloorType string

const (
	FloorStandard   FloorType = "standard"
	FloorPenthouse  FloorType = "penthouse"
	FloorMechanical FloorType = "mechanical"
)

// Valid reports whether t is one of the known floor types.
func (t FloorType) Valid() bool {
	switch t {
	case FloorStandard, FloorPenthouse, FloorMechanical:
		return true
	default:
		return false
	}
}

type IssueType string

const (
	IssueError   IssueType = "error"
	IssueWarning IssueType = "warning"
	IssueInfo    IssueType = "info"
)

// HotelBaseModel is the validated output of a completed conversation.
type HotelBaseModel struct {
	SiteLocation string             `json:"siteLocation" validate:"required"`
	BrandFlag    string             `json:"brandFlag" validate:"required"`
	FloorCount   int                `json:"floorCount" validate:"min=1,max=40"`
	RoomTypes    []string           `json:"roomTypes" validate:"min=1,dive,required"`
	FloorMix     []FloorMixEntry    `json:"floorMix" validate:"dive"`
	PublicAreas  []PublicAreaChoice `json:"publicAreas" validate:"dive"`
}

type FloorMixEntry struct {
	FloorIndex  int            `json:"floorIndex" validate:"min=1"`
	RoomsByType map[string]int `json:"roomsByType" validate:"dive,min=0"`
}

type PublicAreaChoice struct {
	Area    string `json:"area"`
	Enabled bool   `json:"enabled"`
	Size    int    `json:"size" validate:"min=0"`
}

type RoomConfiguration struct {
	RoomTypeID  string  `json:"roomTypeId"`
	Quantity    int     `json:"quantity"`
	AverageSize float64 `json:"averageSize"`
}

type Floor struct {
	ID        string              `json:"id"`
	ProjectID string              `json:"projectId"`
	Name      string              `json:"name"`
	Level     int                 `json:"level"`
	Height    float64             `json:"height"`
	FloorType FloorType           `json:"floorType"`
	Rooms     []RoomConfiguration `json:"rooms"`
	TotalArea float64             `json:"totalArea"`
}

// RoomCount sums quantities across all room configurations on the floor.
func (f Floor) RoomCount() int {
	total := 0
	for _, r := range f.Rooms {
		total += r.Quantity
	}
	return total
}

// Room returns the configuration for roomTypeID, if the floor has one.
func (f Floor) Room(roomTypeID string) (RoomConfiguration, bool) {
	for _, r := range f.Rooms {
		if r.RoomTypeID == roomTypeID {
			return r, true
		}
	}
	return RoomConfiguration{}, false
}

type PublicArea struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	AreaType   string `json:"areaType"`
	SizeSqft   int    `json:"sizeSqft"`
	IsRequired bool   `json:"isRequired"`
	Level      int    `json:"level"`
}

type ComplianceIssue struct {
	Type           IssueType `json:"type"`
	Message        string    `json:"message"`
	Recommendation string    `json:"recommendation,omitempty"`
}

// HasErrors reports whether any issue is of type error.
func HasErrors(issues []ComplianceIssue) bool {
	for _, issue := range issues {
		if issue.Type == IssueError {
			return true
		}
	}
	return false
}

type CostSummary struct {
	ID                 string    `json:"id"`
	ProjectID          string    `json:"projectId"`
	LowCostPerKey      float64   `json:"low_cost_per_key"`
	MidCostPerKey      float64   `json:"mid_cost_per_key"`
	HighCostPerKey     float64   `json:"high_cost_per_key"`
	TotalRooms         int       `json:"total_rooms"`
	TotalLow           float64   `json:"total_low"`
	TotalMid           float64   `json:"total_mid"`
	TotalHigh          float64   `json:"total_high"`
	RegionalMultiplier float64   `json:"regional_multiplier"`
	BrandTier          string    `json:"brand_tier"`
	CreatedAt          time.Time `json:"created_at"`
}

type Project struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"ownerId"`
	Name           string            `json:"name"`
	Status         ProjectStatus     `json:"status"`
	NonCompliance  []ComplianceIssue `json:"non_compliance"`
	TotalRooms     int               `json:"totalRooms"`
	LastRecalcAt   *time.Time        `json:"lastRecalcAt,omitempty"`
	LastCostCalcAt *time.Time        `json:"lastCostCalcAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}
