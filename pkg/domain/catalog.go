package domain

import "strings"

// AccessibleRoomTypeID is the room type counted by the ADA rule.
const AccessibleRoomTypeID = "accessible"

// LobbyAreaID is the public area every hotel must configure.
const LobbyAreaID = "lobby"

type RoomType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var RoomTypes = []RoomType{
	{ID: "standard-king", Name: "Standard King"},
	{ID: "standard-double", Name: "Standard Double"},
	{ID: "suite", Name: "Suite"},
	{ID: AccessibleRoomTypeID, Name: "Accessible"},
}

type PublicAreaType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MinSqft     int    `json:"min"`
	MaxSqft     int    `json:"max"`
	DefaultSqft int    `json:"defaultSize"`
	Required    bool   `json:"required"`
}

var PublicAreaTypes = []PublicAreaType{
	{ID: LobbyAreaID, Name: "Lobby", MinSqft: 500, MaxSqft: 3000, DefaultSqft: 800, Required: true},
	{ID: "restaurant", Name: "Restaurant", MinSqft: 800, MaxSqft: 5000, DefaultSqft: 1200},
	{ID: "fitness", Name: "Fitness Center", MinSqft: 400, MaxSqft: 2000, DefaultSqft: 600},
	{ID: "pool", Name: "Pool Area", MinSqft: 600, MaxSqft: 4000, DefaultSqft: 1000},
	{ID: "business-center", Name: "Business Center", MinSqft: 200, MaxSqft: 800, DefaultSqft: 300},
	{ID: "conference-room", Name: "Conference Room", MinSqft: 300, MaxSqft: 1500, DefaultSqft: 500},
	{ID: "elevator", Name: "Elevator Core", MinSqft: 100, MaxSqft: 300, DefaultSqft: 150},
	{ID: "laundry", Name: "Laundry Facility", MinSqft: 200, MaxSqft: 800, DefaultSqft: 400},
	{ID: "storage", Name: "Storage", MinSqft: 100, MaxSqft: 500, DefaultSqft: 200},
	{ID: "parking-garage", Name: "Parking Garage", MinSqft: 5000, MaxSqft: 50000, DefaultSqft: 15000},
}

// LookupPublicAreaType finds a catalog entry by id or display name.
func LookupPublicAreaType(key string) (PublicAreaType, bool) {
	key = strings.TrimSpace(key)
	for _, t := range PublicAreaTypes {
		if strings.EqualFold(t.ID, key) || strings.EqualFold(t.Name, key) {
			return t, true
		}
	}
	return PublicAreaType{}, false
}

// Slug lowercases name and joins its words with dashes: "Junior Suite" -> "junior-suite".
func Slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}
