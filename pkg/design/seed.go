package design

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"hotelplan/pkg/domain"
)

// FromBaseModel builds the initial design of a new project. One floor is
// created per floorMix entry; a repeated floorIndex keeps its first entry.
// Enabled public areas become areas sized from the answer, or from the
// catalog default when no size was given.
func FromBaseModel(projectID string, model domain.HotelBaseModel) Design {
	d := Design{ProjectID: projectID, Floors: []domain.Floor{}, PublicAreas: []domain.PublicArea{}}
	seenLevels := make(map[int]struct{}, len(model.FloorMix))
	for _, entry := range model.FloorMix {
		if _, dup := seenLevels[entry.FloorIndex]; dup {
			continue
		}
		seenLevels[entry.FloorIndex] = struct{}{}
		d.Floors = append(d.Floors, domain.Floor{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Name:      fmt.Sprintf("Floor %d", entry.FloorIndex),
			Level:     entry.FloorIndex,
			Height:    DefaultFloorHeight,
			FloorType: domain.FloorStandard,
			Rooms:     roomsFromMix(entry.RoomsByType),
		})
	}
	d.sortFloors()

	seenAreas := make(map[string]struct{}, len(model.PublicAreas))
	for _, choice := range model.PublicAreas {
		if !choice.Enabled {
			continue
		}
		area := areaFromChoice(projectID, choice)
		if _, dup := seenAreas[area.ID]; dup {
			continue
		}
		seenAreas[area.ID] = struct{}{}
		d.PublicAreas = append(d.PublicAreas, area)
	}
	return d
}

// RoomTypeID maps a room type name from the questionnaire to its catalog id.
// Any answer naming an accessible room maps to the id the ADA rule counts.
func RoomTypeID(name string) string {
	slug := domain.Slug(name)
	if strings.HasPrefix(slug, domain.AccessibleRoomTypeID) {
		return domain.AccessibleRoomTypeID
	}
	for _, t := range domain.RoomTypes {
		if t.ID == slug || strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t.ID
		}
	}
	return slug
}

func roomsFromMix(roomsByType map[string]int) []domain.RoomConfiguration {
	names := make([]string, 0, len(roomsByType))
	for name := range roomsByType {
		names = append(names, name)
	}
	sort.Strings(names)
	rooms := make([]domain.RoomConfiguration, 0, len(names))
	index := make(map[string]int, len(names))
	for _, name := range names {
		id := RoomTypeID(name)
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			rooms[i].Quantity += roomsByType[name]
			continue
		}
		index[id] = len(rooms)
		rooms = append(rooms, domain.RoomConfiguration{RoomTypeID: id, Quantity: roomsByType[name]})
	}
	return rooms
}

func areaFromChoice(projectID string, choice domain.PublicAreaChoice) domain.PublicArea {
	area := domain.PublicArea{
		ID:        domain.Slug(choice.Area),
		ProjectID: projectID,
		AreaType:  strings.TrimSpace(choice.Area),
		SizeSqft:  choice.Size,
		Level:     defaultAreaLevel,
	}
	if t, ok := domain.LookupPublicAreaType(choice.Area); ok {
		area.ID = t.ID
		area.AreaType = t.Name
		area.IsRequired = t.Required
		if area.SizeSqft == 0 {
			area.SizeSqft = t.DefaultSqft
		}
	}
	return area
}
