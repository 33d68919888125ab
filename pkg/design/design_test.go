package design

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotelplan/pkg/domain"
)

func sampleModel() domain.HotelBaseModel {
	return domain.HotelBaseModel{
		SiteLocation: "Austin",
		BrandFlag:    "Hilton",
		FloorCount:   2,
		RoomTypes:    []string{"Standard King", "Accessible Room"},
		FloorMix: []domain.FloorMixEntry{
			{FloorIndex: 2, RoomsByType: map[string]int{"Standard King": 20}},
			{FloorIndex: 1, RoomsByType: map[string]int{"Standard King": 18, "Accessible Room": 2}},
			{FloorIndex: 1, RoomsByType: map[string]int{"Standard King": 99}},
		},
		PublicAreas: []domain.PublicAreaChoice{
			{Area: "Lobby", Enabled: true},
			{Area: "Bar/Lounge", Enabled: true, Size: 600},
			{Area: "Pool", Enabled: false, Size: 900},
		},
	}
}

func TestFromBaseModelSeedsFloorsAndAreas(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())

	require.Len(t, d.Floors, 2)
	assert.Equal(t, 1, d.Floors[0].Level)
	assert.Equal(t, "Floor 1", d.Floors[0].Name)
	assert.Equal(t, DefaultFloorHeight, d.Floors[0].Height)
	assert.Equal(t, domain.FloorStandard, d.Floors[0].FloorType)
	room, ok := d.Floors[0].Room(domain.AccessibleRoomTypeID)
	require.True(t, ok)
	assert.Equal(t, 2, room.Quantity)
	assert.Equal(t, 20, d.Floors[0].RoomCount(), "repeated floorIndex keeps its first entry")

	require.Len(t, d.PublicAreas, 2)
	lobby, ok := d.PublicArea(domain.LobbyAreaID)
	require.True(t, ok)
	assert.Equal(t, 800, lobby.SizeSqft)
	assert.True(t, lobby.IsRequired)
	bar, ok := d.PublicArea("bar-lounge")
	require.True(t, ok)
	assert.Equal(t, 600, bar.SizeSqft)
	assert.Equal(t, "Bar/Lounge", bar.AreaType)
}

func TestAddFloorDefaultsAndUniqueLevel(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())

	next, floor, err := d.AddFloor(domain.Floor{})
	require.NoError(t, err)
	assert.Equal(t, 3, floor.Level)
	assert.Equal(t, "Floor 3", floor.Name)
	assert.Equal(t, "p1", floor.ProjectID)
	assert.NotEmpty(t, floor.ID)
	assert.Len(t, next.Floors, 3)
	assert.Len(t, d.Floors, 2, "receiver is not modified")

	_, _, err = next.AddFloor(domain.Floor{Name: "Mezzanine", Level: 2})
	assert.ErrorIs(t, err, ErrDuplicateLevel)

	_, _, err = next.AddFloor(domain.Floor{Name: "Roof", Level: 9, FloorType: "attic"})
	assert.ErrorIs(t, err, ErrInvalidFloor)
}

func TestAddFloorIgnoresSuppliedID(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())
	other := FromBaseModel("p2", sampleModel())
	foreignID := other.Floors[0].ID

	next, floor, err := d.AddFloor(domain.Floor{ID: foreignID, ProjectID: "p2", Name: "Annex"})
	require.NoError(t, err)
	assert.NotEqual(t, foreignID, floor.ID)
	assert.Equal(t, "p1", floor.ProjectID)
	_, ok := next.Floor(floor.ID)
	assert.True(t, ok)

	after, second, err := next.AddFloor(domain.Floor{ID: floor.ID, Name: "Annex 2"})
	require.NoError(t, err)
	assert.NotEqual(t, floor.ID, second.ID)
	assert.Len(t, after.Floors, 4)
}

func TestAddFloorRejectsDuplicateRoomTypes(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())

	_, _, err := d.AddFloor(domain.Floor{Rooms: []domain.RoomConfiguration{
		{RoomTypeID: domain.AccessibleRoomTypeID, Quantity: 1},
		{RoomTypeID: domain.AccessibleRoomTypeID, Quantity: 9},
		{RoomTypeID: "standard-king", Quantity: 10},
	}})
	assert.ErrorIs(t, err, ErrInvalidRoom)

	_, _, err = d.AddFloor(domain.Floor{Rooms: []domain.RoomConfiguration{{RoomTypeID: " ", Quantity: 1}}})
	assert.ErrorIs(t, err, ErrInvalidRoom)

	_, floor, err := d.AddFloor(domain.Floor{Rooms: []domain.RoomConfiguration{
		{RoomTypeID: domain.AccessibleRoomTypeID, Quantity: 1},
		{RoomTypeID: "standard-king", Quantity: 10},
	}})
	require.NoError(t, err)
	assert.Equal(t, 11, floor.RoomCount())
}

func TestUpdateFloorLevelCollision(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())
	top := d.Floors[1]

	level := 1
	_, _, err := d.UpdateFloor(top.ID, FloorPatch{Level: &level})
	assert.True(t, errors.Is(err, ErrDuplicateLevel))

	level = 5
	kind := domain.FloorPenthouse
	next, floor, err := d.UpdateFloor(top.ID, FloorPatch{Level: &level, FloorType: &kind})
	require.NoError(t, err)
	assert.Equal(t, 5, floor.Level)
	assert.Equal(t, domain.FloorPenthouse, next.Floors[1].FloorType)

	_, _, err = d.UpdateFloor("missing", FloorPatch{})
	assert.ErrorIs(t, err, ErrFloorNotFound)
}

func TestSetRoomQuantityAddsMissingEntry(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())
	floorID := d.Floors[1].ID

	next, floor, err := d.SetRoomQuantity(floorID, "suite", 4)
	require.NoError(t, err)
	room, ok := floor.Room("suite")
	require.True(t, ok)
	assert.Equal(t, domain.RoomConfiguration{RoomTypeID: "suite", Quantity: 4, AverageSize: 0}, room)
	assert.Equal(t, 24, next.KPIs().TotalRooms-next.Floors[0].RoomCount())

	_, _, err = d.SetRoomQuantity(floorID, "suite", -1)
	assert.ErrorIs(t, err, ErrInvalidRoom)

	_, ok = d.Floors[1].Room("suite")
	assert.False(t, ok, "receiver keeps its rooms")
}

func TestUpdateRoomConfiguration(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())
	_, floor, err := d.UpdateRoomConfiguration(d.Floors[0].ID, domain.RoomConfiguration{RoomTypeID: "standard-king", Quantity: 10, AverageSize: 325})
	require.NoError(t, err)
	room, _ := floor.Room("standard-king")
	assert.Equal(t, 10, room.Quantity)
	assert.Equal(t, 325.0, room.AverageSize)
}

func TestBulkSetRoomsSkipsNonPositive(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())
	ids := []string{d.Floors[0].ID, d.Floors[1].ID}

	next, changed, err := d.BulkSetRooms(ids, map[string]int{"suite": 3, "standard-king": 0, "standard-double": -2})
	require.NoError(t, err)
	require.Len(t, changed, 2)
	for _, f := range next.Floors {
		room, ok := f.Room("suite")
		require.True(t, ok)
		assert.Equal(t, 3, room.Quantity)
		_, ok = f.Room("standard-double")
		assert.False(t, ok)
	}
	king, _ := next.Floors[1].Room("standard-king")
	assert.Equal(t, 20, king.Quantity, "zero quantities are not applied")

	_, _, err = d.BulkSetRooms([]string{"missing"}, map[string]int{"suite": 1})
	assert.ErrorIs(t, err, ErrFloorNotFound)
}

func TestPublicAreaCommands(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())

	next, area, err := d.SetPublicArea(domain.PublicArea{ID: "elevator", SizeSqft: 150})
	require.NoError(t, err)
	assert.Equal(t, "Elevator Core", area.AreaType)
	assert.Equal(t, 1, area.Level)
	assert.Len(t, next.PublicAreas, 3)

	next, _, err = next.SetPublicArea(domain.PublicArea{ID: "elevator", SizeSqft: 200})
	require.NoError(t, err)
	assert.Len(t, next.PublicAreas, 3, "one area per type")

	_, _, err = next.SetPublicArea(domain.PublicArea{ID: "pool", SizeSqft: -1})
	assert.ErrorIs(t, err, ErrInvalidArea)

	next, err = next.RemovePublicArea(domain.LobbyAreaID)
	require.NoError(t, err)
	_, ok := next.PublicArea(domain.LobbyAreaID)
	assert.False(t, ok)
	_, err = next.RemovePublicArea(domain.LobbyAreaID)
	assert.ErrorIs(t, err, ErrAreaNotFound)
}

func TestKPIs(t *testing.T) {
	d := FromBaseModel("p1", sampleModel())
	k := d.KPIs()

	assert.Equal(t, 40, k.TotalRooms)
	assert.Equal(t, 2, k.TotalFloors)
	assert.Equal(t, 20, k.AverageRoomsPerFloor)
	assert.Equal(t, 2, k.AccessibleRooms)
	assert.Equal(t, 1400, k.PublicAreaSqft)
	assert.InDelta(t, 40*125000+1400*200, k.EstimatedCost, 1e-6)

	assert.Equal(t, KPIs{}, New("empty", nil, nil).KPIs())
}

func TestRoomTypeID(t *testing.T) {
	assert.Equal(t, "standard-king", RoomTypeID("Standard King"))
	assert.Equal(t, domain.AccessibleRoomTypeID, RoomTypeID("Accessible Room"))
	assert.Equal(t, "junior-suite", RoomTypeID("Junior Suite"))
}
