// Package design holds a project's editable building design. A Design is a
// value: every command returns a new Design and leaves the receiver untouched.
package design

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"hotelplan/pkg/domain"
)

var (
	ErrDuplicateLevel = errors.New("a floor already exists on this level")
	ErrFloorNotFound  = errors.New("floor not found")
	ErrAreaNotFound   = errors.New("public area not found")
	ErrInvalidFloor   = errors.New("invalid floor")
	ErrInvalidRoom    = errors.New("invalid room configuration")
	ErrInvalidArea    = errors.New("invalid public area")
)

const (
	DefaultFloorHeight = 9.0
	defaultAreaLevel   = 1
)

type Design struct {
	ProjectID   string
	Floors      []domain.Floor
	PublicAreas []domain.PublicArea
}

// New sorts the inputs into a Design. Slices are copied.
func New(projectID string, floors []domain.Floor, areas []domain.PublicArea) Design {
	d := Design{
		ProjectID:   projectID,
		Floors:      cloneFloors(floors),
		PublicAreas: append([]domain.PublicArea{}, areas...),
	}
	d.sortFloors()
	return d
}

// Floor looks up a floor by id.
func (d Design) Floor(id string) (domain.Floor, bool) {
	for _, f := range d.Floors {
		if f.ID == id {
			return f, true
		}
	}
	return domain.Floor{}, false
}

func (d Design) PublicArea(id string) (domain.PublicArea, bool) {
	for _, a := range d.PublicAreas {
		if a.ID == id {
			return a, true
		}
	}
	return domain.PublicArea{}, false
}

// NextLevel is one above the highest existing level, or 1 for an empty design.
func (d Design) NextLevel() int {
	next := 1
	for _, f := range d.Floors {
		if f.Level >= next {
			next = f.Level + 1
		}
	}
	return next
}

// FloorPatch carries the fields of an UpdateFloor call. Nil fields are left alone.
type FloorPatch struct {
	Name      *string           `json:"name,omitempty"`
	Level     *int              `json:"level,omitempty"`
	Height    *float64          `json:"height,omitempty"`
	FloorType *domain.FloorType `json:"floorType,omitempty"`
	TotalArea *float64          `json:"totalArea,omitempty"`
}

// AddFloor appends f under a freshly generated id; any id on f is ignored.
// Missing fields get defaults: the next free level, a standard floor type
// and the default height.
func (d Design) AddFloor(f domain.Floor) (Design, domain.Floor, error) {
	f.ID = uuid.NewString()
	f.ProjectID = d.ProjectID
	if f.Level == 0 {
		f.Level = d.NextLevel()
	}
	if f.FloorType == "" {
		f.FloorType = domain.FloorStandard
	}
	if f.Height == 0 {
		f.Height = DefaultFloorHeight
	}
	if strings.TrimSpace(f.Name) == "" {
		f.Name = fmt.Sprintf("Floor %d", f.Level)
	}
	if f.Rooms == nil {
		f.Rooms = []domain.RoomConfiguration{}
	}
	if err := validateFloor(f); err != nil {
		return d, domain.Floor{}, err
	}
	if d.levelTaken(f.Level, "") {
		return d, domain.Floor{}, ErrDuplicateLevel
	}
	next := d.clone()
	next.Floors = append(next.Floors, cloneFloor(f))
	next.sortFloors()
	return next, f, nil
}

func (d Design) UpdateFloor(id string, patch FloorPatch) (Design, domain.Floor, error) {
	return d.mutateFloor(id, func(f *domain.Floor) error {
		if patch.Name != nil {
			f.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Level != nil {
			if d.levelTaken(*patch.Level, id) {
				return ErrDuplicateLevel
			}
			f.Level = *patch.Level
		}
		if patch.Height != nil {
			f.Height = *patch.Height
		}
		if patch.FloorType != nil {
			f.FloorType = *patch.FloorType
		}
		if patch.TotalArea != nil {
			f.TotalArea = *patch.TotalArea
		}
		return validateFloor(*f)
	})
}

func (d Design) RemoveFloor(id string) (Design, error) {
	if _, ok := d.Floor(id); !ok {
		return d, ErrFloorNotFound
	}
	next := d.clone()
	kept := next.Floors[:0]
	for _, f := range next.Floors {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	next.Floors = kept
	return next, nil
}

// SetRoomQuantity sets the quantity of one room type on a floor, adding the
// entry with a zero average size when the floor does not have it yet.
func (d Design) SetRoomQuantity(floorID, roomTypeID string, quantity int) (Design, domain.Floor, error) {
	if quantity < 0 {
		return d, domain.Floor{}, fmt.Errorf("%w: quantity must be >= 0", ErrInvalidRoom)
	}
	return d.mutateFloor(floorID, func(f *domain.Floor) error {
		return upsertRoom(f, roomTypeID, func(r *domain.RoomConfiguration) {
			r.Quantity = quantity
		})
	})
}

// UpdateRoomConfiguration sets quantity and average size together.
func (d Design) UpdateRoomConfiguration(floorID string, room domain.RoomConfiguration) (Design, domain.Floor, error) {
	if room.Quantity < 0 || room.AverageSize < 0 {
		return d, domain.Floor{}, fmt.Errorf("%w: quantity and averageSize must be >= 0", ErrInvalidRoom)
	}
	return d.mutateFloor(floorID, func(f *domain.Floor) error {
		return upsertRoom(f, room.RoomTypeID, func(r *domain.RoomConfiguration) {
			r.Quantity = room.Quantity
			r.AverageSize = room.AverageSize
		})
	})
}

// BulkSetRooms applies rooms to every listed floor. Only positive quantities
// are applied; zero or negative entries are skipped. It returns the floors it changed.
func (d Design) BulkSetRooms(floorIDs []string, rooms map[string]int) (Design, []domain.Floor, error) {
	types := make([]string, 0, len(rooms))
	for roomTypeID, qty := range rooms {
		if qty > 0 {
			types = append(types, roomTypeID)
		}
	}
	sort.Strings(types)

	next := d
	changed := make([]domain.Floor, 0, len(floorIDs))
	for _, floorID := range floorIDs {
		var floor domain.Floor
		var err error
		next, floor, err = next.mutateFloor(floorID, func(f *domain.Floor) error {
			for _, roomTypeID := range types {
				qty := rooms[roomTypeID]
				if err := upsertRoom(f, roomTypeID, func(r *domain.RoomConfiguration) { r.Quantity = qty }); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return d, nil, err
		}
		changed = append(changed, floor)
	}
	return next, changed, nil
}

// SetPublicArea adds or replaces the area of a.ID's type.
func (d Design) SetPublicArea(a domain.PublicArea) (Design, domain.PublicArea, error) {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return d, domain.PublicArea{}, fmt.Errorf("%w: id is required", ErrInvalidArea)
	}
	if a.SizeSqft < 0 {
		return d, domain.PublicArea{}, fmt.Errorf("%w: sizeSqft must be >= 0", ErrInvalidArea)
	}
	if strings.TrimSpace(a.AreaType) == "" {
		if t, ok := domain.LookupPublicAreaType(a.ID); ok {
			a.AreaType = t.Name
		} else {
			a.AreaType = a.ID
		}
	}
	if a.Level == 0 {
		a.Level = defaultAreaLevel
	}
	a.ProjectID = d.ProjectID
	next := d.clone()
	for i := range next.PublicAreas {
		if next.PublicAreas[i].ID == a.ID {
			next.PublicAreas[i] = a
			return next, a, nil
		}
	}
	next.PublicAreas = append(next.PublicAreas, a)
	return next, a, nil
}

func (d Design) RemovePublicArea(id string) (Design, error) {
	if _, ok := d.PublicArea(id); !ok {
		return d, ErrAreaNotFound
	}
	next := d.clone()
	kept := next.PublicAreas[:0]
	for _, a := range next.PublicAreas {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	next.PublicAreas = kept
	return next, nil
}

func (d Design) mutateFloor(id string, apply func(*domain.Floor) error) (Design, domain.Floor, error) {
	next := d.clone()
	for i := range next.Floors {
		if next.Floors[i].ID != id {
			continue
		}
		f := cloneFloor(next.Floors[i])
		if err := apply(&f); err != nil {
			return d, domain.Floor{}, err
		}
		next.Floors[i] = f
		next.sortFloors()
		return next, f, nil
	}
	return d, domain.Floor{}, ErrFloorNotFound
}

func (d Design) levelTaken(level int, exceptID string) bool {
	for _, f := range d.Floors {
		if f.Level == level && f.ID != exceptID {
			return true
		}
	}
	return false
}

func (d Design) clone() Design {
	return Design{
		ProjectID:   d.ProjectID,
		Floors:      cloneFloors(d.Floors),
		PublicAreas: append([]domain.PublicArea{}, d.PublicAreas...),
	}
}

func (d *Design) sortFloors() {
	sort.SliceStable(d.Floors, func(i, j int) bool { return d.Floors[i].Level < d.Floors[j].Level })
}

func upsertRoom(f *domain.Floor, roomTypeID string, apply func(*domain.RoomConfiguration)) error {
	roomTypeID = strings.TrimSpace(roomTypeID)
	if roomTypeID == "" {
		return fmt.Errorf("%w: roomTypeId is required", ErrInvalidRoom)
	}
	for i := range f.Rooms {
		if f.Rooms[i].RoomTypeID == roomTypeID {
			apply(&f.Rooms[i])
			return nil
		}
	}
	room := domain.RoomConfiguration{RoomTypeID: roomTypeID}
	apply(&room)
	f.Rooms = append(f.Rooms, room)
	return nil
}

func validateFloor(f domain.Floor) error {
	switch {
	case strings.TrimSpace(f.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidFloor)
	case !f.FloorType.Valid():
		return fmt.Errorf("%w: unknown floor type %q", ErrInvalidFloor, f.FloorType)
	case f.Height < 0 || f.TotalArea < 0:
		return fmt.Errorf("%w: height and totalArea must be >= 0", ErrInvalidFloor)
	}
	seen := make(map[string]struct{}, len(f.Rooms))
	for _, r := range f.Rooms {
		id := strings.TrimSpace(r.RoomTypeID)
		if id == "" {
			return fmt.Errorf("%w: roomTypeId is required", ErrInvalidRoom)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s listed more than once", ErrInvalidRoom, id)
		}
		seen[id] = struct{}{}
		if r.Quantity < 0 || r.AverageSize < 0 {
			return fmt.Errorf("%w: %s has a negative value", ErrInvalidRoom, id)
		}
	}
	return nil
}

func cloneFloor(f domain.Floor) domain.Floor {
	rooms := make([]domain.RoomConfiguration, len(f.Rooms))
	copy(rooms, f.Rooms)
	f.Rooms = rooms
	return f
}

func cloneFloors(floors []domain.Floor) []domain.Floor {
	out := make([]domain.Floor, 0, len(floors))
	for _, f := range floors {
		out = append(out, cloneFloor(f))
	}
	return out
}
