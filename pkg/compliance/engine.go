// Package compliance evaluates a building design against the fixed rule set
// used to decide whether a project can be marked compliant.
package compliance

import (
	"fmt"
	"math"
	"strings"

	"hotelplan/pkg/domain"
)

const (
	minAccessiblePercent  = 5.0
	maxRoomsPerFloor      = 100
	elevatorFloorLimit    = 4
	parkingSpacesPerRoom  = 1.2
	elevatorAreaTypeMatch = "elevator"
)

// rule appends zero or more issues for a design.
type rule func(d design, issues []domain.ComplianceIssue) []domain.ComplianceIssue

type design struct {
	floors      []domain.Floor
	publicAreas []domain.PublicArea
	totalRooms  int
}

// rules run in this order; output order follows it.
var rules = []rule{
	checkAccessibleRooms,
	checkFloorDensity,
	checkElevator,
	checkLobby,
	estimateParking,
}

// Evaluate runs every rule over the design and returns the full issue list.
// The result is never nil so that it serialises as an empty JSON array.
func Evaluate(floors []domain.Floor, publicAreas []domain.PublicArea) []domain.ComplianceIssue {
	d := design{
		floors:      floors,
		publicAreas: publicAreas,
		totalRooms:  TotalRooms(floors),
	}
	issues := make([]domain.ComplianceIssue, 0, len(rules))
	for _, check := range rules {
		issues = check(d, issues)
	}
	return issues
}

// TotalRooms sums room quantities over all floors.
func TotalRooms(floors []domain.Floor) int {
	total := 0
	for _, f := range floors {
		total += f.RoomCount()
	}
	return total
}

// AccessibleRooms counts rooms of the accessible type. Only the first accessible
// entry of a floor is counted.
func AccessibleRooms(floors []domain.Floor) int {
	total := 0
	for _, f := range floors {
		if room, ok := f.Room(domain.AccessibleRoomTypeID); ok {
			total += room.Quantity
		}
	}
	return total
}

func checkAccessibleRooms(d design, issues []domain.ComplianceIssue) []domain.ComplianceIssue {
	accessible := AccessibleRooms(d.floors)
	pct := 0.0
	if d.totalRooms > 0 {
		pct = float64(accessible) / float64(d.totalRooms) * 100
	}
	if pct >= minAccessiblePercent {
		return issues
	}
	return append(issues, domain.ComplianceIssue{
		Type:           domain.IssueError,
		Message:        fmt.Sprintf("Only %.1f%% accessible rooms (%d/%d)", pct, accessible, d.totalRooms),
		Recommendation: "ADA requires minimum 5% accessible rooms",
	})
}

func checkFloorDensity(d design, issues []domain.ComplianceIssue) []domain.ComplianceIssue {
	for _, f := range d.floors {
		rooms := f.RoomCount()
		if rooms <= maxRoomsPerFloor {
			continue
		}
		issues = append(issues, domain.ComplianceIssue{
			Type:           domain.IssueWarning,
			Message:        fmt.Sprintf("Floor %s has %d rooms", f.Name, rooms),
			Recommendation: "Consider fire safety requirements for high room counts",
		})
	}
	return issues
}

func checkElevator(d design, issues []domain.ComplianceIssue) []domain.ComplianceIssue {
	if len(d.floors) <= elevatorFloorLimit {
		return issues
	}
	for _, area := range d.publicAreas {
		if strings.Contains(strings.ToLower(area.AreaType), elevatorAreaTypeMatch) {
			return issues
		}
	}
	return append(issues, domain.ComplianceIssue{
		Type:           domain.IssueWarning,
		Message:        fmt.Sprintf("%d floors without elevator access", len(d.floors)),
		Recommendation: "Buildings over 4 floors typically require elevator access",
	})
}

func checkLobby(d design, issues []domain.ComplianceIssue) []domain.ComplianceIssue {
	for _, area := range d.publicAreas {
		if area.ID == domain.LobbyAreaID {
			return issues
		}
	}
	return append(issues, domain.ComplianceIssue{
		Type:           domain.IssueError,
		Message:        "No lobby configured",
		Recommendation: "Hotels require a main lobby area",
	})
}

func estimateParking(d design, issues []domain.ComplianceIssue) []domain.ComplianceIssue {
	if d.totalRooms <= 0 {
		return issues
	}
	spaces := int(math.Ceil(float64(d.totalRooms) * parkingSpacesPerRoom))
	return append(issues, domain.ComplianceIssue{
		Type:           domain.IssueInfo,
		Message:        fmt.Sprintf("Estimated parking needed: %d spaces", spaces),
		Recommendation: "Plan for adequate parking based on local requirements",
	})
}

// Counts tallies issues by type.
func Counts(issues []domain.ComplianceIssue) (errors, warnings, infos int) {
	for _, issue := range issues {
		switch issue.Type {
		case domain.IssueError:
			errors++
		case domain.IssueWarning:
			warnings++
		default:
			infos++
		}
	}
	return errors, warnings, infos
}
