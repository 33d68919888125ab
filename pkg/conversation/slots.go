// Package conversation runs the guided hotel-description dialogue. The engine is
// a pure function of the message history: it works out which slot is still
// unfilled and either asks for it or assembles the final model.
package conversation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"hotelplan/pkg/domain"
)

type ResponseType string

const (
	ResponseText    ResponseType = "text"
	ResponseChoices ResponseType = "choices"
	ResponseTable   ResponseType = "table"
	ResponseAreas   ResponseType = "areas"
)

// Slot ids, in the order they are asked.
const (
	SlotLocation    = "location"
	SlotBrand       = "brand"
	SlotFloors      = "floors"
	SlotRoomTypes   = "roomTypes"
	SlotRoomMix     = "roomMix"
	SlotPublicAreas = "publicAreas"
)

// Slot is one piece of information the conversation collects. Extract looks at
// the latest user answer in history and reports whether it fills the slot.
type Slot interface {
	ID() string
	Prompt() string
	ResponseType() ResponseType
	Extract(history []domain.ChatMessage) (any, bool)
}

// TextSlot takes a free-text answer. Numeric slots keep the leading integer of
// the answer, so "12 floors" yields 12.
type TextSlot struct {
	Key     string
	Text    string
	Numeric bool
}

func (s TextSlot) ID() string                 { return s.Key }
func (s TextSlot) Prompt() string             { return s.Text }
func (s TextSlot) ResponseType() ResponseType { return ResponseText }

func (s TextSlot) Extract(history []domain.ChatMessage) (any, bool) {
	answer, ok := lastUserAnswer(history)
	if !ok {
		return nil, false
	}
	if s.Numeric {
		n, ok := leadingInt(answer)
		if !ok {
			return nil, false
		}
		return n, true
	}
	return answer, true
}

// ChoiceSlot offers a fixed option list. Single-select answers are plain text;
// multi-select answers are a JSON array of strings or one bare option.
type ChoiceSlot struct {
	Key         string
	Text        string
	Choices     []string
	AllowCustom bool
	MultiSelect bool
}

func (s ChoiceSlot) ID() string                 { return s.Key }
func (s ChoiceSlot) Prompt() string             { return s.Text }
func (s ChoiceSlot) ResponseType() ResponseType { return ResponseChoices }

func (s ChoiceSlot) Extract(history []domain.ChatMessage) (any, bool) {
	answer, ok := lastUserAnswer(history)
	if !ok {
		return nil, false
	}
	if !s.MultiSelect {
		return s.match(answer)
	}
	var selected []string
	if err := json.Unmarshal([]byte(answer), &selected); err != nil {
		selected = []string{answer}
	}
	picked := make([]string, 0, len(selected))
	for _, option := range selected {
		value, ok := s.match(option)
		if !ok {
			return nil, false
		}
		picked = append(picked, value.(string))
	}
	return picked, true
}

func (s ChoiceSlot) match(answer string) (any, bool) {
	answer = strings.TrimSpace(answer)
	for _, choice := range s.Choices {
		if strings.EqualFold(choice, answer) {
			return choice, true
		}
	}
	if s.AllowCustom && answer != "" {
		return answer, true
	}
	return nil, false
}

// TableSlot expects a JSON array describing the room mix per floor.
type TableSlot struct {
	Key  string
	Text string
}

func (s TableSlot) ID() string                 { return s.Key }
func (s TableSlot) Prompt() string             { return s.Text }
func (s TableSlot) ResponseType() ResponseType { return ResponseTable }

func (s TableSlot) Extract(history []domain.ChatMessage) (any, bool) {
	return extractJSONArray(history)
}

// AreaSlot expects a JSON array of {area, enabled, size} selections.
type AreaSlot struct {
	Key   string
	Text  string
	Areas []string
}

func (s AreaSlot) ID() string                 { return s.Key }
func (s AreaSlot) Prompt() string             { return s.Text }
func (s AreaSlot) ResponseType() ResponseType { return ResponseAreas }

func (s AreaSlot) Extract(history []domain.ChatMessage) (any, bool) {
	return extractJSONArray(history)
}

// DefaultSchema returns the slots of the hotel questionnaire in order.
func DefaultSchema() []Slot {
	return []Slot{
		TextSlot{
			Key:  SlotLocation,
			Text: "Let's start with the basics! What city or ZIP code is your hotel project located in?",
		},
		ChoiceSlot{
			Key:         SlotBrand,
			Text:        "Great! What hotel brand or flag are you planning for this project?",
			Choices:     []string{"Marriott", "Hilton", "IHG", "Hyatt", "Choice Hotels", "Wyndham", "Independent", "Other"},
			AllowCustom: true,
		},
		TextSlot{
			Key:     SlotFloors,
			Text:    "How many floors will your hotel have? (Including ground floor)",
			Numeric: true,
		},
		ChoiceSlot{
			Key:         SlotRoomTypes,
			Text:        "What types of rooms will you offer? Select all that apply:",
			Choices:     []string{"Standard King", "Standard Double", "Junior Suite", "Executive Suite", "Presidential Suite", "Accessible Room"},
			MultiSelect: true,
		},
		TableSlot{
			Key:  SlotRoomMix,
			Text: "Now let's plan your room mix by floor. Please specify how many of each room type per floor:",
		},
		AreaSlot{
			Key:   SlotPublicAreas,
			Text:  "Finally, which public areas and amenities will your hotel include?",
			Areas: []string{"Lobby", "Restaurant", "Bar/Lounge", "Fitness Center", "Business Center", "Meeting Rooms", "Pool", "Spa", "Gift Shop", "Parking Garage"},
		},
	}
}

// lastUserAnswer returns the trimmed content of the newest user message.
// Blank answers never fill a slot.
func lastUserAnswer(history []domain.ChatMessage) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != domain.RoleUser {
			continue
		}
		answer := strings.TrimSpace(history[i].Content)
		return answer, answer != ""
	}
	return "", false
}

// leadingInt parses an optional sign and the digits that follow it, ignoring
// whatever comes after.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// extractJSONArray decodes the newest answer as a JSON array. Numbers are kept
// as json.Number so the validator can tell 3 from 3.5.
func extractJSONArray(history []domain.ChatMessage) (any, bool) {
	answer, ok := lastUserAnswer(history)
	if !ok {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(answer)))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, false
	}
	if items == nil {
		return nil, false
	}
	return items, true
}
