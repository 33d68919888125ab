package conversation

import (
	"fmt"

	"hotelplan/pkg/domain"
)

// Question is the next prompt shown to the user, with rendering hints for the
// slot's response type.
type Question struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	ResponseType ResponseType `json:"responseType"`
	Choices      []string     `json:"choices,omitempty"`
	AllowCustom  bool         `json:"allowCustom,omitempty"`
	MultiSelect  bool         `json:"multiSelect,omitempty"`
	FloorCount   *int         `json:"floorCount,omitempty"`
	RoomTypes    []string     `json:"roomTypes,omitempty"`
	PublicAreas  []string     `json:"publicAreas,omitempty"`
}

// State is derived from the history on every call and never stored.
type State struct {
	Next   int
	Values map[string]any
}

// Outcome is either a question or a completed model, never both.
type Outcome struct {
	Question *Question
	Model    *domain.HotelBaseModel
}

// Complete reports whether the conversation produced a model.
func (o Outcome) Complete() bool { return o.Model != nil }

type Engine struct {
	slots     []Slot
	validator *Validator
}

// NewEngine builds an engine over slots. With no slots the default hotel schema is used.
func NewEngine(slots ...Slot) *Engine {
	if len(slots) == 0 {
		slots = DefaultSchema()
	}
	return &Engine{slots: slots, validator: NewValidator()}
}

func (e *Engine) Slots() []Slot {
	out := make([]Slot, len(e.slots))
	copy(out, e.slots)
	return out
}

// State walks the user answers in order. Each answer is tried once, against the
// slot that is current when it arrives, using the history up to and including it.
// A slot advances only when its extraction succeeds.
func (e *Engine) State(history []domain.ChatMessage) State {
	state := State{Values: make(map[string]any, len(e.slots))}
	for i, msg := range history {
		if state.Next >= len(e.slots) {
			break
		}
		if msg.Role != domain.RoleUser {
			continue
		}
		slot := e.slots[state.Next]
		if value, ok := slot.Extract(history[:i+1]); ok {
			state.Values[slot.ID()] = value
			state.Next++
		}
	}
	return state
}

// Run returns the next question, or the validated model once every slot is
// filled. A model that fails validation yields a *SchemaViolation.
func (e *Engine) Run(history []domain.ChatMessage) (Outcome, error) {
	state := e.State(history)
	if state.Next < len(e.slots) {
		q := e.question(e.slots[state.Next], state.Values)
		return Outcome{Question: &q}, nil
	}
	model, err := e.validator.Validate(state.Values)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Model: &model}, nil
}

func (e *Engine) question(slot Slot, values map[string]any) Question {
	q := Question{
		ID:           slot.ID(),
		Text:         slot.Prompt(),
		ResponseType: slot.ResponseType(),
	}
	switch s := slot.(type) {
	case ChoiceSlot:
		q.Choices = append([]string(nil), s.Choices...)
		q.AllowCustom = s.AllowCustom
		q.MultiSelect = s.MultiSelect
	case AreaSlot:
		q.PublicAreas = append([]string(nil), s.Areas...)
	}
	if floors, ok := values[SlotFloors].(int); ok {
		q.FloorCount = &floors
	}
	if roomTypes, ok := values[SlotRoomTypes].([]string); ok {
		q.RoomTypes = append([]string(nil), roomTypes...)
	}
	return q
}

// ProjectName is the display name given to a project created from model.
func ProjectName(model domain.HotelBaseModel) string {
	return fmt.Sprintf("%s Hotel - %s", model.BrandFlag, model.SiteLocation)
}

// CompletionMessage is returned alongside the model when the conversation ends.
const CompletionMessage = "Perfect! I've created your hotel base model. Redirecting to your projects..."
