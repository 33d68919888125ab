package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"hotelplan/pkg/domain"
)

// SchemaViolation reports the first field of the assembled model that failed
// validation. It is terminal for the conversation: asking again will not help,
// the user has to restart with different answers.
type SchemaViolation struct {
	Field  string
	Reason string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func violation(field, format string, args ...any) *SchemaViolation {
	return &SchemaViolation{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validator turns the filled slot values into a HotelBaseModel.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate converts values keyed by slot id and checks every range rule.
// Conversion is strict: a number where a string is expected, or 2.5 where an
// integer is expected, is a violation rather than a coercion.
func (v *Validator) Validate(values map[string]any) (domain.HotelBaseModel, error) {
	var model domain.HotelBaseModel
	var err *SchemaViolation

	if model.SiteLocation, err = asString(values[SlotLocation], "siteLocation"); err != nil {
		return domain.HotelBaseModel{}, err
	}
	if model.BrandFlag, err = asString(values[SlotBrand], "brandFlag"); err != nil {
		return domain.HotelBaseModel{}, err
	}
	if model.FloorCount, err = asInt(values[SlotFloors], "floorCount"); err != nil {
		return domain.HotelBaseModel{}, err
	}
	if model.RoomTypes, err = asStrings(values[SlotRoomTypes], "roomTypes"); err != nil {
		return domain.HotelBaseModel{}, err
	}
	if model.FloorMix, err = asFloorMix(values[SlotRoomMix], "floorMix"); err != nil {
		return domain.HotelBaseModel{}, err
	}
	if model.PublicAreas, err = asPublicAreas(values[SlotPublicAreas], "publicAreas"); err != nil {
		return domain.HotelBaseModel{}, err
	}

	if verr := v.validate.Struct(model); verr != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(verr, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return domain.HotelBaseModel{}, violation(fieldPath(fe.Namespace()), "failed %s%s", fe.Tag(), tagParam(fe.Param()))
		}
		return domain.HotelBaseModel{}, violation("model", "%v", verr)
	}
	return model, nil
}

// fieldPath drops the struct name: "HotelBaseModel.floorMix[0].floorIndex" -> "floorMix[0].floorIndex".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func tagParam(param string) string {
	if param == "" {
		return ""
	}
	return "=" + param
}

func asString(raw any, field string) (string, *SchemaViolation) {
	s, ok := raw.(string)
	if !ok {
		return "", violation(field, "expected string, got %s", typeName(raw))
	}
	return s, nil
}

func asBool(raw any, field string) (bool, *SchemaViolation) {
	b, ok := raw.(bool)
	if !ok {
		return false, violation(field, "expected boolean, got %s", typeName(raw))
	}
	return b, nil
}

func asInt(raw any, field string) (int, *SchemaViolation) {
	var f float64
	switch n := raw.(type) {
	case int:
		return n, nil
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			f = float64(i)
			break
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, violation(field, "expected number, got %q", n.String())
		}
		f = parsed
	default:
		return 0, violation(field, "expected integer, got %s", typeName(raw))
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, violation(field, "expected integer, got %v", raw)
	}
	return int(f), nil
}

func asStrings(raw any, field string) ([]string, *SchemaViolation) {
	switch items := raw.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, 0, len(items))
		for i, item := range items {
			s, err := asString(item, fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, violation(field, "expected array, got %s", typeName(raw))
	}
}

func asObjects(raw any, field string) ([]map[string]any, *SchemaViolation) {
	items, ok := raw.([]any)
	if !ok {
		return nil, violation(field, "expected array, got %s", typeName(raw))
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, violation(fmt.Sprintf("%s[%d]", field, i), "expected object, got %s", typeName(item))
		}
		out = append(out, obj)
	}
	return out, nil
}

func asFloorMix(raw any, field string) ([]domain.FloorMixEntry, *SchemaViolation) {
	objs, err := asObjects(raw, field)
	if err != nil {
		return nil, err
	}
	mix := make([]domain.FloorMixEntry, 0, len(objs))
	for i, obj := range objs {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		index, err := asInt(obj["floorIndex"], prefix+".floorIndex")
		if err != nil {
			return nil, err
		}
		rawRooms, ok := obj["roomsByType"].(map[string]any)
		if !ok {
			return nil, violation(prefix+".roomsByType", "expected object, got %s", typeName(obj["roomsByType"]))
		}
		keys := make([]string, 0, len(rawRooms))
		for k := range rawRooms {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rooms := make(map[string]int, len(rawRooms))
		for _, k := range keys {
			n, err := asInt(rawRooms[k], fmt.Sprintf("%s.roomsByType[%s]", prefix, k))
			if err != nil {
				return nil, err
			}
			rooms[k] = n
		}
		mix = append(mix, domain.FloorMixEntry{FloorIndex: index, RoomsByType: rooms})
	}
	return mix, nil
}

func asPublicAreas(raw any, field string) ([]domain.PublicAreaChoice, *SchemaViolation) {
	objs, err := asObjects(raw, field)
	if err != nil {
		return nil, err
	}
	areas := make([]domain.PublicAreaChoice, 0, len(objs))
	for i, obj := range objs {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		var choice domain.PublicAreaChoice
		if choice.Area, err = asString(obj["area"], prefix+".area"); err != nil {
			return nil, err
		}
		if choice.Enabled, err = asBool(obj["enabled"], prefix+".enabled"); err != nil {
			return nil, err
		}
		if choice.Size, err = asInt(obj["size"], prefix+".size"); err != nil {
			return nil, err
		}
		areas = append(areas, choice)
	}
	return areas, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nothing"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
