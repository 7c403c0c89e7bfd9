package reply

import (
	"bytes"
	"encoding/json"
	"strings"
)

// object is a decoded JSON object with its fields left raw.
type object map[string]json.RawMessage

// matcher recognizes one payload shape.
type matcher func(obj object, raw json.RawMessage) (Reply, bool)

// matchers run in order; the first hit wins.
var matchers = []matcher{
	matchNoHotels,
	matchNoPromotions,
	matchClarification,
	matchTravelGuide,
}

// Parse classifies a payload. It never fails: unrecognized objects become Opaque.
func Parse(payload json.RawMessage) Reply {
	obj, ok := decodeObject(payload)
	if !ok {
		return NotObject{}
	}
	for _, m := range matchers {
		if r, ok := m(obj, payload); ok {
			return r
		}
	}
	return Opaque{Raw: payload}
}

// ClarificationOptions reports whether the payload asks the user to disambiguate,
// either through an explicit clarify_required flag or a non-empty suggestions list.
func ClarificationOptions(payload json.RawMessage) ([]string, bool) {
	obj, ok := decodeObject(payload)
	if !ok {
		return nil, false
	}

	var required bool
	if raw, ok := obj.field("clarify_required", "clarifyRequired"); ok {
		// A flag that is not a JSON bool counts as absent.
		if err := json.Unmarshal(raw, &required); err != nil {
			required = false
		}
	}

	items, isArray := obj.array("suggestions")
	options := stringsOf(items, "name", "label", "value", "province")
	if required || (isArray && len(items) > 0) {
		return options, true
	}
	return nil, false
}

func matchNoHotels(obj object, _ json.RawMessage) (Reply, bool) {
	if items, ok := obj.array("hotels"); ok && len(items) == 0 {
		return NoHotels{}, true
	}
	return nil, false
}

func matchNoPromotions(obj object, _ json.RawMessage) (Reply, bool) {
	if items, ok := obj.array("promotions"); ok && len(items) == 0 {
		return NoPromotions{}, true
	}
	return nil, false
}

func matchClarification(obj object, _ json.RawMessage) (Reply, bool) {
	items, ok := obj.array("suggestions")
	if !ok || len(items) == 0 {
		return nil, false
	}
	return Clarification{Options: stringsOf(items, "name", "label", "value", "province")}, true
}

func matchTravelGuide(obj object, _ json.RawMessage) (Reply, bool) {
	if obj.str("source") != SourceTravelGuide {
		return nil, false
	}

	guide := TravelGuide{
		Province: obj.str("province", "province_name", "provinceName"),
	}

	places, _ := obj.array("places")
	for _, raw := range places {
		if len(guide.Places) == maxGuideItems {
			break
		}
		name, fields := nameAndFields(raw)
		if name == "" {
			continue
		}
		guide.Places = append(guide.Places, Place{
			Name: name,
			Hint: fields.str("hint", "description", "note"),
		})
	}

	dishes, _ := obj.array("dishes")
	for _, raw := range dishes {
		if len(guide.Dishes) == maxGuideItems {
			break
		}
		name, fields := nameAndFields(raw)
		if name == "" {
			continue
		}
		guide.Dishes = append(guide.Dishes, Dish{
			Name:     name,
			Location: fields.str("where", "location", "place"),
		})
	}

	tips, _ := obj.array("tips")
	for _, tip := range stringsOf(tips, "text", "tip", "content") {
		if len(guide.Tips) == maxGuideItems {
			break
		}
		guide.Tips = append(guide.Tips, tip)
	}

	return guide, true
}

func decodeObject(payload json.RawMessage) (object, bool) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj object
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// field returns the first present, non-null key.
func (o object) field(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		raw, ok := o[k]
		if ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return raw, true
		}
	}
	return nil, false
}

// array returns the elements of the first key holding a JSON array.
func (o object) array(keys ...string) ([]json.RawMessage, bool) {
	raw, ok := o.field(keys...)
	if !ok {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// str returns the trimmed string value of the first key holding a JSON string.
func (o object) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// nameAndFields reads an item that is either a bare string or an object with a name.
func nameAndFields(raw json.RawMessage) (string, object) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	obj, ok := decodeObject(raw)
	if !ok {
		return "", nil
	}
	return obj.str("name", "title"), obj
}

// stringsOf collects non-empty strings from items that are strings or objects carrying one of keys.
func stringsOf(items []json.RawMessage, keys ...string) []string {
	out := make([]string, 0, len(items))
	for _, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		if obj, ok := decodeObject(raw); ok {
			if s := obj.str(keys...); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
