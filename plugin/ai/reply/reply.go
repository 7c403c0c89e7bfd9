// Package reply turns suggestion payloads into display text.
//
// The backend answers with several payload shapes depending on which provider produced the
// answer. Parse tries an ordered chain of matchers, each recognizing one shape, and falls back
// to an opaque JSON dump when none match. Rendering never fails.
package reply

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Fixed user-facing texts.
const (
	NoDataText       = "Xin lỗi, mình chưa tìm thấy dữ liệu phù hợp."
	NoHotelsText     = "Không tìm thấy khách sạn phù hợp với yêu cầu của bạn."
	NoPromotionsText = "Hiện chưa có khuyến mãi phù hợp với yêu cầu của bạn."
	AskProvinceText  = "Bạn vui lòng cho biết tỉnh/thành phố cụ thể nhé."
	BeSpecificText   = "Bạn có thể nói cụ thể hơn (tỉnh/thành, sở thích...) để mình gợi ý chính xác hơn không?"
)

// SourceTravelGuide marks payloads built from the place/dish/tip knowledge base.
const SourceTravelGuide = "nosql+llm"

// maxGuideItems caps each travel guide section.
const maxGuideItems = 5

// Kind identifies which matcher recognized a payload.
type Kind int

const (
	KindNotObject Kind = iota
	KindNoHotels
	KindNoPromotions
	KindClarification
	KindTravelGuide
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindNotObject:
		return "not_object"
	case KindNoHotels:
		return "no_hotels"
	case KindNoPromotions:
		return "no_promotions"
	case KindClarification:
		return "clarification"
	case KindTravelGuide:
		return "travel_guide"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reply is a recognized payload.
type Reply interface {
	Kind() Kind
	Text() string
}

// NotObject is any payload that is not a JSON object.
type NotObject struct{}

func (NotObject) Kind() Kind   { return KindNotObject }
func (NotObject) Text() string { return NoDataText }

// NoHotels is a payload with an empty hotels list.
type NoHotels struct{}

func (NoHotels) Kind() Kind   { return KindNoHotels }
func (NoHotels) Text() string { return NoHotelsText }

// NoPromotions is a payload with an empty promotions list.
type NoPromotions struct{}

func (NoPromotions) Kind() Kind   { return KindNoPromotions }
func (NoPromotions) Text() string { return NoPromotionsText }

// Clarification asks the user to pick one of Options.
type Clarification struct {
	Options []string
}

func (Clarification) Kind() Kind     { return KindClarification }
func (c Clarification) Text() string { return RenderClarification(c.Options) }

// Place is a point of interest in a travel guide.
type Place struct {
	Name string
	Hint string
}

// Dish is a local dish in a travel guide.
type Dish struct {
	Name     string
	Location string
}

// TravelGuide is a knowledge-base answer with places, dishes and tips.
type TravelGuide struct {
	Province string
	Places   []Place
	Dishes   []Dish
	Tips     []string
}

func (TravelGuide) Kind() Kind { return KindTravelGuide }

func (g TravelGuide) Text() string {
	var sections []string

	if len(g.Places) > 0 {
		var sb strings.Builder
		sb.WriteString("Địa điểm:")
		for _, p := range g.Places {
			sb.WriteString("\n• ")
			sb.WriteString(p.Name)
			if p.Hint != "" {
				sb.WriteString(" - ")
				sb.WriteString(p.Hint)
			}
		}
		sections = append(sections, sb.String())
	}

	if len(g.Dishes) > 0 {
		var sb strings.Builder
		sb.WriteString("Món ăn:")
		for _, d := range g.Dishes {
			sb.WriteString("\n• ")
			sb.WriteString(d.Name)
			if d.Location != "" {
				sb.WriteString(" (")
				sb.WriteString(d.Location)
				sb.WriteString(")")
			}
		}
		sections = append(sections, sb.String())
	}

	if len(g.Tips) > 0 {
		var sb strings.Builder
		sb.WriteString("Mẹo:")
		for _, tip := range g.Tips {
			sb.WriteString("\n• ")
			sb.WriteString(tip)
		}
		sections = append(sections, sb.String())
	}

	if len(sections) == 0 {
		return BeSpecificText
	}

	if g.Province != "" {
		sections = append([]string{fmt.Sprintf("Gợi ý cho %s:", g.Province)}, sections...)
	}
	return strings.Join(sections, "\n\n")
}

// Opaque is any object no matcher recognized.
type Opaque struct {
	Raw json.RawMessage
}

func (Opaque) Kind() Kind { return KindOpaque }

func (o Opaque) Text() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, o.Raw, "", "  "); err != nil {
		return string(o.Raw)
	}
	return buf.String()
}

// RenderClarification builds the prompt listing the candidate options.
func RenderClarification(options []string) string {
	if len(options) == 0 {
		return AskProvinceText
	}
	quoted := make([]string, len(options))
	for i, opt := range options {
		quoted[i] = fmt.Sprintf("%q", opt)
	}
	return fmt.Sprintf("Bạn muốn hỏi về địa điểm nào: %s? Vui lòng chọn một tỉnh/thành.", strings.Join(quoted, ", "))
}

// Render produces display text for an arbitrary payload.
func Render(payload json.RawMessage) string {
	return Parse(payload).Text()
}
