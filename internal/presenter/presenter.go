// Package presenter renders evaluations for display. Numbers go through a
// locale-aware printer so the digits follow the caller's language; the
// service layer never formats for display.
package presenter

import (
	"math"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"golang.org/x/text/number"

	"github.com/bili-threshold-server/internal/domain"
)

// Card is one numeric result tile.
type Card struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// RecommendationBlock is the tier-coloured recommendation panel.
type RecommendationBlock struct {
	Tier   domain.RecommendationTier `json:"tier"`
	Color  string                    `json:"color"`
	Detail string                    `json:"detail"`
}

// View is everything a client needs to draw one evaluation.
type View struct {
	Language       string              `json:"language"`
	Age            string              `json:"age,omitempty"`
	Cards          []Card              `json:"cards"`
	Recommendation RecommendationBlock `json:"recommendation"`
}

const (
	unitMgDL    = "mg/dL"
	placeholder = "-"
	neutralGray = "#9e9e9e"
)

// ageKey is the catalog key for FormatAge. Unregistered languages get the
// English wording with their own digits.
const ageKey = "%d days and %d hours"

func init() {
	for _, tag := range []language.Tag{language.English, language.Und} {
		err := message.Set(tag, ageKey,
			catalog.Var("days", plural.Selectf(1, "%d", "=1", "day", "other", "days")),
			catalog.Var("hours", plural.Selectf(2, "%d", "=1", "hour", "other", "hours")),
			catalog.String("%[1]d ${days} and %[2]d ${hours}"),
		)
		if err != nil {
			panic(err)
		}
	}
}

var tierColors = map[domain.RecommendationTier]string{
	domain.TIER_EMERGENCY_OVERRIDE:     "#b71c1c",
	domain.TIER_EMERGENCY_EXCHANGE:     "#b71c1c",
	domain.TIER_EXCHANGE_NOW:           "#d32f2f",
	domain.TIER_INTENSIVE_ESCALATED:    "#e64a19",
	domain.TIER_INTENSIVE:              "#f57c00",
	domain.TIER_INTENSIVE_DOUBLE:       "#ffa000",
	domain.TIER_INTENSIVE_SINGLE:       "#fbc02d",
	domain.TIER_FOLLOW_UP:              "#388e3c",
	domain.TIER_OUT_OF_GUIDELINE_RANGE: "#616161",
	domain.TIER_TOO_YOUNG:              "#616161",
}

// TierColor returns the display colour for a tier. The empty tier is gray.
func TierColor(tier domain.RecommendationTier) string {
	if c, ok := tierColors[tier]; ok {
		return c
	}
	return neutralGray
}

// Presenter formats values for one language.
type Presenter struct {
	tag     language.Tag
	printer *message.Printer
}

// New creates a presenter for the given language tag.
func New(tag language.Tag) *Presenter {
	return &Presenter{
		tag:     tag,
		printer: message.NewPrinter(tag),
	}
}

// ForLanguage parses a BCP 47 tag such as "en" or "fa-IR" and falls back to
// English when it cannot be parsed.
func ForLanguage(tag string) *Presenter {
	if tag == "" {
		return New(language.English)
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return New(language.English)
	}
	return New(parsed)
}

// FromAcceptLanguage picks the caller's preferred language from an
// Accept-Language header, defaulting to English.
func FromAcceptLanguage(header string) *Presenter {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return New(language.English)
	}
	return New(tags[0])
}

// Language returns the tag this presenter formats for.
func (p *Presenter) Language() language.Tag {
	return p.tag
}

// FormatAge renders postnatal hours as "N days and M hours", singular where
// a count is one.
func (p *Presenter) FormatAge(ageHours float64) string {
	total := int(math.Floor(ageHours))
	if total < 0 {
		total = 0
	}
	return p.printer.Sprintf(ageKey, total/24, total%24)
}

// FormatBilirubin prints a value with at most two decimals in the presenter's digits.
func (p *Presenter) FormatBilirubin(v float64) string {
	return p.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// Cards builds the display view for an evaluation.
func (p *Presenter) Cards(evaluation *domain.Evaluation) View {
	view := View{
		Language: p.tag.String(),
		Recommendation: RecommendationBlock{
			Tier:   evaluation.Recommendation.Tier,
			Color:  TierColor(evaluation.Recommendation.Tier),
			Detail: evaluation.Recommendation.Detail,
		},
	}
	if evaluation.Input.PostnatalAgeHours != nil {
		view.Age = p.FormatAge(*evaluation.Input.PostnatalAgeHours)
	}

	view.Cards = []Card{
		p.card("Phototherapy threshold", thresholdOf(evaluation.Phototherapy)),
		p.card("Escalation of care threshold", evaluation.EscalationThreshold),
		p.card("Exchange transfusion threshold", thresholdOf(evaluation.Exchange)),
	}
	return view
}

func (p *Presenter) card(label string, value *float64) Card {
	if value == nil {
		return Card{Label: label, Value: placeholder}
	}
	return Card{Label: label, Value: p.FormatBilirubin(*value), Unit: unitMgDL}
}

func thresholdOf(result *domain.ThresholdResult) *float64 {
	if result == nil {
		return nil
	}
	return result.Threshold
}
