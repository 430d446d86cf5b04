// Package contextbuild assembles the model-facing context for a request:
// system prompt, message window and the plan parameters accumulated
// across the session.
package contextbuild

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rumbo-ai/rumbo/internal/i18n"
	"github.com/rumbo-ai/rumbo/internal/store"
)

// PlanParams are the slots a plan request fills in over one or more
// turns. Zero values mean "not yet provided".
type PlanParams struct {
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	NumPeople       int      `json:"num_people,omitempty"`
	Cities          []string `json:"cities,omitempty"`
	PlaceTypes      []string `json:"place_types,omitempty"`
	Vibe            string   `json:"vibe,omitempty"`
	Budget          string   `json:"budget,omitempty"`
	Transport       string   `json:"transport,omitempty"`
}

// planRequiredFields are the slots that must be filled before an
// itinerary can be created. Budget and transport stay optional.
var planRequiredFields = []string{"duration", "num_people", "cities", "place_types", "vibe"}

// IsZero reports whether nothing has been extracted yet.
func (p PlanParams) IsZero() bool {
	return p.DurationMinutes == 0 && p.NumPeople == 0 && len(p.Cities) == 0 &&
		len(p.PlaceTypes) == 0 && p.Vibe == "" && p.Budget == "" && p.Transport == ""
}

// Missing returns the required slots still unfilled, in stable order.
func (p PlanParams) Missing() []string {
	var missing []string
	for _, f := range planRequiredFields {
		switch f {
		case "duration":
			if p.DurationMinutes == 0 {
				missing = append(missing, f)
			}
		case "num_people":
			if p.NumPeople == 0 {
				missing = append(missing, f)
			}
		case "cities":
			if len(p.Cities) == 0 {
				missing = append(missing, f)
			}
		case "place_types":
			if len(p.PlaceTypes) == 0 {
				missing = append(missing, f)
			}
		case "vibe":
			if p.Vibe == "" {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

// Ready reports whether all required slots are filled.
func (p PlanParams) Ready() bool {
	return len(p.Missing()) == 0
}

// Merge folds newer parameters into older ones: list slots are the
// union in first-seen order, scalar slots take the newer non-zero
// value. Merging is idempotent.
func Merge(old, newer PlanParams) PlanParams {
	out := old
	if newer.DurationMinutes != 0 {
		out.DurationMinutes = newer.DurationMinutes
	}
	if newer.NumPeople != 0 {
		out.NumPeople = newer.NumPeople
	}
	if newer.Vibe != "" {
		out.Vibe = newer.Vibe
	}
	if newer.Budget != "" {
		out.Budget = newer.Budget
	}
	if newer.Transport != "" {
		out.Transport = newer.Transport
	}
	out.Cities = unionStrings(old.Cities, newer.Cities)
	out.PlaceTypes = unionStrings(old.PlaceTypes, newer.PlaceTypes)
	return out
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(s)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// MissingPrompt builds the localized follow-up question asking for the
// unfilled slots.
func MissingPrompt(t *i18n.Translator, language string, missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	labels := make([]string, len(missing))
	for i, f := range missing {
		labels[i] = t.Translate("plan.field."+f, language)
	}
	if len(labels) == 1 {
		return t.Translate("plan.missing_one", language, labels[0])
	}
	return t.Translate("plan.missing_many", language, strings.Join(labels, ", "))
}

// PlanStateFromTurns rebuilds the accumulated plan state by merging the
// plan_params metadata of each turn in chronological order.
func PlanStateFromTurns(turns []store.ConversationTurn) PlanParams {
	var state PlanParams
	for _, t := range turns {
		raw, ok := t.Extra[store.ExtraPlanParams]
		if !ok || raw == nil {
			continue
		}
		data, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var p PlanParams
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		state = Merge(state, p)
	}
	return state
}

var (
	hoursRe   = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:horas?|hours?|hores)\b`)
	minutesRe = regexp.MustCompile(`(?i)(\d{1,3})\s*(?:minutos?|minutes?|min)\b`)
	peopleRe  = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:personas?|people|persoas|persones)\b`)
	weAreRe   = regexp.MustCompile(`(?i)\b(?:somos|seremos|we are|we're|som)\s+(\d{1,2})\b`)
	cityRe    = regexp.MustCompile(`(?:\b(?:en|por|in)\s+)(\p{Lu}[\p{Ll}áéíóúüñç]+(?:\s+(?:de|do|da|del|dels)\s+\p{Lu}[\p{Ll}áéíóúüñç]+)*)`)
)

// durationPhrases map colloquial time spans to minutes. Checked before
// the numeric patterns so "una tarde de 3 horas" prefers the explicit
// number via ordering below.
var durationPhrases = []struct {
	keywords []string
	minutes  int
}{
	{[]string{"fin de semana", "finde", "weekend", "cap de setmana"}, 2880},
	{[]string{"todo el día", "día completo", "full day", "all day", "tot el dia", "todo o día"}, 480},
	{[]string{"medio día", "half day", "mig dia"}, 240},
	{[]string{"tarde", "noche", "evening", "tonight", "esta noite", "vespre", "nit"}, 180},
	{[]string{"algo rápido", "rápido", "rapidito", "quick", "un rato", "una horita"}, 30},
}

var vibeKeywords = map[string][]string{
	"romantic": {"romántico", "romántica", "romantic", "romántic", "en pareja"},
	"party":    {"fiesta", "party", "festa", "marcha", "de copas", "salir de noche"},
	"chill":    {"tranquilo", "tranquila", "chill", "relajado", "relaxed", "tranquil", "calmado"},
	"family":   {"familiar", "family", "con niños", "con nenos", "amb nens"},
	"cultural": {"cultural", "cultura", "histórico", "historic"},
	"foodie":   {"gastronómico", "gastronomía", "foodie", "de tapeo", "gastronómica"},
}

var budgetKeywords = map[string][]string{
	"low":  {"barato", "económico", "economico", "cheap", "low cost", "asequible", "barat"},
	"high": {"lujo", "caro", "premium", "fancy", "upscale", "luxe", "de luxe"},
}

var transportKeywords = map[string][]string{
	"walking": {"andando", "a pie", "caminando", "walking", "on foot", "a peu", "camiñando"},
	"driving": {"en coche", "coche", "car", "driving", "cotxe"},
	"transit": {"transporte público", "bus", "metro", "autobús", "public transport", "transport públic"},
	"cycling": {"bici", "bicicleta", "bike", "cycling"},
}

// ParseDuration converts a duration expression to minutes: explicit
// hours or minutes first, then colloquial phrases. Returns 0 when
// nothing matches.
func ParseDuration(text string) int {
	if m := hoursRe.FindStringSubmatch(text); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil {
			return h * 60
		}
	}
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		if min, err := strconv.Atoi(m[1]); err == nil {
			return min
		}
	}
	lower := strings.ToLower(text)
	for _, dp := range durationPhrases {
		if containsAny(lower, dp.keywords) {
			return dp.minutes
		}
	}
	return 0
}

// ExtractPlanParams pulls plan slots out of a single query using
// rule-based patterns. It works across the supported languages; the
// keyword tables carry es, en, ca and gl variants.
func ExtractPlanParams(query string) PlanParams {
	var p PlanParams
	lower := strings.ToLower(query)

	p.DurationMinutes = ParseDuration(query)

	if m := peopleRe.FindStringSubmatch(query); m != nil {
		p.NumPeople, _ = strconv.Atoi(m[1])
	} else if m := weAreRe.FindStringSubmatch(query); m != nil {
		p.NumPeople, _ = strconv.Atoi(m[1])
	} else if containsAny(lower, []string{"en pareja", "mi pareja", "for two", "para dos", "en parella"}) {
		p.NumPeople = 2
	}

	for _, m := range cityRe.FindAllStringSubmatch(query, -1) {
		p.Cities = unionStrings(p.Cities, []string{m[1]})
	}

	p.PlaceTypes = ExtractPlaceTypes(query)
	p.Vibe = firstKeywordMatch(lower, vibeKeywords)
	p.Budget = firstKeywordMatch(lower, budgetKeywords)
	p.Transport = firstKeywordMatch(lower, transportKeywords)
	return p
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// firstKeywordMatch returns the label whose keyword appears earliest in
// the text, so "cena romántica y luego fiesta" picks "romantic".
func firstKeywordMatch(lower string, table map[string][]string) string {
	best := ""
	bestPos := -1
	for label, keywords := range table {
		for _, kw := range keywords {
			if pos := strings.Index(lower, kw); pos >= 0 && (bestPos == -1 || pos < bestPos) {
				best = label
				bestPos = pos
			}
		}
	}
	return best
}
