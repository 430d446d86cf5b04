package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rumbo-ai/rumbo/internal/contextbuild"
	"github.com/rumbo-ai/rumbo/internal/store"
)

const (
	defaultNumLocations    = 3
	defaultDurationMinutes = 180
	minStayMinutes         = 15
)

// ItineraryStep is one stop in a generated plan.
type ItineraryStep struct {
	Order             int         `json:"order"`
	Place             store.Place `json:"place"`
	StayMinutes       int         `json:"stay_minutes"`
	TravelMinutesPrev int         `json:"travel_minutes_from_previous"`
	TravelKMPrev      float64     `json:"travel_km_from_previous"`
}

// Itinerary is the structured result of create_itinerary.
type Itinerary struct {
	Title                string          `json:"title"`
	Steps                []ItineraryStep `json:"steps"`
	TotalDurationMinutes int             `json:"total_duration_minutes"`
	TotalDistanceKM      float64         `json:"total_distance_km"`
	EstimatedCost        float64         `json:"estimated_cost"`
	Metadata             map[string]any  `json:"metadata,omitempty"`
}

// CreateItineraryTool composes place searches into an ordered,
// time-budgeted tour.
type CreateItineraryTool struct {
	client *PlacesClient
}

func NewCreateItineraryTool(client *PlacesClient) *CreateItineraryTool {
	return &CreateItineraryTool{client: client}
}

func (t *CreateItineraryTool) Name() string { return "create_itinerary" }

func (t *CreateItineraryTool) Description() string {
	return "Crea un itinerario ordenado de varios lugares en una ciudad, repartiendo el tiempo disponible entre paradas y desplazamientos."
}

func (t *CreateItineraryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Qué tipo de lugares incluir, p. ej. 'bares de tapas'.",
			},
			"city": map[string]any{
				"type":        "string",
				"description": "Ciudad del plan.",
			},
			"num_locations": map[string]any{
				"type":        "number",
				"description": "Número de paradas deseadas.",
			},
			"duration": map[string]any{
				"type":        "string",
				"description": "Duración total: minutos ('120'), texto ('2 horas', 'una tarde').",
			},
			"num_people": map[string]any{
				"type":        "number",
				"description": "Número de personas.",
			},
			"vibe": map[string]any{
				"type":        "string",
				"description": "Ambiente del plan (romantic, party, chill...).",
			},
			"budget": map[string]any{
				"type":        "string",
				"description": "Presupuesto: low, medium o high.",
			},
			"transport": map[string]any{
				"type":        "string",
				"description": "Modo de desplazamiento: walking, driving, transit o cycling.",
			},
			"lat": map[string]any{"type": "number", "description": "Latitud de partida (opcional)."},
			"lon": map[string]any{"type": "number", "description": "Longitud de partida (opcional)."},
		},
		"required": []string{"query", "city"},
	}
}

func (t *CreateItineraryTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query, _ := args["query"].(string)
	city, _ := args["city"].(string)
	if strings.TrimSpace(query) == "" || strings.TrimSpace(city) == "" {
		return ErrorResult("create_itinerary: query y city son obligatorios"), nil
	}

	numLocations := intArg(args, "num_locations")
	if numLocations <= 0 {
		numLocations = defaultNumLocations
	}
	duration := parseDurationArg(args["duration"])
	numPeople := intArg(args, "num_people")
	if numPeople <= 0 {
		numPeople = 1
	}
	vibe, _ := args["vibe"].(string)
	budget, _ := args["budget"].(string)
	transport, _ := args["transport"].(string)
	if transport == "" {
		transport = "walking"
	}

	places, err := t.client.Search(ctx, contextbuild.NormalizePlaceType(query), city, 0)
	if err != nil {
		return nil, err
	}
	places = filterByBudget(places, budget)
	if len(places) == 0 {
		return NewResult("No se encontraron lugares para montar el plan.").WithData(Itinerary{Title: GenerateTitle(city, vibe, query)}), nil
	}

	// top-rated first, then tour-order them
	sort.SliceStable(places, func(i, j int) bool { return places[i].Rating > places[j].Rating })
	if len(places) > numLocations {
		places = places[:numLocations]
	}
	partial := len(places) < numLocations

	startLat, hasLat := toFloat(args["lat"])
	startLon, hasLon := toFloat(args["lon"])
	ordered := nearestNeighborTour(places, startLat, startLon, hasLat && hasLon)

	itinerary := buildItinerary(ordered, duration, numPeople, transport)
	itinerary.Title = GenerateTitle(city, vibe, query)
	itinerary.Metadata = map[string]any{
		"city":      city,
		"transport": transport,
		"partial":   partial,
	}
	if vibe != "" {
		itinerary.Metadata["vibe"] = vibe
	}

	return NewResult(formatItinerary(itinerary)).WithData(itinerary), nil
}

func parseDurationArg(v any) int {
	switch d := v.(type) {
	case float64:
		if d > 0 {
			return int(d)
		}
	case int:
		if d > 0 {
			return d
		}
	case string:
		if min := contextbuild.ParseDuration(d); min > 0 {
			return min
		}
	}
	return defaultDurationMinutes
}

// filterByBudget drops places whose price level does not match the
// requested budget band. Unpriced places always pass.
func filterByBudget(places []store.Place, budget string) []store.Place {
	if budget == "" {
		return places
	}
	max := 4
	switch budget {
	case "low":
		max = 2
	case "medium":
		max = 3
	}
	out := places[:0:0]
	for _, p := range places {
		if p.PriceLevel == 0 || p.PriceLevel <= max {
			out = append(out, p)
		}
	}
	return out
}

// nearestNeighborTour orders stops greedily: start at the place closest
// to the user's coordinates when available, otherwise at the first
// (top-rated) selection, then repeatedly hop to the nearest remaining.
func nearestNeighborTour(places []store.Place, startLat, startLon float64, hasStart bool) []store.Place {
	if len(places) <= 1 {
		return places
	}

	remaining := append([]store.Place{}, places...)
	ordered := make([]store.Place, 0, len(places))

	first := 0
	if hasStart {
		bestDist := -1.0
		for i, p := range remaining {
			d := HaversineKM(startLat, startLon, p.Lat, p.Lon)
			if bestDist < 0 || d < bestDist {
				bestDist = d
				first = i
			}
		}
	}
	ordered = append(ordered, remaining[first])
	remaining = append(remaining[:first], remaining[first+1:]...)

	for len(remaining) > 0 {
		last := ordered[len(ordered)-1]
		best := 0
		bestDist := -1.0
		for i, p := range remaining {
			d := HaversineKM(last.Lat, last.Lon, p.Lat, p.Lon)
			if bestDist < 0 || d < bestDist {
				bestDist = d
				best = i
			}
		}
		ordered = append(ordered, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

// buildItinerary distributes the total duration minus travel time
// evenly across stops, never below the minimum stay.
func buildItinerary(ordered []store.Place, duration, numPeople int, transport string) Itinerary {
	steps := make([]ItineraryStep, len(ordered))
	totalTravel := 0
	totalDistance := 0.0

	for i, p := range ordered {
		step := ItineraryStep{Order: i + 1, Place: p}
		if i > 0 {
			prev := ordered[i-1]
			step.TravelKMPrev = HaversineKM(prev.Lat, prev.Lon, p.Lat, p.Lon)
			step.TravelMinutesPrev = TravelMinutes(step.TravelKMPrev, transport)
			totalTravel += step.TravelMinutesPrev
			totalDistance += step.TravelKMPrev
		}
		steps[i] = step
	}

	stay := minStayMinutes
	if len(steps) > 0 {
		stay = (duration - totalTravel) / len(steps)
		if stay < minStayMinutes {
			stay = minStayMinutes
		}
	}

	cost := 0.0
	total := 0
	for i := range steps {
		steps[i].StayMinutes = stay
		total += stay + steps[i].TravelMinutesPrev
		// rough per-person spend by price band
		cost += float64(steps[i].Place.PriceLevel) * 12 * float64(numPeople)
	}

	return Itinerary{
		Steps:                steps,
		TotalDurationMinutes: total,
		TotalDistanceKM:      totalDistance,
		EstimatedCost:        cost,
	}
}

// GenerateTitle builds a short human title for a plan.
func GenerateTitle(city, vibe, query string) string {
	subject := strings.TrimSpace(query)
	if subject == "" {
		subject = "plan"
	}
	title := fmt.Sprintf("Plan de %s por %s", subject, city)
	switch vibe {
	case "romantic":
		title = fmt.Sprintf("Plan romántico por %s", city)
	case "party":
		title = fmt.Sprintf("Noche de fiesta por %s", city)
	case "chill":
		title = fmt.Sprintf("Plan tranquilo por %s", city)
	case "family":
		title = fmt.Sprintf("Plan en familia por %s", city)
	case "cultural":
		title = fmt.Sprintf("Ruta cultural por %s", city)
	case "foodie":
		title = fmt.Sprintf("Ruta gastronómica por %s", city)
	}
	return title
}

func formatItinerary(it Itinerary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d min, %.1f km):", it.Title, it.TotalDurationMinutes, it.TotalDistanceKM)
	offset := 0
	for _, s := range it.Steps {
		offset += s.TravelMinutesPrev
		if s.TravelMinutesPrev > 0 {
			fmt.Fprintf(&sb, "\n   ~%d min de desplazamiento (%.1f km)", s.TravelMinutesPrev, s.TravelKMPrev)
		}
		fmt.Fprintf(&sb, "\n%d. %s (min %d-%d)", s.Order, s.Place.Name, offset, offset+s.StayMinutes)
		if s.Place.Address != "" {
			fmt.Fprintf(&sb, " - %s", s.Place.Address)
		}
		offset += s.StayMinutes
	}
	if it.EstimatedCost > 0 {
		fmt.Fprintf(&sb, "\nCoste estimado: %.0f EUR", it.EstimatedCost)
	}
	return sb.String()
}
