package tools

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rumbo-ai/rumbo/internal/store"
)

func itineraryPlaces() []store.Place {
	// Three stops along a line so the nearest-neighbor order is obvious.
	return []store.Place{
		{ID: "far", Name: "Lejos", Lat: 41.70, Lon: -0.88, Rating: 5.0, PriceLevel: 2},
		{ID: "near", Name: "Cerca", Lat: 41.65, Lon: -0.88, Rating: 4.0, PriceLevel: 1},
		{ID: "mid", Name: "Medio", Lat: 41.675, Lon: -0.88, Rating: 4.5, PriceLevel: 1},
	}
}

func TestCreateItineraryNearestNeighborFromUser(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(placesHandler(t, itineraryPlaces(), &hits))
	defer srv.Close()

	client := NewPlacesClient(srv.URL, time.Second, nil, time.Minute, slog.Default())
	tool := NewCreateItineraryTool(client)

	res, err := tool.Execute(context.Background(), map[string]any{
		"query":         "bares",
		"city":          "Zaragoza",
		"num_locations": float64(3),
		"duration":      "2 horas",
		"transport":     "walking",
		"lat":           41.64,
		"lon":           -0.88,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	it := res.Data.(Itinerary)

	wantOrder := []string{"near", "mid", "far"}
	if len(it.Steps) != 3 {
		t.Fatalf("want 3 steps, got %d", len(it.Steps))
	}
	for i, id := range wantOrder {
		if it.Steps[i].Place.ID != id {
			t.Errorf("step %d = %s, want %s", i, it.Steps[i].Place.ID, id)
		}
	}
	if partial := it.Metadata["partial"].(bool); partial {
		t.Error("three places found for three requested, partial should be false")
	}
}

func TestCreateItineraryStartsAtTopRatedWithoutLocation(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(placesHandler(t, itineraryPlaces(), &hits))
	defer srv.Close()

	client := NewPlacesClient(srv.URL, time.Second, nil, time.Minute, slog.Default())
	tool := NewCreateItineraryTool(client)

	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "bares", "city": "Zaragoza", "num_locations": float64(3),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	it := res.Data.(Itinerary)
	if it.Steps[0].Place.ID != "far" {
		t.Errorf("tour should start at the top-rated place, got %s", it.Steps[0].Place.ID)
	}
}

func TestCreateItineraryTimeBudget(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(placesHandler(t, itineraryPlaces(), &hits))
	defer srv.Close()

	client := NewPlacesClient(srv.URL, time.Second, nil, time.Minute, slog.Default())
	tool := NewCreateItineraryTool(client)

	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "bares", "city": "Zaragoza",
		"num_locations": float64(3),
		"duration":      float64(240),
		"transport":     "walking",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	it := res.Data.(Itinerary)

	travel := 0
	for _, s := range it.Steps {
		travel += s.TravelMinutesPrev
		if s.StayMinutes < minStayMinutes {
			t.Errorf("stay %d below minimum", s.StayMinutes)
		}
	}
	wantStay := (240 - travel) / 3
	for _, s := range it.Steps {
		if s.StayMinutes != wantStay {
			t.Errorf("stay = %d, want %d", s.StayMinutes, wantStay)
		}
	}
}

func TestCreateItineraryMinimumStay(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(placesHandler(t, itineraryPlaces(), &hits))
	defer srv.Close()

	client := NewPlacesClient(srv.URL, time.Second, nil, time.Minute, slog.Default())
	tool := NewCreateItineraryTool(client)

	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "bares", "city": "Zaragoza",
		"num_locations": float64(3),
		"duration":      float64(20), // far less than travel needs
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	it := res.Data.(Itinerary)
	for _, s := range it.Steps {
		if s.StayMinutes != minStayMinutes {
			t.Errorf("tight budget should clamp stays to %d, got %d", minStayMinutes, s.StayMinutes)
		}
	}
}

func TestCreateItineraryPartial(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(placesHandler(t, itineraryPlaces()[:1], &hits))
	defer srv.Close()

	client := NewPlacesClient(srv.URL, time.Second, nil, time.Minute, slog.Default())
	tool := NewCreateItineraryTool(client)

	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "bares", "city": "Zaragoza", "num_locations": float64(4),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	it := res.Data.(Itinerary)
	if len(it.Steps) != 1 {
		t.Fatalf("want 1 step, got %d", len(it.Steps))
	}
	if partial := it.Metadata["partial"].(bool); !partial {
		t.Error("fewer places than requested must set partial=true")
	}
}

func TestParseDurationArg(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{float64(90), 90},
		{"2 horas", 120},
		{"45 min", 45},
		{"una tarde", 180},
		{"quick", 30},
		{"full day", 480},
		{nil, defaultDurationMinutes},
		{"", defaultDurationMinutes},
	}
	for _, tc := range cases {
		if got := parseDurationArg(tc.in); got != tc.want {
			t.Errorf("parseDurationArg(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestGenerateTitle(t *testing.T) {
	if got := GenerateTitle("Vigo", "romantic", "cena"); got != "Plan romántico por Vigo" {
		t.Errorf("unexpected title %q", got)
	}
	if got := GenerateTitle("Lugo", "", "tapas"); got != "Plan de tapas por Lugo" {
		t.Errorf("unexpected title %q", got)
	}
}
