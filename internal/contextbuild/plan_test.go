package contextbuild

import (
	"reflect"
	"testing"

	"github.com/rumbo-ai/rumbo/internal/i18n"
	"github.com/rumbo-ai/rumbo/internal/store"
)

func TestExtractPlanParams(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  PlanParams
	}{
		{
			name:  "full spanish plan request",
			query: "Quiero un plan de 3 horas para 4 personas en Santiago, bares y tapas, ambiente de fiesta",
			want: PlanParams{
				DurationMinutes: 180,
				NumPeople:       4,
				Cities:          []string{"Santiago"},
				PlaceTypes:      []string{"bar", "tapas"},
				Vibe:            "party",
			},
		},
		{
			name:  "evening phrase maps to three hours",
			query: "algo para esta tarde en Vigo",
			want: PlanParams{
				DurationMinutes: 180,
				Cities:          []string{"Vigo"},
			},
		},
		{
			name:  "couple implies two people",
			query: "una cena romántica en pareja",
			want: PlanParams{
				NumPeople:  2,
				PlaceTypes: nil,
				Vibe:       "romantic",
			},
		},
		{
			name:  "explicit hours beat phrase",
			query: "una tarde de 5 horas por Madrid",
			want: PlanParams{
				DurationMinutes: 300,
				Cities:          []string{"Madrid"},
			},
		},
		{
			name:  "english with budget and transport",
			query: "2 hours walking in Barcelona, somewhere cheap, museums please",
			want: PlanParams{
				DurationMinutes: 120,
				Cities:          []string{"Barcelona"},
				PlaceTypes:      []string{"museum"},
				Budget:          "low",
				Transport:       "walking",
			},
		},
		{
			name:  "bar not matched inside barato",
			query: "algo barato",
			want:  PlanParams{Budget: "low"},
		},
		{
			name:  "no signal",
			query: "hola, ¿qué tal?",
			want:  PlanParams{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractPlanParams(tc.query)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ExtractPlanParams(%q)\n got %+v\nwant %+v", tc.query, got, tc.want)
			}
		})
	}
}

func TestMergeNewScalarWins(t *testing.T) {
	old := PlanParams{DurationMinutes: 120, Vibe: "chill", Cities: []string{"Lugo"}}
	newer := PlanParams{DurationMinutes: 180, Cities: []string{"Ourense"}, NumPeople: 3}

	got := Merge(old, newer)
	if got.DurationMinutes != 180 {
		t.Errorf("newer duration should win, got %d", got.DurationMinutes)
	}
	if got.Vibe != "chill" {
		t.Errorf("old vibe should survive when newer is empty, got %q", got.Vibe)
	}
	if !reflect.DeepEqual(got.Cities, []string{"Lugo", "Ourense"}) {
		t.Errorf("cities should union in order, got %v", got.Cities)
	}
	if got.NumPeople != 3 {
		t.Errorf("num_people = %d, want 3", got.NumPeople)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	p := PlanParams{
		DurationMinutes: 90,
		Cities:          []string{"Santiago", "Vigo"},
		PlaceTypes:      []string{"bar"},
		Vibe:            "party",
	}
	once := Merge(PlanParams{}, p)
	twice := Merge(once, p)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\n once %+v\ntwice %+v", once, twice)
	}
}

func TestMissingAndReady(t *testing.T) {
	var p PlanParams
	if p.Ready() {
		t.Fatal("empty params must not be ready")
	}
	if got := len(p.Missing()); got != 5 {
		t.Errorf("empty params should miss all 5 required slots, got %d", got)
	}

	p = PlanParams{
		DurationMinutes: 180,
		NumPeople:       2,
		Cities:          []string{"Santiago"},
		PlaceTypes:      []string{"bar"},
		Vibe:            "party",
	}
	if !p.Ready() {
		t.Errorf("all required slots filled, Missing() = %v", p.Missing())
	}
}

func TestMissingPromptLocalization(t *testing.T) {
	tr := i18n.New([]string{"es", "en"}, "es")

	one := MissingPrompt(tr, "es", []string{"duration"})
	if one == "" || one == "plan.missing_one" {
		t.Errorf("single missing field should localize, got %q", one)
	}
	many := MissingPrompt(tr, "es", []string{"duration", "vibe"})
	if many == "" || many == "plan.missing_many" {
		t.Errorf("multiple missing fields should localize, got %q", many)
	}
	if none := MissingPrompt(tr, "es", nil); none != "" {
		t.Errorf("nothing missing should produce empty prompt, got %q", none)
	}
}

func TestPlanStateFromTurns(t *testing.T) {
	turns := []store.ConversationTurn{
		{Extra: map[string]any{store.ExtraPlanParams: PlanParams{DurationMinutes: 120, Cities: []string{"Santiago"}}}},
		{Extra: map[string]any{store.ExtraPlanParams: map[string]any{"num_people": 4, "vibe": "party"}}},
		{Extra: nil},
	}

	got := PlanStateFromTurns(turns)
	want := PlanParams{
		DurationMinutes: 120,
		NumPeople:       4,
		Cities:          []string{"Santiago"},
		Vibe:            "party",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PlanStateFromTurns\n got %+v\nwant %+v", got, want)
	}
}

func TestNormalizePlaceType(t *testing.T) {
	cases := map[string]string{
		"Bares":       "bar",
		"marisquería": "seafood",
		"museos":      "museum",
		"praia":       "beach",
		"desconocido": "desconocido",
	}
	for in, want := range cases {
		if got := NormalizePlaceType(in); got != want {
			t.Errorf("NormalizePlaceType(%q) = %q, want %q", in, got, want)
		}
	}
}
