package contextbuild

import (
	"fmt"
	"strings"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/memory"
	"github.com/rumbo-ai/rumbo/internal/providers"
	"github.com/rumbo-ai/rumbo/internal/validate"
)

const defaultSystemPrompt = `Eres Rumbo, un asistente conversacional para descubrir lugares y crear planes.
Ayudas a encontrar bares, restaurantes, museos y sitios que visitar, y organizas itinerarios realistas.
Usa las herramientas disponibles cuando necesites datos de lugares. Sé concreto y cercano.`

// Fallback context budget when the routed profile does not declare one.
const defaultMaxContextTokens = 8192

var languageNames = map[string]string{
	"es": "español",
	"en": "English",
	"ca": "català",
	"gl": "galego",
}

// AgentContext is everything the reason-act loop needs for one request.
type AgentContext struct {
	Messages        []providers.Message
	Plan            PlanParams
	Window          *memory.Window
	TokensRemaining int
}

// Builder assembles agent contexts from the validated request and the
// session memory window.
type Builder struct {
	cfg config.AgentConfig
}

func NewBuilder(cfg config.AgentConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build produces the message sequence for the model: one system message
// carrying language, summary, place references and plan state, then the
// remembered turns as user/assistant pairs, then the current query.
// The plan state merges everything accumulated in the session with what
// the current query adds.
func (b *Builder) Build(vc *validate.Context, w *memory.Window, maxContextTokens int) *AgentContext {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}

	plan := Merge(PlanStateFromTurns(w.Turns), ExtractPlanParams(vc.Query))

	msgs := make([]providers.Message, 0, 2*len(w.Turns)+2)
	msgs = append(msgs, providers.Message{Role: "system", Content: b.systemPrompt(vc, w, plan)})
	for _, t := range w.Turns {
		msgs = append(msgs,
			providers.Message{Role: "user", Content: t.Query},
			providers.Message{Role: "assistant", Content: t.Response},
		)
	}
	msgs = append(msgs, providers.Message{Role: "user", Content: vc.Query})

	used := 0
	for _, m := range msgs {
		used += memory.EstimateTokens(m.Content)
	}
	remaining := maxContextTokens - used
	if remaining < 0 {
		remaining = 0
	}

	return &AgentContext{
		Messages:        msgs,
		Plan:            plan,
		Window:          w,
		TokensRemaining: remaining,
	}
}

func (b *Builder) systemPrompt(vc *validate.Context, w *memory.Window, plan PlanParams) string {
	var sb strings.Builder

	base := b.cfg.SystemPrompt
	if base == "" {
		base = defaultSystemPrompt
	}
	sb.WriteString(base)

	langName := languageNames[vc.Language]
	if langName == "" {
		langName = vc.Language
	}
	fmt.Fprintf(&sb, "\n\nResponde siempre en %s.", langName)

	if vc.Location != nil {
		fmt.Fprintf(&sb, "\nUbicación del usuario: %.5f, %.5f.", vc.Location.Lat, vc.Location.Lon)
	}

	if w.Summary != "" {
		fmt.Fprintf(&sb, "\n\nContexto de la conversación:\n%s", w.Summary)
	}

	if len(w.PreviousPlaces) > 0 {
		sb.WriteString("\n\nLugares mencionados antes (el usuario puede referirse a ellos por número):")
		for _, ref := range w.PreviousPlaces {
			fmt.Fprintf(&sb, "\n#%d: %s", ref.Index, ref.Place.Name)
			if ref.Place.Category != "" {
				fmt.Fprintf(&sb, " (%s)", ref.Place.Category)
			}
			if ref.Place.Address != "" {
				fmt.Fprintf(&sb, " - %s", ref.Place.Address)
			}
		}
	}

	if !plan.IsZero() {
		sb.WriteString("\n\nDatos del plan en curso:")
		if plan.DurationMinutes > 0 {
			fmt.Fprintf(&sb, "\n- duración: %d min", plan.DurationMinutes)
		}
		if plan.NumPeople > 0 {
			fmt.Fprintf(&sb, "\n- personas: %d", plan.NumPeople)
		}
		if len(plan.Cities) > 0 {
			fmt.Fprintf(&sb, "\n- ciudades: %s", strings.Join(plan.Cities, ", "))
		}
		if len(plan.PlaceTypes) > 0 {
			fmt.Fprintf(&sb, "\n- tipos de lugar: %s", strings.Join(plan.PlaceTypes, ", "))
		}
		if plan.Vibe != "" {
			fmt.Fprintf(&sb, "\n- ambiente: %s", plan.Vibe)
		}
		if plan.Budget != "" {
			fmt.Fprintf(&sb, "\n- presupuesto: %s", plan.Budget)
		}
		if plan.Transport != "" {
			fmt.Fprintf(&sb, "\n- transporte: %s", plan.Transport)
		}
	}

	return sb.String()
}
