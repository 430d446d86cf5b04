package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rumbo-ai/rumbo/internal/contextbuild"
	"github.com/rumbo-ai/rumbo/internal/store"
)

// PlacesClient talks to the Places service with a short-TTL cache in
// front of searches.
type PlacesClient struct {
	baseURL string
	client  *http.Client
	cache   store.Cache
	ttl     time.Duration
	logger  *slog.Logger
}

func NewPlacesClient(baseURL string, timeout time.Duration, cache store.Cache, ttl time.Duration, logger *slog.Logger) *PlacesClient {
	return &PlacesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
	}
}

// placesCacheKey hashes the search inputs into the places namespace.
func placesCacheKey(query, city string, radius int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", strings.ToLower(strings.TrimSpace(query)), strings.ToLower(strings.TrimSpace(city)), radius)
	return "agent:places:" + hex.EncodeToString(h.Sum(nil))[:32]
}

// Search queries GET /places/search. Cache failures degrade to a live
// call; service failures are returned to the caller.
func (c *PlacesClient) Search(ctx context.Context, query, city string, radius int) ([]store.Place, error) {
	key := placesCacheKey(query, city, radius)

	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, key); err == nil {
			var places []store.Place
			if err := json.Unmarshal([]byte(raw), &places); err == nil {
				return places, nil
			}
		} else if err != store.ErrCacheMiss {
			c.logger.Warn("places cache read failed", "error", err)
		}
	}

	q := url.Values{}
	q.Set("q", query)
	if city != "" {
		q.Set("city", city)
	}
	if radius > 0 {
		q.Set("radius", strconv.Itoa(radius))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/places/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("places: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("places: http %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Places []store.Place `json:"places"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("places: decode response: %w", err)
	}

	if c.cache != nil {
		if raw, err := json.Marshal(payload.Places); err == nil {
			if err := c.cache.Set(ctx, key, string(raw), c.ttl); err != nil {
				c.logger.Warn("places cache write failed", "error", err)
			}
		}
	}
	return payload.Places, nil
}

// SearchPlacesTool exposes place search to the model.
type SearchPlacesTool struct {
	client *PlacesClient
}

func NewSearchPlacesTool(client *PlacesClient) *SearchPlacesTool {
	return &SearchPlacesTool{client: client}
}

func (t *SearchPlacesTool) Name() string { return "search_places" }

func (t *SearchPlacesTool) Description() string {
	return "Busca lugares (bares, restaurantes, museos...) en una ciudad. Devuelve nombre, dirección, valoración y categoría de cada lugar."
}

func (t *SearchPlacesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Qué buscar, p. ej. 'bares de tapas'.",
			},
			"city": map[string]any{
				"type":        "string",
				"description": "Ciudad donde buscar.",
			},
			"radius": map[string]any{
				"type":        "number",
				"description": "Radio de búsqueda en metros (opcional).",
			},
			"filters": map[string]any{
				"type":        "object",
				"description": "Filtros opcionales: min_rating (number), category (string), open_now (boolean), max_price (number).",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchPlacesTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("search_places: falta el parámetro query"), nil
	}
	city, _ := args["city"].(string)
	radius := intArg(args, "radius")

	places, err := t.client.Search(ctx, contextbuild.NormalizePlaceType(query), city, radius)
	if err != nil {
		return nil, err
	}
	places = applyFilters(places, args["filters"])

	if len(places) == 0 {
		return NewResult("No se encontraron lugares para esa búsqueda.").WithData([]store.Place{}), nil
	}
	return NewResult(FormatPlaces(places)).WithData(places), nil
}

// FormatPlaces renders places as a numbered list for the model.
func FormatPlaces(places []store.Place) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Encontrados %d lugares:", len(places))
	for i, p := range places {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, p.Name)
		if p.Rating > 0 {
			fmt.Fprintf(&sb, " (%.1f)", p.Rating)
		}
		if p.Category != "" {
			fmt.Fprintf(&sb, " [%s]", p.Category)
		}
		if p.Address != "" {
			fmt.Fprintf(&sb, " - %s", p.Address)
		}
	}
	return sb.String()
}

func applyFilters(places []store.Place, rawFilters any) []store.Place {
	filters, ok := rawFilters.(map[string]any)
	if !ok || len(filters) == 0 {
		return places
	}

	minRating, _ := toFloat(filters["min_rating"])
	category, _ := filters["category"].(string)
	category = contextbuild.NormalizePlaceType(category)
	openNow, _ := filters["open_now"].(bool)
	maxPrice := intValue(filters["max_price"])

	out := places[:0:0]
	for _, p := range places {
		if minRating > 0 && p.Rating < minRating {
			continue
		}
		if category != "" && p.Category != "" && p.Category != category {
			continue
		}
		if openNow && p.OpenNow != nil && !*p.OpenNow {
			continue
		}
		if maxPrice > 0 && p.PriceLevel > maxPrice {
			continue
		}
		out = append(out, p)
	}
	return out
}

// intArg reads a numeric argument that may arrive as float64 (JSON),
// int, or numeric string.
func intArg(args map[string]any, key string) int {
	return intValue(args[key])
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
