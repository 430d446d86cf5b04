package contextbuild

import (
	"sort"
	"strings"
)

// termMapping normalizes place-type words across the supported
// languages to the canonical English categories the Places service
// indexes on.
var termMapping = map[string]string{
	// bars and drinks
	"bar": "bar", "bares": "bar", "bars": "bar",
	"pub": "bar", "pubs": "bar",
	"vinoteca": "wine_bar", "vinotecas": "wine_bar", "wine bar": "wine_bar",
	"terraza": "terrace", "terrazas": "terrace", "terrassa": "terrace",
	"discoteca": "nightclub", "discotecas": "nightclub", "club": "nightclub", "clubs": "nightclub",

	// food
	"restaurante": "restaurant", "restaurantes": "restaurant", "restaurant": "restaurant", "restaurants": "restaurant",
	"tapas": "tapas", "tapeo": "tapas", "pinchos": "tapas", "pintxos": "tapas",
	"marisquería": "seafood", "marisquerías": "seafood", "marisco": "seafood", "pulpería": "seafood", "pulperías": "seafood",
	"cafetería": "cafe", "cafeterías": "cafe", "café": "cafe", "cafés": "cafe", "cafe": "cafe", "coffee": "cafe",
	"pastelería": "bakery", "pastelerías": "bakery", "panadería": "bakery", "bakery": "bakery",
	"mercado": "market", "mercados": "market", "market": "market", "markets": "market", "mercat": "market",

	// culture and outdoors
	"museo": "museum", "museos": "museum", "museum": "museum", "museums": "museum", "museu": "museum",
	"galería": "gallery", "galerías": "gallery", "gallery": "gallery", "galleries": "gallery",
	"iglesia": "church", "iglesias": "church", "catedral": "cathedral", "church": "church",
	"parque": "park", "parques": "park", "park": "park", "parc": "park", "xardín": "park", "jardín": "park",
	"playa": "beach", "playas": "beach", "beach": "beach", "beaches": "beach", "praia": "beach", "platja": "beach",
	"mirador": "viewpoint", "miradores": "viewpoint", "viewpoint": "viewpoint",
	"tienda": "shop", "tiendas": "shop", "shopping": "shop", "compras": "shop",
	"hotel": "hotel", "hoteles": "hotel", "hotels": "hotel",
}

// NormalizePlaceType maps a user-facing place word to its canonical
// category, or returns the lowercase input when no mapping exists.
func NormalizePlaceType(term string) string {
	key := strings.ToLower(strings.TrimSpace(term))
	if canonical, ok := termMapping[key]; ok {
		return canonical
	}
	return key
}

// ExtractPlaceTypes scans free text for known place words and returns
// the canonical categories in first-mention order.
func ExtractPlaceTypes(query string) []string {
	lower := strings.ToLower(query)

	// Track the earliest match per canonical category so the result is
	// stable regardless of map iteration order.
	best := map[string]int{}
	for term, canonical := range termMapping {
		pos := strings.Index(lower, term)
		if pos < 0 {
			continue
		}
		// Reject matches inside a longer word ("bar" inside "barato").
		if !wordBoundary(lower, pos, len(term)) {
			continue
		}
		if prev, ok := best[canonical]; !ok || pos < prev {
			best[canonical] = pos
		}
	}

	type hit struct {
		pos      int
		category string
	}
	hits := make([]hit, 0, len(best))
	for canonical, pos := range best {
		hits = append(hits, hit{pos: pos, category: canonical})
	}
	if len(hits) == 0 {
		return nil
	}

	// first-mention order, category name as tie break
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].category < hits[j].category
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.category
	}
	return out
}

func wordBoundary(s string, pos, length int) bool {
	before := pos == 0 || !isLetter(rune(s[pos-1]))
	afterIdx := pos + length
	after := afterIdx >= len(s) || !isLetter(rune(s[afterIdx]))
	return before && after
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= 0x80
}
