// Package location maps free-text location phrases to the supported
// city/neighborhood vocabulary.
package location

import (
	"strings"

	"github.com/SweetPickAI/sweetpick/engine/domain"
)

type placeKind int

const (
	kindCity placeKind = iota
	kindNeighborhood
)

type place struct {
	kind       placeKind
	city       string
	confidence float64
}

// Resolution is the outcome of resolving one location phrase. City and
// Neighborhood are canonical names; both empty unless Status is supported.
type Resolution struct {
	Status       domain.LocationStatus
	City         string
	Neighborhood string
	Confidence   float64
}

// Resolver matches location phrases against a fixed table of supported cities
// and neighborhoods, plus a list of known-unsupported areas that must route to
// fallback rather than be treated as typos.
type Resolver struct {
	places      map[string]place
	unsupported map[string]bool
}

// NewResolver builds a resolver over the coverage area: Manhattan, Jersey
// City, and Hoboken, with their neighborhoods and common aliases.
func NewResolver() *Resolver {
	r := &Resolver{
		places:      make(map[string]place),
		unsupported: make(map[string]bool),
	}

	r.addCity("Manhattan", 1.0, "manhattan")
	r.addCity("Manhattan", 0.9, "nyc", "new york city")
	r.addCity("Manhattan", 0.8, "new york")
	r.addNeighborhoods("Manhattan",
		"times square", "hell's kitchen", "hells kitchen", "midtown",
		"midtown west", "midtown east", "soho", "tribeca",
		"greenwich village", "west village", "east village",
		"lower east side", "upper west side", "upper east side",
		"chinatown", "little italy", "financial district", "wall street",
		"chelsea", "flatiron", "gramercy", "murray hill", "kips bay",
		"union square", "nolita", "bowery", "battery park",
		"downtown manhattan", "midtown manhattan", "uptown manhattan",
	)

	r.addCity("Jersey City", 1.0, "jersey city")
	r.addCity("Jersey City", 0.9, "jc")
	r.addNeighborhoods("Jersey City",
		"downtown jersey city", "journal square", "the heights", "heights",
		"grove street", "exchange place", "paulus hook", "newport",
	)

	r.addCity("Hoboken", 1.0, "hoboken")
	r.addNeighborhoods("Hoboken",
		"downtown hoboken", "uptown hoboken", "midtown hoboken",
		"washington street",
	)

	// Areas users ask about that the index does not cover. Matching one of
	// these is a definitive "unsupported", not a resolution failure.
	for _, u := range []string{
		"brooklyn", "queens", "bronx", "the bronx", "staten island",
		"newark", "san francisco", "sf", "bay area", "california", "ca",
		"los angeles", "chicago", "boston", "philadelphia",
		"washington dc", "dc", "miami", "seattle", "austin",
	} {
		r.unsupported[u] = true
	}

	return r
}

func (r *Resolver) addCity(city string, confidence float64, aliases ...string) {
	for _, a := range aliases {
		r.places[a] = place{kind: kindCity, city: city, confidence: confidence}
	}
}

func (r *Resolver) addNeighborhoods(city string, names ...string) {
	for _, n := range names {
		r.places[n] = place{kind: kindNeighborhood, city: city, confidence: 1.0}
	}
}

// SupportedCities returns the canonical city names the index covers.
func (r *Resolver) SupportedCities() []string {
	return []string{"Manhattan", "Jersey City", "Hoboken"}
}

// Resolve maps a location phrase to a canonical city and optional
// neighborhood. Empty input resolves to status unknown; anything that matches
// neither the supported nor unsupported tables resolves to unsupported, so the
// caller can hand the verbatim phrase to fallback.
func (r *Resolver) Resolve(locationText string) Resolution {
	text := strings.ToLower(strings.TrimSpace(locationText))
	if text == "" {
		return Resolution{Status: domain.LocationUnknown}
	}

	if r.isUnsupported(text) {
		return Resolution{Status: domain.LocationUnsupported, Confidence: 1.0}
	}

	if p, ok := r.places[text]; ok {
		return resolutionFor(text, p, p.confidence)
	}

	if res, ok := r.resolveCompound(text); ok {
		return res
	}

	// Partial and fuzzy matches carry reduced confidence. Every candidate is
	// scored and the winner chosen by a fixed ordering, so the same phrase
	// always resolves the same way.
	var bestName string
	var bestPlace place
	for name, p := range r.places {
		if !strings.Contains(name, text) && !strings.Contains(text, name) && !wordOverlap(text, name) {
			continue
		}
		if bestName == "" || betterMatch(name, p, bestName, bestPlace) {
			bestName, bestPlace = name, p
		}
	}
	if bestName != "" {
		return resolutionFor(bestName, bestPlace, bestPlace.confidence*0.8)
	}

	return Resolution{Status: domain.LocationUnsupported}
}

// betterMatch orders fuzzy candidates: higher confidence first, then the
// longer (more specific) table name, then lexicographic as the final
// tie-break.
func betterMatch(name string, p place, curName string, cur place) bool {
	if p.confidence != cur.confidence {
		return p.confidence > cur.confidence
	}
	if len(name) != len(curName) {
		return len(name) > len(curName)
	}
	return name < curName
}

// Apply enriches a parsed query in place with the resolution of its location
// field. OriginalLocation keeps the verbatim phrase and is set exactly once;
// later passes must not touch it.
func (r *Resolver) Apply(p *domain.ParsedQuery) Resolution {
	if p.OriginalLocation == "" {
		p.OriginalLocation = p.Location
	}
	res := r.Resolve(p.OriginalLocation)
	p.LocationStatus = res.Status
	if res.Status == domain.LocationSupported {
		p.Location = res.City
		p.Neighborhood = res.Neighborhood
	}
	return res
}

func resolutionFor(name string, p place, confidence float64) Resolution {
	res := Resolution{
		Status:     domain.LocationSupported,
		City:       p.city,
		Confidence: confidence,
	}
	if p.kind == kindNeighborhood {
		res.Neighborhood = canonicalNeighborhood(name)
	}
	return res
}

// Connective words allowed between the two halves of a compound phrase, as
// in "jersey city in journal square" or "soho near manhattan".
var connectives = map[string]bool{
	"in": true, "near": true, "around": true, "by": true, "at": true,
}

// resolveCompound handles phrases naming both a city and one of its
// neighborhoods in either order, optionally joined by a connective:
// "jersey city journal square", "jersey city in journal square",
// "journal square in jersey city".
func (r *Resolver) resolveCompound(text string) (Resolution, bool) {
	words := strings.Fields(text)
	if len(words) < 2 {
		return Resolution{}, false
	}
	for i := 1; i < len(words); i++ {
		first, fok := r.places[strings.Join(words[:i], " ")]
		if !fok {
			continue
		}

		rest := words[i:]
		for len(rest) > 0 && connectives[rest[0]] {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			continue
		}
		secondName := strings.Join(rest, " ")
		second, sok := r.places[secondName]
		if !sok || first.city != second.city || first.kind == second.kind {
			continue
		}

		hoodName := secondName
		if first.kind == kindNeighborhood {
			hoodName = strings.Join(words[:i], " ")
		}
		return Resolution{
			Status:       domain.LocationSupported,
			City:         first.city,
			Neighborhood: canonicalNeighborhood(hoodName),
			Confidence:   1.0,
		}, true
	}
	return Resolution{}, false
}

func (r *Resolver) isUnsupported(text string) bool {
	if r.unsupported[text] {
		return true
	}
	for u := range r.unsupported {
		if strings.Contains(u, " ") && strings.Contains(text, u) {
			return true
		}
	}
	// Single-word overlap with the unsupported list, unless the full phrase
	// is itself a supported place.
	if _, ok := r.places[text]; ok {
		return false
	}
	for _, w := range strings.Fields(text) {
		if r.unsupported[w] {
			return true
		}
	}
	return false
}

// wordOverlap reports whether most words of the shorter phrase appear in the
// other.
func wordOverlap(a, b string) bool {
	aw := strings.Fields(a)
	bw := strings.Fields(b)
	if len(aw) == 0 || len(bw) == 0 {
		return false
	}
	set := make(map[string]bool, len(aw))
	for _, w := range aw {
		set[w] = true
	}
	overlap := 0
	for _, w := range bw {
		if set[w] {
			overlap++
		}
	}
	shorter := len(aw)
	if len(bw) < shorter {
		shorter = len(bw)
	}
	return float64(overlap) >= float64(shorter)*0.7
}

// canonicalNeighborhood converts a matched table key to display casing.
func canonicalNeighborhood(key string) string {
	words := strings.Fields(key)
	for i, w := range words {
		switch w {
		case "of", "the", "in":
			if i > 0 {
				continue
			}
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
