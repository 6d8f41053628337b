package domain

// CoreCuisines is the fixed set the retrieval pipeline can serve directly.
// It is deliberately smaller than the parser's recognition vocabulary: a
// cuisine can be recognised, found unsupported, and routed to fallback.
var CoreCuisines = map[string]bool{
	"Italian":  true,
	"Indian":   true,
	"Chinese":  true,
	"American": true,
	"Mexican":  true,
}

// RecognizedCuisines maps lowercase keywords to canonical cuisine names for
// the deterministic parser. Order of matching is decided by position in the
// query text, not by this table.
var RecognizedCuisines = map[string]string{
	"italian":        "Italian",
	"indian":         "Indian",
	"chinese":        "Chinese",
	"american":       "American",
	"mexican":        "Mexican",
	"thai":           "Thai",
	"japanese":       "Japanese",
	"korean":         "Korean",
	"vietnamese":     "Vietnamese",
	"mediterranean":  "Mediterranean",
	"greek":          "Greek",
	"french":         "French",
	"spanish":        "Spanish",
	"middle eastern": "Middle Eastern",
	"turkish":        "Turkish",
	"ethiopian":      "Ethiopian",
	"caribbean":      "Caribbean",
	"cuban":          "Cuban",
	"peruvian":       "Peruvian",
	"brazilian":      "Brazilian",
	"german":         "German",
	"portuguese":     "Portuguese",
	"pakistani":      "Pakistani",
	"filipino":       "Filipino",
	"malaysian":      "Malaysian",
}

// IsCoreCuisine reports whether the retrieval pipeline serves this cuisine.
// Empty means "no cuisine constraint", which the pipeline always serves.
func IsCoreCuisine(cuisine string) bool {
	return cuisine == "" || CoreCuisines[cuisine]
}
