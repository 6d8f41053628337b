package semantic

// Collection names. Both are created with embed.Dim-wide cosine vectors; the
// ingest pipeline writes them and the retrieval engine reads them.
const (
	CollectionDishes      = "sweetpick_dishes"
	CollectionRestaurants = "sweetpick_restaurants"
)

// Hit is a single similarity-search result with its decoded payload.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// String returns the payload value for key as a string, or "".
func (h Hit) String(key string) string {
	s, _ := h.Payload[key].(string)
	return s
}

// Float returns the payload value for key as a float64, or 0. Integer
// payloads are widened.
func (h Hit) Float(key string) float64 {
	switch v := h.Payload[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Has reports whether the payload carries key at all, letting callers
// distinguish a stored zero from an absent field.
func (h Hit) Has(key string) bool {
	_, ok := h.Payload[key]
	return ok
}

// VectorRecord is one point to store.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// Filters narrows a similarity search with exact-match and threshold
// conditions on payload fields. Zero values mean "no constraint".
type Filters struct {
	City         string
	Cuisine      string
	Neighborhood string
	Restaurant   string
	MinRating    float64
}

func (f Filters) empty() bool {
	return f == Filters{}
}
