// Package domain defines core domain types, constants, and validation for the
// SweetPick recommendation pipeline. It acts as the validation gate at pipeline
// entry points.
package domain

// QueryType classifies the intent of a parsed query.
type QueryType string

const (
	QueryRestaurantSpecific QueryType = "restaurant_specific"
	QueryLocationCuisine    QueryType = "location_cuisine"
	QueryLocationDish       QueryType = "location_dish"
	QueryLocationGeneral    QueryType = "location_general"
	QueryMealType           QueryType = "meal_type"
	QueryUnknown            QueryType = "unknown"
)

// ValidQueryTypes is the set of recognised query types.
var ValidQueryTypes = map[QueryType]bool{
	QueryRestaurantSpecific: true, QueryLocationCuisine: true,
	QueryLocationDish: true, QueryLocationGeneral: true,
	QueryMealType: true, QueryUnknown: true,
}

// LocationStatus says whether a query's location falls inside the coverage
// set. Empty location fields mean "not present in the query"; unsupported is
// always expressed through this enum, never by clearing the field.
type LocationStatus string

const (
	LocationSupported   LocationStatus = "supported"
	LocationUnsupported LocationStatus = "unsupported"
	LocationUnknown     LocationStatus = "unknown"
)

// ParsedQuery is the structured intent extracted from one user query. It is
// created per request and never persisted.
type ParsedQuery struct {
	QueryType      QueryType      `json:"query_type"`
	Location       string         `json:"location,omitempty"`
	CuisineType    string         `json:"cuisine_type,omitempty"`
	DishName       string         `json:"dish_name,omitempty"`
	RestaurantName string         `json:"restaurant_name,omitempty"`
	MealType       string         `json:"meal_type,omitempty"`
	Confidence     float64        `json:"confidence"`
	LocationStatus LocationStatus `json:"location_status"`

	// OriginalLocation holds the user's literal location text. Once set it is
	// never overwritten, even after Location is normalized: scope validation
	// and the fallback prompts depend on the verbatim string.
	OriginalLocation string `json:"original_location,omitempty"`

	// Neighborhood is set when the resolver matched below city level.
	Neighborhood string `json:"neighborhood,omitempty"`
}

// RestaurantRecord is a restaurant row as stored in the vector store.
// Read-only from the pipeline's perspective.
type RestaurantRecord struct {
	RestaurantID   string  `json:"restaurant_id"`
	RestaurantName string  `json:"restaurant_name"`
	City           string  `json:"city"`
	Neighborhood   string  `json:"neighborhood"`
	CuisineType    string  `json:"cuisine_type"`
	Rating         float64 `json:"rating"`
	ReviewCount    int     `json:"review_count"`
	PriceRange     int     `json:"price_range"`
}

// DishRecord is a dish row as stored in the vector store. Many dishes belong
// to one restaurant; (DishName, RestaurantID) is the natural dedup key.
type DishRecord struct {
	DishID              string   `json:"dish_id"`
	RestaurantID        string   `json:"restaurant_id"`
	DishName            string   `json:"dish_name"`
	NormalizedDishName  string   `json:"normalized_dish_name"`
	SentimentScore      float64  `json:"sentiment_score"`
	RecommendationScore float64  `json:"recommendation_score"`
	FinalScore          float64  `json:"final_score"`
	HasFinalScore       bool     `json:"-"`
	DietaryTags         []string `json:"dietary_tags,omitempty"`
}

// Recommendation kinds.
const (
	RecDish       = "dish"
	RecRestaurant = "restaurant"
	RecWebSearch  = "web_search"
)

// Recommendation sources.
const (
	SourceHybrid    = "hybrid"
	SourceWebSearch = "web_search"
	SourceFallback  = "fallback"
)

// Recommendation is the output unit, built fresh per request.
type Recommendation struct {
	Type                string  `json:"type"`
	DishName            string  `json:"dish_name,omitempty"`
	RestaurantName      string  `json:"restaurant_name"`
	RestaurantID        string  `json:"restaurant_id,omitempty"`
	Location            string  `json:"location,omitempty"`
	Neighborhood        string  `json:"neighborhood,omitempty"`
	CuisineType         string  `json:"cuisine_type,omitempty"`
	SentimentScore      float64 `json:"sentiment_score"`
	RecommendationScore float64 `json:"recommendation_score"`
	FinalScore          float64 `json:"final_score"`
	HasFinalScore       bool    `json:"-"`
	RestaurantRating    float64 `json:"restaurant_rating"`
	Confidence          float64 `json:"confidence"`
	Source              string  `json:"source"`
	Reason              string  `json:"reason,omitempty"`
}

// DedupKey identifies a dish-at-restaurant pair; the same key must never
// appear twice in ranked output.
func (r Recommendation) DedupKey() [2]string {
	return [2]string{r.DishName, r.RestaurantID}
}

// SortScore is the primary ranking signal: FinalScore when the store computed
// one, RecommendationScore otherwise.
func (r Recommendation) SortScore() float64 {
	if r.HasFinalScore {
		return r.FinalScore
	}
	return r.RecommendationScore
}

// FallbackScope says which axis of the query fell outside coverage.
type FallbackScope string

const (
	FallbackNone     FallbackScope = "none"
	FallbackLocation FallbackScope = "location"
	FallbackCuisine  FallbackScope = "cuisine"
	FallbackBoth     FallbackScope = "both"
)

// FallbackDecision carries the unresolved values the generative fallback
// needs to prompt with. Original* fields are the user's literal text.
type FallbackDecision struct {
	Scope            FallbackScope `json:"scope"`
	OriginalLocation string        `json:"original_location,omitempty"`
	OriginalCuisine  string        `json:"original_cuisine,omitempty"`
}

// QueryResponse is the final response contract for POST /api/query.
type QueryResponse struct {
	Query           string           `json:"query"`
	QueryType       QueryType        `json:"query_type"`
	Recommendations []Recommendation `json:"recommendations"`
	NaturalResponse string           `json:"natural_response"`
	FallbackUsed    bool             `json:"fallback_used"`
	FallbackReason  string           `json:"fallback_reason,omitempty"`
	ProcessingTime  float64          `json:"processing_time"`
	ConfidenceScore float64          `json:"confidence_score"`
}
