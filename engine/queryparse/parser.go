// Package queryparse turns free-text queries into structured intent. The
// generative parser runs first; a deterministic pattern parser covers model
// outages and malformed replies so a request never fails just because parsing
// degraded.
package queryparse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/SweetPickAI/sweetpick/engine/domain"
	"github.com/SweetPickAI/sweetpick/engine/location"
	"github.com/SweetPickAI/sweetpick/engine/textnorm"
	"github.com/SweetPickAI/sweetpick/pkg/cache"
	"github.com/SweetPickAI/sweetpick/pkg/llm"
)

const (
	llmParseTTL   = 6 * time.Hour
	regexParseTTL = 2 * time.Hour
)

const systemPrompt = `You are a query parser for a restaurant recommendation service covering Manhattan, Jersey City, and Hoboken.

Extract structured fields from the user's dining query. Rules:
- Extract ALL mentioned locations verbatim, even outside the coverage area; downstream handles unsupported areas.
- restaurant_name only when a specific restaurant is named.
- cuisine_type is the cuisine mentioned or strongly implied (tacos imply Mexican, pasta implies Italian, curry implies Indian, dim sum implies Chinese).
- dish_name is a specific dish, not a category.
- query_type is one of: restaurant_specific, location_cuisine, location_dish, location_general, meal_type, unknown. A named restaurant always means restaurant_specific.
- confidence in [0,1]; prefer null fields over low-confidence guesses.

Return only JSON:
{"query_type": "...", "location": "string or null", "cuisine_type": "string or null", "dish_name": "string or null", "restaurant_name": "string or null", "meal_type": "string or null", "confidence": 0.0}`

// Parser resolves query text to a ParsedQuery. The Completer is optional;
// without one every query takes the pattern path.
type Parser struct {
	completer llm.Completer
	resolver  *location.Resolver
	cache     cache.Client
	log       *slog.Logger
}

func NewParser(completer llm.Completer, resolver *location.Resolver, c cache.Client, log *slog.Logger) *Parser {
	if c == nil {
		c = cache.Null{}
	}
	return &Parser{completer: completer, resolver: resolver, cache: c, log: log}
}

// Parse extracts intent and entities from query text, resolves the location
// field, and classifies the query type. Parsing never hard-fails: if both the
// model and the patterns come up empty the result is query type unknown.
func (p *Parser) Parse(ctx context.Context, query string) domain.ParsedQuery {
	key := cache.Key("parse", textnorm.NormalizeQuery(query))
	if raw, err := p.cache.Get(ctx, key); err == nil {
		var cached domain.ParsedQuery
		if json.Unmarshal(raw, &cached) == nil {
			return cached
		}
	}

	parsed, fromModel := p.parseWithModel(ctx, query)
	if !fromModel {
		parsed = p.parseWithPatterns(query)
	}

	p.resolver.Apply(&parsed)
	if parsed.QueryType == domain.QueryUnknown {
		parsed.QueryType = classify(parsed)
	}

	ttl := regexParseTTL
	if fromModel {
		ttl = llmParseTTL
	}
	if raw, err := json.Marshal(parsed); err == nil {
		_ = p.cache.Set(ctx, key, raw, ttl)
	}
	return parsed
}

type modelParse struct {
	QueryType      string  `json:"query_type"`
	Location       string  `json:"location"`
	CuisineType    string  `json:"cuisine_type"`
	DishName       string  `json:"dish_name"`
	RestaurantName string  `json:"restaurant_name"`
	MealType       string  `json:"meal_type"`
	Confidence     float64 `json:"confidence"`
}

func (p *Parser) parseWithModel(ctx context.Context, query string) (domain.ParsedQuery, bool) {
	if p.completer == nil {
		return domain.ParsedQuery{}, false
	}

	reply, err := p.completer.Complete(ctx, systemPrompt, fmt.Sprintf("Query: %q", query))
	if err != nil {
		p.log.Warn("model parse failed, using pattern parser", "error", err)
		return domain.ParsedQuery{}, false
	}

	payload, ok := llm.ExtractJSON(reply)
	if !ok {
		p.log.Warn("model reply contained no JSON", "reply_len", len(reply))
		return domain.ParsedQuery{}, false
	}

	var mp modelParse
	if err := json.Unmarshal([]byte(payload), &mp); err != nil {
		p.log.Warn("model reply not parseable", "error", err)
		return domain.ParsedQuery{}, false
	}

	parsed := domain.ParsedQuery{
		Location:       strings.TrimSpace(mp.Location),
		CuisineType:    canonicalCuisine(mp.CuisineType),
		DishName:       strings.TrimSpace(mp.DishName),
		RestaurantName: strings.TrimSpace(mp.RestaurantName),
		MealType:       strings.ToLower(strings.TrimSpace(mp.MealType)),
		Confidence:     clamp01(mp.Confidence),
	}
	if qt := domain.QueryType(mp.QueryType); domain.ValidQueryTypes[qt] {
		parsed.QueryType = qt
	} else {
		parsed.QueryType = domain.QueryUnknown
	}
	// A named restaurant wins over whatever type the model chose.
	if parsed.RestaurantName != "" {
		parsed.QueryType = domain.QueryRestaurantSpecific
	}
	return parsed, true
}

var (
	atRestaurantRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi\s*am\s+at\s+(.+?)(?:[,.?!]|$)`),
		regexp.MustCompile(`(?i)\bi'm\s+at\s+(.+?)(?:[,.?!]|$)`),
		regexp.MustCompile(`(?i)\bat\s+(.+?)\s+restaurant\b`),
		regexp.MustCompile(`(?i)\bmenu\s+at\s+(.+?)(?:[,.?!]|$)`),
	}

	bestInRe = regexp.MustCompile(`(?i)\b(?:best|top|good|great)\s+(.+?)\s+in\s+(.+?)(?:[,.?!]|$)`)
	inLocRe  = regexp.MustCompile(`(?i)\bin\s+([a-z'\s]+?)(?:[,.?!]|\s+and\b|\s+for\b|$)`)

	dishRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b((?:chicken|mutton|lamb|beef|fish|paneer|vegetable|veg|egg)\s+(?:biryani|curry|korma|tikka masala|kebab|karahi|tikka))\b`),
		regexp.MustCompile(`(?i)\b(chana masala|masala dosa|palak paneer|dal makhani|tandoori chicken|butter chicken)\b`),
		regexp.MustCompile(`(?i)\b(kung pao chicken|general tso chicken|chow mein|lo mein|fried rice|dim sum|soup dumplings)\b`),
		regexp.MustCompile(`(?i)\b(margherita pizza|pepperoni pizza|spaghetti carbonara|fettuccine alfredo|lasagna|risotto|gnocchi)\b`),
		regexp.MustCompile(`(?i)\b(fish tacos?|carne asada|burritos?|quesadillas?|enchiladas?)\b`),
		regexp.MustCompile(`(?i)\b(pizza|pasta|burger|sandwich|salad|steak|ribs|tacos?|sushi|ramen|pho|pad thai|biryani|curry|wings)\b`),
	}

	mealTypes = map[string]string{
		"breakfast": "breakfast", "brunch": "brunch", "lunch": "lunch",
		"dinner": "dinner", "late night": "late-night", "late-night": "late-night",
		"snack": "snacks", "snacks": "snacks", "happy hour": "drinks", "drinks": "drinks",
	}
)

// parseWithPatterns is the deterministic fallback. Its coverage is narrower
// than the model's but it keeps working when the model does not.
func (p *Parser) parseWithPatterns(query string) domain.ParsedQuery {
	lower := strings.ToLower(strings.TrimSpace(query))
	if lower == "" {
		return domain.ParsedQuery{QueryType: domain.QueryUnknown, Confidence: 0}
	}
	parsed := domain.ParsedQuery{QueryType: domain.QueryUnknown, Confidence: 0.5}

	for _, re := range atRestaurantRes {
		if m := re.FindStringSubmatch(query); m != nil {
			parsed.RestaurantName = strings.TrimSpace(m[1])
			parsed.QueryType = domain.QueryRestaurantSpecific
			break
		}
	}

	if m := bestInRe.FindStringSubmatch(query); m != nil && parsed.RestaurantName == "" {
		subject := strings.TrimSpace(m[1])
		parsed.Location = strings.TrimSpace(m[2])
		if cuisine := canonicalCuisine(subject); cuisine != "" && strings.EqualFold(subject, cuisineKeywordOf(subject)) {
			parsed.CuisineType = cuisine
		} else if strings.HasSuffix(strings.ToLower(subject), " food") {
			parsed.CuisineType = canonicalCuisine(strings.TrimSuffix(strings.ToLower(subject), " food"))
		} else {
			parsed.DishName = subject
		}
	}

	if parsed.Location == "" {
		if m := inLocRe.FindStringSubmatch(lower); m != nil {
			parsed.Location = strings.TrimSpace(m[1])
		}
	}

	if parsed.CuisineType == "" {
		parsed.CuisineType = leftmostCuisine(lower)
	}

	if parsed.DishName == "" {
		for _, re := range dishRes {
			if m := re.FindStringSubmatch(query); m != nil {
				parsed.DishName = strings.TrimSpace(m[1])
				break
			}
		}
	}

	parsed.MealType = leftmostMatch(lower, mealTypes)

	return parsed
}

// leftmostCuisine returns the canonical cuisine whose keyword appears
// earliest in the text; longer keywords win position ties. Map iteration
// order never decides a multi-cuisine query.
func leftmostCuisine(lower string) string {
	return leftmostMatch(lower, domain.RecognizedCuisines)
}

func leftmostMatch(lower string, vocab map[string]string) string {
	bestIdx, bestLen := -1, 0
	var match string
	for keyword, canonical := range vocab {
		idx := strings.Index(lower, keyword)
		if idx < 0 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx || (idx == bestIdx && len(keyword) > bestLen) {
			bestIdx, bestLen, match = idx, len(keyword), canonical
		}
	}
	return match
}

// classify falls back to entity-driven classification when the parser did not
// commit to a query type.
func classify(p domain.ParsedQuery) domain.QueryType {
	switch {
	case p.RestaurantName != "":
		return domain.QueryRestaurantSpecific
	case p.Location != "" && p.CuisineType != "":
		return domain.QueryLocationCuisine
	case p.Location != "" && p.DishName != "":
		return domain.QueryLocationDish
	case p.MealType != "":
		return domain.QueryMealType
	case p.Location != "":
		return domain.QueryLocationGeneral
	default:
		return domain.QueryUnknown
	}
}

// canonicalCuisine maps free text onto the recognition vocabulary. Text that
// names no recognized cuisine passes through title-cased so the coverage gate
// can still report what the user asked for.
func canonicalCuisine(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return ""
	}
	if canonical, ok := domain.RecognizedCuisines[t]; ok {
		return canonical
	}
	if c := leftmostCuisine(t); c != "" {
		return c
	}
	return titleCase(t)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func cuisineKeywordOf(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if _, ok := domain.RecognizedCuisines[t]; ok {
		return t
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ExpandDishName widens a generic dish term into the concrete variants the
// index stores, so "biryani" matches dishes indexed as "Chicken Biryani".
func ExpandDishName(dish string) []string {
	if dish == "" {
		return nil
	}
	key := textnorm.NormalizeDishName(dish)
	if variants, ok := dishExpansions[key]; ok {
		return variants
	}
	return []string{dish}
}

var dishExpansions = map[string][]string{
	"biryani":  {"Chicken Biryani", "Mutton Biryani", "Vegetable Biryani", "Hyderabadi Biryani"},
	"curry":    {"Chicken Curry", "Lamb Curry", "Vegetable Curry", "Butter Chicken"},
	"tandoori": {"Tandoori Chicken", "Tandoori Fish", "Tandoori Vegetables"},
	"naan":     {"Butter Naan", "Garlic Naan", "Plain Naan"},
	"dal":      {"Dal Makhani", "Dal Tadka", "Yellow Dal"},
	"kebab":    {"Chicken Kebab", "Lamb Kebab", "Seekh Kebab"},
	"pizza":    {"Margherita Pizza", "Pepperoni Pizza", "Marinara Pizza", "New York Pizza", "Sicilian Pizza"},
	"pasta":    {"Spaghetti Carbonara", "Fettuccine Alfredo", "Penne Arrabbiata", "Lasagna"},
	"risotto":  {"Mushroom Risotto", "Seafood Risotto", "Truffle Risotto"},
	"ravioli":  {"Cheese Ravioli", "Spinach Ravioli", "Mushroom Ravioli"},
	"dim sum":  {"Har Gow", "Siu Mai", "Char Siu Bao", "Xiao Long Bao"},
	"noodles":  {"Lo Mein", "Chow Mein", "Dan Dan Noodles"},
	"fried rice": {"Fried Rice", "Yangzhou Fried Rice", "Chicken Fried Rice"},
	"burger":   {"Cheeseburger", "Bacon Burger", "Veggie Burger"},
	"sandwich": {"Club Sandwich", "BLT", "Turkey Sandwich"},
	"steak":    {"Ribeye Steak", "Filet Mignon", "Sirloin Steak"},
	"salad":    {"Caesar Salad", "Greek Salad", "Cobb Salad"},
	"taco":     {"Beef Taco", "Chicken Taco", "Fish Taco"},
	"tacos":    {"Beef Taco", "Chicken Taco", "Fish Taco"},
	"burrito":  {"Beef Burrito", "Chicken Burrito", "Bean Burrito"},
	"sushi":    {"California Roll", "Salmon Nigiri", "Spicy Tuna Roll"},
	"ramen":    {"Tonkotsu Ramen", "Miso Ramen", "Shoyu Ramen"},
	"pho":      {"Beef Pho", "Chicken Pho", "Vegetable Pho"},
	"pad thai": {"Chicken Pad Thai", "Shrimp Pad Thai", "Tofu Pad Thai"},
}
