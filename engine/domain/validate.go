package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Query length bounds (runes).
const (
	MinQueryLength = 3
	MaxQueryLength = 500
)

// Injection patterns — SQL/script fragments that should never appear in a
// restaurant query.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
}

// Disallowed word lists (lowercase). Place names below are exempted before
// these are checked.
var blockedWords = map[string]bool{
	"kill": true, "murder": true, "violence": true, "terrorist": true,
	"racist": true, "sexist": true, "nude": true, "naked": true,
	"fuck": true, "shit": true, "bitch": true, "cunt": true,
}

// Neighborhood names that collide with the word lists.
var placeNameAllowances = []string{
	"hell's kitchen", "hells kitchen", "hell kitchen", "hell's gate", "hells gate",
}

// Dish substrings that are culturally unavailable per cuisine; matching a pair
// is a safety rejection, not a retrieval miss.
var sensitiveCombinations = map[string][]string{
	"Indian":  {"beef", "steak", "hamburger", "roast beef"},
	"Halal":   {"pork", "ham", "bacon", "wine"},
	"Kosher":  {"pork", "ham", "bacon", "shellfish", "cheeseburger"},
}

// ValidateQueryText checks raw query text against length bounds and content
// safety rules. It runs before parsing; a non-nil error means nothing
// downstream may execute.
func ValidateQueryText(query string) error {
	text := strings.TrimSpace(query)

	if utf8.RuneCountInString(text) < MinQueryLength {
		return NewValidationError("query", text, ErrQueryTooShort)
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return NewValidationError("query", truncateRunes(text, 32)+"...", ErrQueryTooLong)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("query", text, ErrQueryInjection)
		}
	}

	lower := strings.ToLower(text)
	for _, place := range placeNameAllowances {
		lower = strings.ReplaceAll(lower, place, " ")
	}
	for _, word := range strings.Fields(lower) {
		cleaned := strings.Trim(word, ".,!?;:'\"()-")
		if blockedWords[cleaned] {
			return NewValidationError("query", cleaned, ErrQueryBlocked)
		}
	}

	return nil
}

// truncateRunes cuts text to at most n runes without splitting a multi-byte
// sequence.
func truncateRunes(text string, n int) string {
	for i := range text {
		if n == 0 {
			return text[:i]
		}
		n--
	}
	return text
}

// ValidateCulturalFit rejects dish-cuisine combinations that restaurants of
// that cuisine do not serve. Both fields empty or either missing is fine.
func ValidateCulturalFit(p ParsedQuery) error {
	if p.CuisineType == "" || p.DishName == "" {
		return nil
	}
	dishes, ok := sensitiveCombinations[p.CuisineType]
	if !ok {
		return nil
	}
	dishLower := strings.ToLower(p.DishName)
	for _, d := range dishes {
		if strings.Contains(dishLower, d) {
			return NewValidationError("dish_name", p.DishName, ErrCulturalMismatch)
		}
	}
	return nil
}
