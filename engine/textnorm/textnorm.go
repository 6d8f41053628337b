// Package textnorm cleans and standardizes raw review and query text before
// extraction, embedding, or parsing.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	urlRe        = regexp.MustCompile(`https?://\S+`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	htmlEntityRe = regexp.MustCompile(`&[a-z]+;|&#\d+;`)
	// Emphasis runs ("great!!!!", "what????", "hmm.....") collapse to a
	// single mark, one pattern per punctuation class.
	bangRunRe     = regexp.MustCompile(`!{3,}`)
	questionRunRe = regexp.MustCompile(`\?{3,}`)
	dotRunRe      = regexp.MustCompile(`\.{3,}`)
	whitespaceRe  = regexp.MustCompile(`\s+`)

	// Review-platform boilerplate that leaks into scraped text.
	artifactRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bread more\b`),
		regexp.MustCompile(`(?i)\bsee more\b`),
		regexp.MustCompile(`(?i)\bshow less\b`),
		regexp.MustCompile(`(?i)\b\d+\s+people found this helpful\b`),
		regexp.MustCompile(`(?i)\bwas this review helpful\??\b`),
		regexp.MustCompile(`…\s*More\b`),
	}

	sentenceSplitRe = regexp.MustCompile(`[.!?]+\s+`)
)

// Shorthand and slang mapped to the canonical food terms the extraction
// vocabulary knows.
var foodTermAliases = map[string]string{
	"bbq":      "barbecue",
	"b.b.q":    "barbecue",
	"sammie":   "sandwich",
	"sammich":  "sandwich",
	"burg":     "burger",
	"za":       "pizza",
	"app":      "appetizer",
	"apps":     "appetizers",
	"veggie":   "vegetable",
	"veggies":  "vegetables",
	"choc":     "chocolate",
	"guac":     "guacamole",
	"mac n cheese":  "macaroni and cheese",
	"mac and cheese": "macaroni and cheese",
}

// Words that signal a sentence is talking about food rather than service,
// parking, or decor.
var foodSignals = []string{
	"dish", "food", "taste", "tasty", "delicious", "flavor", "flavour",
	"ordered", "menu", "portion", "appetizer", "entree", "dessert",
	"pizza", "pasta", "burger", "taco", "curry", "biryani", "noodle",
	"rice", "chicken", "sauce", "spicy", "sweet", "fried", "grilled",
	"cheese", "bread", "soup", "salad", "sushi", "ramen", "sandwich",
}

// Clean standardizes raw review text: strips URLs, markup, platform
// boilerplate, and emphasis runs, lowercases, normalizes food shorthand, and
// collapses whitespace. The result is what gets embedded and extracted from.
func Clean(text string) string {
	t := urlRe.ReplaceAllString(text, " ")
	t = htmlTagRe.ReplaceAllString(t, " ")
	t = htmlEntityRe.ReplaceAllString(t, " ")
	for _, re := range artifactRes {
		t = re.ReplaceAllString(t, " ")
	}
	t = bangRunRe.ReplaceAllString(t, "!")
	t = questionRunRe.ReplaceAllString(t, "?")
	t = dotRunRe.ReplaceAllString(t, ".")
	t = strings.ToLower(t)
	t = normalizeFoodTerms(t)
	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// NormalizeQuery prepares user query text for cache keying and parsing:
// lowercase, trimmed, single-spaced. Content is otherwise untouched.
func NormalizeQuery(query string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(query)), " ")
}

// NormalizeDishName canonicalizes a dish name for dedup comparisons.
func NormalizeDishName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = normalizeFoodTerms(n)
	return whitespaceRe.ReplaceAllString(n, " ")
}

// FoodSentences returns the sentences of cleaned review text that appear to
// discuss food. Ingestion embeds these rather than whole reviews.
func FoodSentences(cleaned string) []string {
	var out []string
	for _, s := range sentenceSplitRe.Split(cleaned, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if containsFoodSignal(s) {
			out = append(out, s)
		}
	}
	return out
}

func containsFoodSignal(sentence string) bool {
	for _, sig := range foodSignals {
		if strings.Contains(sentence, sig) {
			return true
		}
	}
	return false
}

func normalizeFoodTerms(text string) string {
	// Multi-word aliases first so single-word replacements cannot split them.
	for alias, canonical := range foodTermAliases {
		if strings.Contains(alias, " ") {
			text = strings.ReplaceAll(text, alias, canonical)
		}
	}
	words := strings.Fields(text)
	for i, w := range words {
		stripped := strings.Trim(w, ".,!?;:")
		if canonical, ok := foodTermAliases[stripped]; ok && !strings.Contains(canonical, " ") {
			words[i] = strings.Replace(w, stripped, canonical, 1)
		}
	}
	return strings.Join(words, " ")
}
