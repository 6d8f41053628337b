package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/SweetPickAI/sweetpick/engine/textnorm"
	"github.com/SweetPickAI/sweetpick/pkg/fn"
	"github.com/SweetPickAI/sweetpick/pkg/llm"
)

const extractSystemPrompt = `You are a food expert extracting dish mentions from restaurant reviews. Extract the MOST SPECIFIC dish named in the text: "margherita pizza" rather than "pizza" when the review says so, the single word when it does not. For each dish score the reviewer's sentiment toward that dish from -1.0 (hated it) to 1.0 (loved it), 0.0 when neutral.

Reply with only JSON:
[{"dish_name": "string", "sentiment_score": float}]`

type extractedDish struct {
	DishName       string  `json:"dish_name"`
	SentimentScore float64 `json:"sentiment_score"`
}

// NewExtract builds the stage that turns cleaned review text into scored dish
// mentions. Model failures degrade to lexical extraction rather than failing
// the review.
func NewExtract(completer llm.Completer, log *slog.Logger) fn.Stage[CleanedReview, ScoredReview] {
	return func(ctx context.Context, cr CleanedReview) fn.Result[ScoredReview] {
		if len(cr.Sentences) == 0 {
			// Nothing dish-shaped in the review; the restaurant record is
			// still worth indexing downstream.
			return fn.Ok(ScoredReview{CleanedReview: cr})
		}

		dishes := modelExtract(ctx, completer, cr, log)
		if dishes == nil {
			dishes = lexicalExtract(cr.Sentences)
		}
		return fn.Ok(ScoredReview{
			CleanedReview: cr,
			Mentions:      scoreMentions(dishes, cr.Rating),
		})
	}
}

func modelExtract(ctx context.Context, completer llm.Completer, cr CleanedReview, log *slog.Logger) []extractedDish {
	if completer == nil {
		return nil
	}
	reply, err := completer.Complete(ctx, extractSystemPrompt, strings.Join(cr.Sentences, " "))
	if err != nil {
		log.Warn("dish extraction model call failed", "doc_id", cr.DocID(), "error", err)
		return nil
	}
	payload, ok := llm.ExtractJSON(reply)
	if !ok {
		log.Warn("dish extraction reply contained no JSON", "doc_id", cr.DocID())
		return nil
	}
	var dishes []extractedDish
	if err := json.Unmarshal([]byte(payload), &dishes); err != nil {
		log.Warn("dish extraction reply not parseable", "doc_id", cr.DocID(), "error", err)
		return nil
	}
	return dishes
}

// scoreMentions turns raw extractions into scored mentions. The final score
// weights the rating-derived recommendation signal over per-review sentiment,
// and duplicate dish names keep the strongest sentiment.
func scoreMentions(dishes []extractedDish, rating float64) []DishMention {
	recommendation := 0.5
	if rating > 0 {
		recommendation = rating / 5
		if recommendation > 1 {
			recommendation = 1
		}
	}

	byName := make(map[string]DishMention, len(dishes))
	order := make([]string, 0, len(dishes))
	for _, d := range dishes {
		name := strings.TrimSpace(d.DishName)
		if name == "" {
			continue
		}
		normalized := textnorm.NormalizeDishName(name)
		sentiment := clampSentiment(d.SentimentScore)
		if prev, seen := byName[normalized]; seen {
			if sentiment > prev.SentimentScore {
				prev.SentimentScore = sentiment
				prev.FinalScore = finalScore(recommendation, sentiment)
				byName[normalized] = prev
			}
			continue
		}
		order = append(order, normalized)
		byName[normalized] = DishMention{
			DishName:            name,
			NormalizedName:      normalized,
			SentimentScore:      sentiment,
			RecommendationScore: recommendation,
			FinalScore:          finalScore(recommendation, sentiment),
		}
	}

	mentions := make([]DishMention, 0, len(order))
	for _, name := range order {
		mentions = append(mentions, byName[name])
	}
	return mentions
}

func finalScore(recommendation, sentiment float64) float64 {
	return 0.8*recommendation + 0.2*sentiment
}

func clampSentiment(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// dishTerms is the lexical fallback vocabulary, longest-first so specific
// variants win over their generic heads within a sentence.
var dishTerms = []string{
	"margherita pizza", "pepperoni pizza", "sicilian pizza", "vodka pizza",
	"spaghetti carbonara", "fettuccine alfredo", "penne arrabbiata",
	"garlic bread", "macaroni and cheese", "caesar salad", "greek salad",
	"buffalo wings", "barbecue wings", "cheeseburger", "veggie burger",
	"fish tacos", "chicken tacos", "beef tacos", "chicken burrito",
	"beef burrito", "fried rice", "lo mein", "chow mein", "dan dan noodles",
	"hot and sour soup", "wonton soup", "egg drop soup", "dim sum",
	"soup dumplings", "chicken biryani", "mutton biryani", "lamb biryani",
	"vegetable biryani", "butter chicken", "tandoori chicken",
	"chicken curry", "lamb curry", "chicken tikka masala", "pad thai",
	"green curry", "red curry", "tom yum", "banh mi", "spring rolls",
	"pizza", "pasta", "lasagna", "ravioli", "focaccia", "bruschetta",
	"tiramisu", "gelato", "burger", "wings", "steak", "tacos", "burrito",
	"quesadilla", "guacamole", "enchilada", "dumplings", "noodles",
	"biryani", "curry", "samosa", "pakora", "naan", "roti", "lassi",
	"sushi", "ramen", "tempura", "udon", "pho", "cheesecake", "pancakes",
}

var positiveWords = []string{
	"delicious", "amazing", "excellent", "great", "good", "tasty", "yummy",
	"fantastic", "outstanding", "perfect", "wonderful", "incredible",
	"awesome", "unreal", "best",
}

var negativeWords = []string{
	"terrible", "awful", "bad", "disgusting", "horrible", "nasty", "bland",
	"tasteless", "overcooked", "undercooked", "cold", "dry", "soggy",
}

func init() {
	sort.Slice(dishTerms, func(i, j int) bool { return len(dishTerms[i]) > len(dishTerms[j]) })
}

// lexicalExtract matches known dish terms per sentence and scores them by
// keyword sentiment. It is the degraded path when the model is unavailable.
func lexicalExtract(sentences []string) []extractedDish {
	var dishes []extractedDish
	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		sentiment := keywordSentiment(lower)

		var matched []string
		for _, term := range dishTerms {
			if !strings.Contains(lower, term) {
				continue
			}
			// Skip terms already covered by a longer match ("biryani" when
			// "chicken biryani" hit first).
			covered := false
			for _, m := range matched {
				if strings.Contains(m, term) {
					covered = true
					break
				}
			}
			if covered {
				continue
			}
			matched = append(matched, term)
			dishes = append(dishes, extractedDish{DishName: term, SentimentScore: sentiment})
		}
	}
	return dishes
}

func keywordSentiment(lower string) float64 {
	positives, negatives := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			positives++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			negatives++
		}
	}
	switch {
	case positives > negatives:
		return min(0.8, float64(positives)*0.2)
	case negatives > positives:
		return max(-0.8, -float64(negatives)*0.2)
	}
	return 0
}
