// Package fallback synthesizes recommendations from the generative model for
// queries the coverage gate rejected. It never fails a request: a model
// outage degrades to an apology with no recommendations.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SweetPickAI/sweetpick/engine/domain"
	"github.com/SweetPickAI/sweetpick/pkg/llm"
)

// Generated recommendations carry a fixed conservative confidence since no
// retrieval scoring backs them.
const generatedConfidence = 0.5

const systemPrompt = `You are a restaurant recommendation expert. When asked about locations or cuisines outside your specialized database, recommend for the specific location or cuisine requested. NEVER suggest alternative cities or cuisines, and never tell the user to travel elsewhere.

Reply with only JSON:
{"summary": "2-3 sentence natural-language answer", "recommendations": [{"restaurant_name": "required", "dish_name": "string or null", "location": "string or null", "cuisine_type": "string or null", "reason": "one sentence"}]}`

const apology = "I'm sorry, I couldn't put together recommendations for that request right now. Please try again in a moment, or rephrase your query."

// Handler generates out-of-coverage recommendations.
type Handler struct {
	completer llm.Completer
	log       *slog.Logger
}

func NewHandler(completer llm.Completer, log *slog.Logger) *Handler {
	return &Handler{completer: completer, log: log}
}

// Generate produces web-knowledge recommendations for the axis the decision
// marks unsupported, plus a natural-language summary. Infrastructure errors
// never propagate; the degraded path is an apology and an empty list.
func (h *Handler) Generate(ctx context.Context, originalQuery string, decision domain.FallbackDecision) ([]domain.Recommendation, string) {
	prompt := buildPrompt(originalQuery, decision)
	if prompt == "" || h.completer == nil {
		return nil, apology
	}

	reply, err := h.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		h.log.Warn("fallback generation failed", "scope", decision.Scope, "error", err)
		return nil, apology
	}

	recs, summary := parseReply(reply, h.log)
	if summary == "" {
		summary = apology
	}
	return recs, summary
}

func buildPrompt(originalQuery string, d domain.FallbackDecision) string {
	switch d.Scope {
	case domain.FallbackLocation:
		return fmt.Sprintf(`The user asked about restaurants in %[1]s, which my database does not cover. Recommend 2-3 actual restaurants IN %[1]s for the query %[2]q, with specific dishes and why they are good. Open the summary with: "I don't have deep local insights for %[1]s, but based on my knowledge, here are some great options:"`,
			d.OriginalLocation, originalQuery)
	case domain.FallbackCuisine:
		return fmt.Sprintf(`The user asked about %[1]s cuisine, which my database does not cover. Recommend 2-3 restaurants serving %[1]s cuisine for the query %[2]q, with specific dishes and why they are recommended. Open the summary with: "I don't have specialized analysis for %[1]s cuisine, but from my knowledge, here are some excellent options:"`,
			d.OriginalCuisine, originalQuery)
	case domain.FallbackBoth:
		return fmt.Sprintf(`The user asked about %[1]s cuisine in %[2]s; my database covers neither. Recommend 2-3 actual restaurants serving %[1]s cuisine IN %[2]s for the query %[3]q, with specific dishes and why they are good. Open the summary by noting you are drawing on general knowledge for both the area and the cuisine.`,
			d.OriginalCuisine, d.OriginalLocation, originalQuery)
	}
	return ""
}

type generatedItem struct {
	RestaurantName string `json:"restaurant_name"`
	DishName       string `json:"dish_name"`
	Location       string `json:"location"`
	CuisineType    string `json:"cuisine_type"`
	Reason         string `json:"reason"`
}

type generatedReply struct {
	Summary         string          `json:"summary"`
	Recommendations []generatedItem `json:"recommendations"`
}

// parseReply extracts and validates the model's JSON. Malformed entries are
// discarded individually rather than failing the whole reply.
func parseReply(reply string, log *slog.Logger) ([]domain.Recommendation, string) {
	payload, ok := llm.ExtractJSON(reply)
	if !ok {
		log.Warn("fallback reply contained no JSON", "reply_len", len(reply))
		// Plain prose is still a usable summary.
		return nil, strings.TrimSpace(reply)
	}

	var gr generatedReply
	if err := json.Unmarshal([]byte(payload), &gr); err != nil {
		log.Warn("fallback reply not parseable", "error", err)
		return nil, ""
	}

	recs := make([]domain.Recommendation, 0, len(gr.Recommendations))
	for _, item := range gr.Recommendations {
		if strings.TrimSpace(item.RestaurantName) == "" {
			continue
		}
		recs = append(recs, domain.Recommendation{
			Type:           domain.RecWebSearch,
			DishName:       strings.TrimSpace(item.DishName),
			RestaurantName: strings.TrimSpace(item.RestaurantName),
			Location:       strings.TrimSpace(item.Location),
			CuisineType:    strings.TrimSpace(item.CuisineType),
			Confidence:     generatedConfidence,
			Source:         domain.SourceFallback,
			Reason:         strings.TrimSpace(item.Reason),
		})
	}
	return recs, strings.TrimSpace(gr.Summary)
}

// Reason builds the human-readable fallback_reason the response reports.
func Reason(d domain.FallbackDecision) string {
	switch d.Scope {
	case domain.FallbackLocation:
		return fmt.Sprintf("location %q is outside the coverage area", d.OriginalLocation)
	case domain.FallbackCuisine:
		return fmt.Sprintf("cuisine %q is not indexed", d.OriginalCuisine)
	case domain.FallbackBoth:
		return fmt.Sprintf("location %q and cuisine %q are both outside coverage", d.OriginalLocation, d.OriginalCuisine)
	}
	return ""
}
