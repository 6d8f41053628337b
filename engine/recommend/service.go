// Package recommend orchestrates the query pipeline: safety validation,
// parsing, coverage gating, then retrieval or generative fallback, and
// finally response assembly.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SweetPickAI/sweetpick/engine/domain"
	"github.com/SweetPickAI/sweetpick/engine/fallback"
	"github.com/SweetPickAI/sweetpick/engine/scope"
	"github.com/SweetPickAI/sweetpick/engine/textnorm"
	"github.com/SweetPickAI/sweetpick/pkg/cache"
	"github.com/SweetPickAI/sweetpick/pkg/metrics"
)

// Parser turns query text into structured intent.
type Parser interface {
	Parse(ctx context.Context, query string) domain.ParsedQuery
}

// Retriever executes in-scope vector retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, parsed domain.ParsedQuery, maxResults int) ([]domain.Recommendation, error)
}

// Generator covers out-of-scope queries.
type Generator interface {
	Generate(ctx context.Context, originalQuery string, decision domain.FallbackDecision) ([]domain.Recommendation, string)
}

// Options configures the pipeline.
type Options struct {
	DefaultMaxResults int
	// ResponseTTL bounds how long a retrieval-backed response is cached.
	// Fallback responses are never cached; generated content is not
	// idempotent.
	ResponseTTL time.Duration
}

func DefaultOptions() Options {
	return Options{
		DefaultMaxResults: 10,
		ResponseTTL:       time.Hour,
	}
}

// Service runs one query end to end. It is safe for concurrent use; requests
// share nothing but the cache.
type Service struct {
	parser    Parser
	validator *scope.Validator
	retriever Retriever
	generator Generator
	cache     cache.Client
	opts      Options
	log       *slog.Logger

	queries       *metrics.Counter
	safetyRejects *metrics.Counter
	fallbacks     *metrics.Counter
	cacheHits     *metrics.Counter
	latency       *metrics.Histogram
}

// New creates the pipeline service. Registry may be nil when metrics are not
// collected (tests).
func New(parser Parser, validator *scope.Validator, retriever Retriever, generator Generator, c cache.Client, opts Options, reg *metrics.Registry, log *slog.Logger) *Service {
	if c == nil {
		c = cache.Null{}
	}
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = 10
	}
	if opts.ResponseTTL <= 0 {
		opts.ResponseTTL = time.Hour
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{
		parser:    parser,
		validator: validator,
		retriever: retriever,
		generator: generator,
		cache:     c,
		opts:      opts,
		log:       log,

		queries:       reg.Counter("sweetpick_queries_total", "Queries processed."),
		safetyRejects: reg.Counter("sweetpick_safety_rejections_total", "Queries rejected by content safety."),
		fallbacks:     reg.Counter("sweetpick_fallback_total", "Queries served by the generative fallback."),
		cacheHits:     reg.Counter("sweetpick_response_cache_hits_total", "Responses served from cache."),
		latency:       reg.Histogram("sweetpick_query_seconds", "End-to-end query latency.", nil),
	}
}

// Query processes one user query. A returned error is either a safety
// rejection (check domain.IsSafetyRejection) or an infrastructure failure;
// out-of-coverage queries succeed via fallback.
func (s *Service) Query(ctx context.Context, query string, maxResults int) (domain.QueryResponse, error) {
	start := time.Now()
	s.queries.Inc()
	defer s.latency.Since(start)

	if maxResults <= 0 {
		maxResults = s.opts.DefaultMaxResults
	}

	if err := domain.ValidateQueryText(query); err != nil {
		s.safetyRejects.Inc()
		return domain.QueryResponse{}, err
	}

	key := cache.Key("resp", textnorm.NormalizeQuery(query), fmt.Sprint(maxResults))
	if resp, ok := s.cachedResponse(ctx, key); ok {
		s.cacheHits.Inc()
		resp.Query = query
		resp.ProcessingTime = time.Since(start).Seconds()
		return resp, nil
	}

	parsed := s.parser.Parse(ctx, query)

	decision := s.validator.Validate(parsed)
	if decision.SafetyErr != nil {
		s.safetyRejects.Inc()
		return domain.QueryResponse{}, decision.SafetyErr
	}

	var resp domain.QueryResponse
	if decision.Allowed {
		recs, err := s.retriever.Retrieve(ctx, parsed, maxResults)
		if err != nil {
			return domain.QueryResponse{}, fmt.Errorf("recommend: %w", err)
		}
		resp = assembleRetrieval(query, parsed, recs)
	} else {
		s.fallbacks.Inc()
		s.log.Info("routing to fallback",
			"scope", decision.Fallback.Scope,
			"location", decision.Fallback.OriginalLocation,
			"cuisine", decision.Fallback.OriginalCuisine)
		recs, summary := s.generator.Generate(ctx, query, decision.Fallback)
		resp = assembleFallback(query, parsed, decision.Fallback, recs, summary)
	}

	resp.ProcessingTime = time.Since(start).Seconds()
	if !resp.FallbackUsed {
		s.storeResponse(ctx, key, resp)
	}
	return resp, nil
}

func (s *Service) cachedResponse(ctx context.Context, key string) (domain.QueryResponse, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return domain.QueryResponse{}, false
	}
	var resp domain.QueryResponse
	if json.Unmarshal(raw, &resp) != nil {
		return domain.QueryResponse{}, false
	}
	return resp, true
}

func (s *Service) storeResponse(ctx context.Context, key string, resp domain.QueryResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.opts.ResponseTTL); err != nil {
		s.log.Warn("response cache write failed", "error", err)
	}
}

func assembleRetrieval(query string, parsed domain.ParsedQuery, recs []domain.Recommendation) domain.QueryResponse {
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return domain.QueryResponse{
		Query:           query,
		QueryType:       parsed.QueryType,
		Recommendations: recs,
		NaturalResponse: summarize(parsed, recs),
		ConfidenceScore: confidence(parsed, recs),
	}
}

func assembleFallback(query string, parsed domain.ParsedQuery, d domain.FallbackDecision, recs []domain.Recommendation, summary string) domain.QueryResponse {
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	conf := 0.0
	if len(recs) > 0 {
		conf = recs[0].Confidence
	}
	return domain.QueryResponse{
		Query:           query,
		QueryType:       parsed.QueryType,
		Recommendations: recs,
		NaturalResponse: summary,
		FallbackUsed:    true,
		FallbackReason:  fallback.Reason(d),
		ConfidenceScore: conf,
	}
}

// summarize renders a deterministic natural-language summary of ranked
// results. Retrieval responses are assembled, not generated, so cached
// responses stay reproducible.
func summarize(parsed domain.ParsedQuery, recs []domain.Recommendation) string {
	if len(recs) == 0 {
		return noResultsMessage(parsed)
	}

	var b strings.Builder
	subject := "spots"
	switch {
	case parsed.DishName != "":
		subject = parsed.DishName
	case parsed.CuisineType != "":
		subject = parsed.CuisineType + " food"
	}
	where := parsed.Location
	if parsed.Neighborhood != "" {
		where = parsed.Neighborhood
	}
	if where != "" {
		fmt.Fprintf(&b, "Here are the top picks for %s in %s:", subject, where)
	} else {
		fmt.Fprintf(&b, "Here are the top picks for %s:", subject)
	}

	n := len(recs)
	if n > 3 {
		n = 3
	}
	for i := 0; i < n; i++ {
		r := recs[i]
		b.WriteString(" ")
		if r.DishName != "" && r.RestaurantName != "" {
			fmt.Fprintf(&b, "%s at %s", r.DishName, r.RestaurantName)
		} else if r.RestaurantName != "" {
			b.WriteString(r.RestaurantName)
		} else {
			b.WriteString(r.DishName)
		}
		if r.RestaurantRating > 0 {
			fmt.Fprintf(&b, " (%.1f)", r.RestaurantRating)
		}
		if i < n-1 {
			b.WriteString(",")
		} else {
			b.WriteString(".")
		}
	}
	return b.String()
}

func noResultsMessage(parsed domain.ParsedQuery) string {
	if parsed.Location != "" {
		return fmt.Sprintf("I couldn't find matches for that in %s yet. Try a nearby neighborhood or a broader dish or cuisine.", parsed.Location)
	}
	return "I couldn't find matches for that yet. Try naming a neighborhood, cuisine, or dish."
}

func confidence(parsed domain.ParsedQuery, recs []domain.Recommendation) float64 {
	if len(recs) == 0 {
		return parsed.Confidence
	}
	var sum float64
	for _, r := range recs {
		sum += r.Confidence
	}
	return sum / float64(len(recs))
}
