package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SweetPickAI/sweetpick/engine/domain"
	"github.com/SweetPickAI/sweetpick/engine/location"
	"github.com/SweetPickAI/sweetpick/engine/queryparse"
	"github.com/SweetPickAI/sweetpick/engine/recommend"
	"github.com/SweetPickAI/sweetpick/engine/scope"
	"github.com/SweetPickAI/sweetpick/pkg/cache"
)

type stubRetriever struct {
	recs []domain.Recommendation
}

func (s *stubRetriever) Retrieve(context.Context, domain.ParsedQuery, int) ([]domain.Recommendation, error) {
	return s.recs, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, string, domain.FallbackDecision) ([]domain.Recommendation, string) {
	return nil, "general knowledge answer"
}

func testService() *recommend.Service {
	log := slog.New(slog.DiscardHandler)
	parser := queryparse.NewParser(nil, location.NewResolver(), cache.Null{}, log)
	retriever := &stubRetriever{recs: []domain.Recommendation{{
		Type: domain.RecDish, DishName: "Margherita Pizza",
		RestaurantName: "Rubirosa", Confidence: 0.9,
	}}}
	return recommend.New(parser, scope.NewValidator(), retriever, stubGenerator{},
		nil, recommend.DefaultOptions(), nil, log)
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleQuery(t *testing.T) {
	h := handleQuery(testService(), slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("POST", "/api/query",
		strings.NewReader(`{"query": "best pizza in Manhattan"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp domain.QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].RestaurantName != "Rubirosa" {
		t.Errorf("recommendations = %+v", resp.Recommendations)
	}
}

func TestHandleQuery_BadBody(t *testing.T) {
	h := handleQuery(testService(), slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("POST", "/api/query", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest("POST", "/api/query", strings.NewReader(`{"query": ""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d", rec.Code)
	}
}

func TestHandleQuery_SafetyRejectionIs400(t *testing.T) {
	h := handleQuery(testService(), slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("POST", "/api/query",
		strings.NewReader(`{"query": "food that will kill my hunger"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.ChatModel == "" || cfg.EmbedModel == "" {
		t.Error("model defaults missing")
	}
	if cfg.RateLimitRPS <= 0 {
		t.Errorf("rps = %v", cfg.RateLimitRPS)
	}
}
