package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SweetPickAI/sweetpick/pkg/fn"
	"golang.org/x/time/rate"
)

// ErrQuotaExhausted is returned when the provider rate-limits the API key.
var ErrQuotaExhausted = fmt.Errorf("yelp API quota exhausted")

// yelpCategories maps cuisines to Yelp category filters for tighter searches.
var yelpCategories = map[string]string{
	"italian":  "italian",
	"indian":   "indpak",
	"chinese":  "chinese",
	"american": "tradamerican,newamerican",
	"mexican":  "mexican",
}

// yelpTime is the timestamp layout in Yelp review payloads.
const yelpTime = "2006-01-02 15:04:05"

// YelpCollector pulls restaurants and their reviews from the Yelp Fusion API.
type YelpCollector struct {
	apiKey      string
	baseURL     string
	rateLimiter *rate.Limiter
	httpClient  *http.Client
	seen        sync.Map // dedup by review ID within one run
}

// NewYelp creates a collector for the given API key.
func NewYelp(apiKey string) *YelpCollector {
	return &YelpCollector{
		apiKey:      apiKey,
		baseURL:     "https://api.yelp.com/v3",
		rateLimiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 5),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint, for tests.
func (c *YelpCollector) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

type businessSearchResponse struct {
	Businesses []struct {
		ID         string  `json:"id"`
		Name       string  `json:"name"`
		Rating     float64 `json:"rating"`
		ReviewCnt  int     `json:"review_count"`
		Price      string  `json:"price"`
		URL        string  `json:"url"`
		Categories []struct {
			Title string `json:"title"`
		} `json:"categories"`
		Location struct {
			City string `json:"city"`
		} `json:"location"`
	} `json:"businesses"`
}

type reviewsResponse struct {
	Reviews []struct {
		ID          string  `json:"id"`
		Text        string  `json:"text"`
		Rating      float64 `json:"rating"`
		TimeCreated string  `json:"time_created"`
		URL         string  `json:"url"`
		User        struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"reviews"`
}

// SearchRestaurants queries the business search endpoint for one
// city/neighborhood/cuisine combination.
func (c *YelpCollector) SearchRestaurants(ctx context.Context, city, neighborhood, cuisine string, max int) fn.Result[[]Restaurant] {
	if c.apiKey == "" {
		return fn.Err[[]Restaurant](fmt.Errorf("yelp API key required"))
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fn.Err[[]Restaurant](err)
	}
	if max <= 0 || max > 50 {
		max = 50 // Yelp API page limit
	}

	location := city
	if neighborhood != "" {
		location = neighborhood + ", " + city
	}
	params := url.Values{
		"term":     {cuisine + " restaurants"},
		"location": {location},
		"limit":    {strconv.Itoa(max)},
		"sort_by":  {"rating"},
	}
	if cat, ok := yelpCategories[strings.ToLower(cuisine)]; ok {
		params.Set("categories", cat)
	}

	var sr businessSearchResponse
	if err := c.get(ctx, "/businesses/search?"+params.Encode(), &sr); err != nil {
		return fn.Err[[]Restaurant](err)
	}

	restaurants := make([]Restaurant, 0, len(sr.Businesses))
	for _, b := range sr.Businesses {
		bizCity := b.Location.City
		if bizCity == "" {
			bizCity = city
		}
		restaurants = append(restaurants, Restaurant{
			ID:           b.ID,
			Name:         b.Name,
			City:         bizCity,
			Neighborhood: neighborhood,
			CuisineType:  cuisine,
			Rating:       b.Rating,
			ReviewCount:  b.ReviewCnt,
			PriceRange:   len(b.Price),
			URL:          b.URL,
		})
	}
	return fn.Ok(restaurants)
}

// FetchReviews pulls the review excerpts for one restaurant.
func (c *YelpCollector) FetchReviews(ctx context.Context, r Restaurant) fn.Result[[]Review] {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fn.Err[[]Review](err)
	}

	var rr reviewsResponse
	if err := c.get(ctx, "/businesses/"+url.PathEscape(r.ID)+"/reviews", &rr); err != nil {
		return fn.Err[[]Review](err)
	}

	now := time.Now()
	reviews := make([]Review, 0, len(rr.Reviews))
	for _, raw := range rr.Reviews {
		if _, dup := c.seen.LoadOrStore(raw.ID, true); dup {
			continue
		}
		published, _ := time.Parse(yelpTime, raw.TimeCreated)
		reviews = append(reviews, Review{
			Source:      "yelp",
			SourceID:    raw.ID,
			Restaurant:  r,
			Text:        raw.Text,
			Rating:      raw.Rating,
			Author:      raw.User.Name,
			URL:         raw.URL,
			PublishedAt: published,
			CollectedAt: now,
		})
	}
	return fn.Ok(reviews)
}

// Collect runs a full collection pass and streams reviews as they arrive.
// Quota exhaustion ends the run; other per-restaurant errors are skipped.
func (c *YelpCollector) Collect(ctx context.Context, opts CollectOpts) <-chan fn.Result[Review] {
	ch := make(chan fn.Result[Review], 32)

	go func() {
		defer close(ch)

		cuisines := opts.Cuisines
		if len(cuisines) == 0 {
			for cuisine := range yelpCategories {
				cuisines = append(cuisines, cuisine)
			}
		}

		for _, cuisine := range cuisines {
			if ctx.Err() != nil {
				return
			}
			restaurants, err := c.SearchRestaurants(ctx, opts.City, opts.Neighborhood, cuisine, opts.MaxPerSearch).Unwrap()
			if err != nil {
				if err == ErrQuotaExhausted {
					ch <- fn.Err[Review](err)
					return
				}
				continue
			}

			for _, r := range restaurants {
				if ctx.Err() != nil {
					return
				}
				reviews, err := c.FetchReviews(ctx, r).Unwrap()
				if err != nil {
					if err == ErrQuotaExhausted {
						ch <- fn.Err[Review](err)
						return
					}
					continue
				}
				for _, review := range reviews {
					ch <- fn.Ok(review)
				}
			}
		}
	}()

	return ch
}

func (c *YelpCollector) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrQuotaExhausted
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("yelp API status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
