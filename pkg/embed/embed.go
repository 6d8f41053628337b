// Package embed turns text into the vectors the semantic store indexes and
// queries. The production implementation calls an OpenAI-compatible
// embeddings endpoint; a caching decorator sits in front of it so repeated
// query phrasings do not re-bill.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/SweetPickAI/sweetpick/pkg/cache"
)

// Dim is the vector width of the embedding model. Both collections are
// created with this dimension; changing the model means reindexing.
const Dim = 1536

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds settings for the OpenAI-backed embedder.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client is the production Embedder backed by go-openai.
type Client struct {
	api     *openai.Client
	model   openai.EmbeddingModel
	timeout time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &Client{
		api:     openai.NewClientWithConfig(oc),
		model:   openai.EmbeddingModel(cfg.Model),
		timeout: cfg.Timeout,
	}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: c.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) == 0 {
			return nil, errors.New("embed: empty vector in response")
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// Cached decorates an Embedder with a cache keyed by model and text hash.
type Cached struct {
	inner Embedder
	cache cache.Client
	model string
	ttl   time.Duration
}

func NewCached(inner Embedder, c cache.Client, model string, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{inner: inner, cache: c, model: model, ttl: ttl}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var vec []float32
		if json.Unmarshal(raw, &vec) == nil && len(vec) > 0 {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(vec); err == nil {
		// Population failures only cost a future recompute.
		_ = c.cache.Set(ctx, key, raw, c.ttl)
	}
	return vec, nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if raw, err := c.cache.Get(ctx, c.key(t)); err == nil {
			var vec []float32
			if json.Unmarshal(raw, &vec) == nil && len(vec) > 0 {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		i := missingIdx[j]
		out[i] = vec
		if raw, err := json.Marshal(vec); err == nil {
			_ = c.cache.Set(ctx, c.key(texts[i]), raw, c.ttl)
		}
	}
	return out, nil
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.Key("emb", c.model, hex.EncodeToString(sum[:16]))
}
