// Package docsgen talks to the legal-document generation backend and turns
// its loosely formatted text responses into structured document records.
package docsgen

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusError carries a non-success response from the generator backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("docsgen API error %d: %s", e.StatusCode, e.Body)
}

// Client calls the generation backend. Successful results are cached in
// Redis keyed by a digest of the idea; the cache is best-effort and never
// fails a generation.
type Client struct {
	endpoint string
	client   *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewClient creates a generator client. cache may be nil to disable
// caching.
func NewClient(endpoint string, cache *redis.Client, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		cache:    cache,
		cacheTTL: 24 * time.Hour,
		logger:   logger,
	}
}

// generateResponse is the backend's envelope: the document array arrives as
// a single text payload, possibly fenced or decorated.
type generateResponse struct {
	Docs string `json:"docs"`
}

// Generate produces document records for a one-sentence business idea.
func (c *Client) Generate(ctx context.Context, idea string) ([]Document, error) {
	if docs, ok := c.cached(ctx, idea); ok {
		return docs, nil
	}

	body, err := json.Marshal(map[string]string{"idea": idea})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/api/docs/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	// The backend wraps its text in {"docs": "..."}; older deployments
	// return the text bare.
	text := string(raw)
	var envelope generateResponse
	if json.Unmarshal(raw, &envelope) == nil && envelope.Docs != "" {
		text = envelope.Docs
	}

	docs, err := ExtractDocuments(text)
	if err != nil {
		return nil, err
	}

	c.store(ctx, idea, docs)
	return docs, nil
}

func cacheKey(idea string) string {
	sum := sha256.Sum256([]byte(idea))
	return "docsgen:" + hex.EncodeToString(sum[:])
}

func (c *Client) cached(ctx context.Context, idea string) ([]Document, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, cacheKey(idea)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("docs cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, false
	}
	return docs, true
}

func (c *Client) store(ctx context.Context, idea string, docs []Document) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(idea), raw, c.cacheTTL).Err(); err != nil {
		c.logger.Warn("docs cache write failed", zap.Error(err))
	}
}
