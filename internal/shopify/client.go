// Package shopify is a minimal Admin REST client covering the product
// operations the assistant's actions need.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// APIVersion pins the Admin REST API version the client speaks.
	APIVersion = "2024-10"
	// PageSize is the fixed page size used when listing products.
	PageSize = 250
)

// Product is a remote product record.
type Product struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	BodyHTML string    `json:"body_html,omitempty"`
	Vendor   string    `json:"vendor,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// Variant is one purchasable variation of a product.
type Variant struct {
	ID                int64  `json:"id,omitempty"`
	Title             string `json:"title,omitempty"`
	Price             string `json:"price,omitempty"`
	SKU               string `json:"sku,omitempty"`
	InventoryQuantity int    `json:"inventory_quantity,omitempty"`
}

// ProductInput is the payload for creating a product.
type ProductInput struct {
	Title    string    `json:"title"`
	BodyHTML string    `json:"body_html,omitempty"`
	Vendor   string    `json:"vendor,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// StatusError carries a non-success response from the Admin API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shopify API error %d: %s", e.StatusCode, e.Body)
}

// Client talks to one shop's Admin API with one access token. Clients are
// built fresh per invocation from the caller's stored credential.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the given shop domain.
func NewClient(shop, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: fmt.Sprintf("https://%s/admin/api/%s", shop, APIVersion),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// NewClientWithBase creates a client against an explicit base URL. Used by
// tests to point at a local server.
func NewClientWithBase(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateProduct creates a product and returns the stored record.
func (c *Client) CreateProduct(ctx context.Context, p ProductInput) (*Product, error) {
	var result struct {
		Product Product `json:"product"`
	}
	payload := map[string]interface{}{"product": p}
	if err := c.do(ctx, http.MethodPost, "/products.json", payload, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("created product",
		zap.Int64("id", result.Product.ID),
		zap.String("title", result.Product.Title))
	return &result.Product, nil
}

// DeleteProduct deletes one product by id.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d.json", id), nil, nil)
}

// ListProducts returns all products, paging with the fixed page size until
// a short page arrives.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var all []Product
	sinceID := int64(0)
	for {
		var page struct {
			Products []Product `json:"products"`
		}
		path := fmt.Sprintf("/products.json?limit=%d&since_id=%d", PageSize, sinceID)
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Products...)
		if len(page.Products) < PageSize {
			return all, nil
		}
		sinceID = page.Products[len(page.Products)-1].ID
	}
}
