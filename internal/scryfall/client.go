// Package scryfall is a small client for the Scryfall card database API.
package scryfall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.scryfall.com"

// Config holds client settings.
type Config struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	BulkTimeout time.Duration
	HTTPClient  *http.Client
}

// Client talks to the Scryfall HTTP API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	bulkHTTP  *http.Client
}

// NewClient creates a client. Zero values fall back to defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cardbored-api/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BulkTimeout == 0 {
		cfg.BulkTimeout = 5 * time.Minute
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		bulkHTTP:  &http.Client{Timeout: cfg.BulkTimeout},
	}
	if cfg.HTTPClient != nil {
		c.http = cfg.HTTPClient
		c.bulkHTTP = cfg.HTTPClient
	}
	return c
}

// BulkData fetches the descriptor for a bulk dataset such as "default_cards".
func (c *Client) BulkData(ctx context.Context, bulkType string) (*BulkData, error) {
	var meta BulkData
	if err := c.getJSON(ctx, c.http, c.baseURL+"/bulk-data/"+url.PathEscape(bulkType), &meta); err != nil {
		return nil, fmt.Errorf("fetch bulk metadata: %w", err)
	}
	if meta.DownloadURI == "" {
		return nil, fmt.Errorf("fetch bulk metadata: descriptor has no download_uri")
	}
	return &meta, nil
}

// StreamCards downloads a bulk card array and calls fn for each element
// without holding the whole dataset in memory. A non-nil error from fn stops
// the stream and is returned.
func (c *Client) StreamCards(ctx context.Context, downloadURI string, fn func(*Card) error) error {
	resp, err := c.do(ctx, c.bulkHTTP, downloadURI)
	if err != nil {
		return fmt.Errorf("download bulk data: %w", err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read bulk data: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("read bulk data: expected array, got %v", tok)
	}

	for dec.More() {
		var card Card
		if err := dec.Decode(&card); err != nil {
			return fmt.Errorf("decode bulk card: %w", err)
		}
		if err := fn(&card); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read bulk data: %w", err)
	}
	return nil
}

// Named looks a card up by exact name.
func (c *Client) Named(ctx context.Context, name string) (*Card, error) {
	return c.named(ctx, "exact", name)
}

// NamedFuzzy looks a card up with the provider's fuzzy name matcher.
func (c *Client) NamedFuzzy(ctx context.Context, name string) (*Card, error) {
	return c.named(ctx, "fuzzy", name)
}

func (c *Client) named(ctx context.Context, mode, name string) (*Card, error) {
	q := url.Values{}
	q.Set(mode, name)
	q.Set("format", "json")

	var raw json.RawMessage
	if err := c.getJSON(ctx, c.http, c.baseURL+"/cards/named?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	return decodeCard(raw)
}

// Search runs a full-text query and returns its first-ranked card.
func (c *Client) Search(ctx context.Context, query string) (*Card, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("order", "released")
	q.Set("dir", "desc")
	q.Set("unique", "cards")

	var list cardList
	if err := c.getJSON(ctx, c.http, c.baseURL+"/cards/search?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, ErrNotFound
	}
	return decodeCard(list.Data[0])
}

func decodeCard(raw json.RawMessage) (*Card, error) {
	var card Card
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("decode card: %w", err)
	}
	card.Raw = raw
	return &card, nil
}

func (c *Client) getJSON(ctx context.Context, hc *http.Client, rawURL string, out any) error {
	resp, err := c.do(ctx, hc, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do performs a GET and converts non-2xx responses into *StatusError.
func (c *Client) do(ctx context.Context, hc *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		se := &StatusError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var ae apiError
		if json.Unmarshal(body, &ae) == nil {
			se.Code = ae.Code
			se.Details = ae.Details
		}
		return nil, se
	}
	return resp, nil
}
