// Package urlscan implements the urlscan.io search platform client.
package urlscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/MalasadaTech/masq-monitor/internal/logger"
	"github.com/MalasadaTech/masq-monitor/internal/platform"
)

const (
	// DefaultBaseURL is the production urlscan.io endpoint.
	DefaultBaseURL = "https://urlscan.io"
	// EnvAPIKey names the environment variable holding the API credential.
	EnvAPIKey = "URLSCAN_API_KEY"

	searchPath   = "/api/v1/search/"
	apiKeyHeader = "API-Key"
	// dateLayout is the day-granular format urlscan's date filter accepts.
	dateLayout = "2006-01-02"
)

// Config holds the client construction parameters.
type Config struct {
	// BaseURL overrides the production endpoint, mainly for tests.
	BaseURL string
	// APIKey authenticates requests. Empty is allowed; urlscan serves
	// unauthenticated searches at a reduced quota.
	APIKey string
	// HTTPClient overrides the shared tuned client.
	HTTPClient *http.Client
	// Logger defaults to a no-op logger.
	Logger logger.Interface
}

// Client talks to the urlscan.io API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Interface
}

// Ensure Client implements the platform contract.
var _ platform.Client = (*Client)(nil)

// New creates a urlscan client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = platform.NewHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOp()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.WithPlatform(string(platform.URLScan)),
	}
}

// Name reports which platform this client talks to.
func (c *Client) Name() platform.Name {
	return platform.URLScan
}

// Search runs a search query, restricting results to the window by
// appending urlscan's date filter. The endpoint parameter is unused;
// urlscan exposes a single search resource.
func (c *Client) Search(ctx context.Context, query string, window platform.Window, _ string) (platform.Batch, error) {
	q := query
	if !window.Start.IsZero() {
		q = fmt.Sprintf("%s AND date:>=%s", q, window.Start.Format(dateLayout))
	}

	searchURL := c.baseURL + searchPath + "?q=" + url.QueryEscape(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return platform.Batch{}, platform.NewError(platform.URLScan, "search", err)
	}
	c.setHeaders(req)

	c.logger.Debug("Executing search", "query", q)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return platform.Batch{}, platform.NewError(platform.URLScan, "search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return platform.Batch{}, platform.StatusError(platform.URLScan, "search", resp)
	}

	var payload struct {
		Results []platform.Raw `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return platform.Batch{}, platform.NewError(platform.URLScan, "search", fmt.Errorf("decoding response: %w", err))
	}

	c.logger.Debug("Search complete", "results", len(payload.Results))

	return platform.Batch{
		Records:  payload.Results,
		DataType: platform.DataTypeURLScan,
	}, nil
}

// DetectDataType classifies one record. urlscan search results all share
// the page/task shape.
func (c *Client) DetectDataType(_ platform.Raw) platform.DataType {
	return platform.DataTypeURLScan
}

// FetchScreenshot downloads the platform-hosted screenshot for a scan.
func (c *Client) FetchScreenshot(ctx context.Context, scanID string) ([]byte, error) {
	return c.fetch(ctx, "screenshot", fmt.Sprintf("%s/screenshots/%s.png", c.baseURL, scanID))
}

// FetchDOM downloads the captured DOM snapshot for a scan.
func (c *Client) FetchDOM(ctx context.Context, scanID string) ([]byte, error) {
	return c.fetch(ctx, "dom", fmt.Sprintf("%s/dom/%s/", c.baseURL, scanID))
}

func (c *Client) fetch(ctx context.Context, op, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, http.NoBody)
	if err != nil {
		return nil, platform.NewError(platform.URLScan, op, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, platform.NewError(platform.URLScan, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, platform.StatusError(platform.URLScan, op, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, platform.NewError(platform.URLScan, op, err)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}
