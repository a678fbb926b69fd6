// Package silentpush implements the Silent Push search platform client.
package silentpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/MalasadaTech/masq-monitor/internal/logger"
	"github.com/MalasadaTech/masq-monitor/internal/platform"
)

const (
	// DefaultBaseURL is the production Silent Push API endpoint.
	DefaultBaseURL = "https://api.silentpush.com/api/v1"
	// DefaultEndpoint is the raw scan-data search used when a query does
	// not name its own sub-resource.
	DefaultEndpoint = "explore/scandata/search/raw"
	// EnvAPIKey names the environment variable holding the API credential.
	EnvAPIKey = "SILENTPUSH_API_KEY"

	apiKeyHeader = "x-api-key"
	mergeAPIPath = "/merge-api/"
	// dateLayout is the second-granular format Silent Push date filters accept.
	dateLayout = "2006-01-02 15:04:05"

	// resultLimit matches the maximum page size the raw search endpoint
	// serves per request.
	resultLimit = 1000
)

// searchBody is the POST payload for SPQL searches. Results are sorted
// newest first so truncated result sets keep the most recent scans.
type searchBody struct {
	Query string   `json:"query"`
	Sort  []string `json:"sort"`
}

// Config holds the client construction parameters.
type Config struct {
	// BaseURL overrides the production endpoint, mainly for tests.
	BaseURL string
	// APIKey authenticates requests. Required by the API for all calls.
	APIKey string
	// HTTPClient overrides the shared tuned client.
	HTTPClient *http.Client
	// Logger defaults to a no-op logger.
	Logger logger.Interface
}

// Client talks to the Silent Push merge API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Interface
}

var _ platform.Client = (*Client)(nil)

// New creates a Silent Push client.
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
		logger:     cfg.Logger.WithPlatform(string(platform.SilentPush)),
	}
}

// Name reports which platform this client talks to.
func (c *Client) Name() platform.Name {
	return platform.SilentPush
}

// Search executes an SPQL query against the selected merge-API endpoint,
// restricting results to the window via a scan_date filter. Responses
// arrive in several envelope shapes; Search unwraps them into a flat
// record batch and tags the batch when the envelope fixes its data type.
func (c *Client) Search(ctx context.Context, query string, window platform.Window, endpoint string) (platform.Batch, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	q := query
	if !window.Start.IsZero() {
		q = fmt.Sprintf("%s AND scan_date >= %q", q, window.Start.Format(dateLayout))
	}

	body, err := json.Marshal(searchBody{Query: q, Sort: []string{"scan_date/desc"}})
	if err != nil {
		return platform.Batch{}, platform.NewError(platform.SilentPush, "search", err)
	}

	params := url.Values{}
	params.Set("limit", fmt.Sprint(resultLimit))
	params.Set("skip", "0")
	params.Set("with_metadata", "1")
	searchURL := c.baseURL + mergeAPIPath + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
	if err != nil {
		return platform.Batch{}, platform.NewError(platform.SilentPush, "search", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	c.logger.Debug("Executing search", "endpoint", endpoint, "query", q)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return platform.Batch{}, platform.NewError(platform.SilentPush, "search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return platform.Batch{}, platform.StatusError(platform.SilentPush, "search", resp)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return platform.Batch{}, platform.NewError(platform.SilentPush, "search", fmt.Errorf("decoding response: %w", err))
	}

	batch := unwrapResponse(payload)
	c.logger.Debug("Search complete", "results", len(batch.Records), "data_type", string(batch.DataType))
	return batch, nil
}

// DetectDataType classifies one record by the fields it carries. The
// ladder is ordered so richer shapes win: WHOIS fields, then domain
// search diversity metrics, then web scan fields, then the generic
// key-value fallback.
func (c *Client) DetectDataType(rec platform.Raw) platform.DataType {
	return DetectDataType(rec)
}

// FetchScreenshot reports no screenshot; Silent Push does not host scan
// screenshots.
func (c *Client) FetchScreenshot(_ context.Context, _ string) ([]byte, error) {
	return nil, nil
}

// DetectDataType classifies a Silent Push record by shape. It is total:
// every record maps to exactly one data type.
func DetectDataType(rec platform.Raw) platform.DataType {
	if rec == nil {
		return platform.DataTypeGeneric
	}

	_, hasRegistrar := rec["registrar"]
	_, hasNameserver := rec["nameserver"]
	_, hasDomain := rec["domain"]
	_, hasCreated := rec["created"]
	if hasRegistrar || hasNameserver || (hasDomain && hasCreated) {
		return platform.DataTypeWhois
	}

	if _, ok := rec["host"]; ok {
		_, asn := rec["asn_diversity"]
		_, ipAll := rec["ip_diversity_all"]
		_, ipGroups := rec["ip_diversity_groups"]
		if asn || ipAll || ipGroups {
			return platform.DataTypeDomainSearch
		}
	}

	_, hasURL := rec["url"]
	_, hasScanDate := rec["scan_date"]
	if hasURL || hasDomain || hasScanDate {
		return platform.DataTypeWebscan
	}

	return platform.DataTypeGeneric
}

// envelopeKeys are probed in order for the record list at each nesting
// level of a response envelope.
var envelopeKeys = []string{"scandata_raw", "records", "results", "domains"}

// unwrapResponse digs the record list out of the response envelope. The
// raw scan-data endpoints nest records under response.scandata_raw;
// WHOIS searches nest one level deeper, which fixes the batch type for
// every record. A bare JSON array is accepted as-is.
func unwrapResponse(payload any) platform.Batch {
	switch node := payload.(type) {
	case []any:
		return platform.Batch{Records: toRecords(node)}
	case map[string]any:
		inner, ok := node["response"].(map[string]any)
		if !ok {
			if recs, found := probeKeys(node); found {
				return platform.Batch{Records: recs}
			}
			return platform.Batch{}
		}
		if deeper, ok := inner["response"].(map[string]any); ok {
			if list, ok := deeper["scandata_raw"].([]any); ok {
				return platform.Batch{Records: toRecords(list), DataType: platform.DataTypeWhois}
			}
		}
		if recs, found := probeKeys(inner); found {
			return platform.Batch{Records: recs}
		}
	}
	return platform.Batch{}
}

func probeKeys(node map[string]any) ([]platform.Raw, bool) {
	for _, key := range envelopeKeys {
		if list, ok := node[key].([]any); ok {
			return toRecords(list), true
		}
	}
	return nil, false
}

func toRecords(list []any) []platform.Raw {
	recs := make([]platform.Raw, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			recs = append(recs, m)
		}
	}
	return recs
}
