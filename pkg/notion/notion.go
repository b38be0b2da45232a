// Package notion is a thin HTTP client for querying a Notion database's pages via a POST to
// /v1/databases/<id>/query with the Notion-Version header.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

const (
	baseURL             = "https://api.notion.com/v1"
	notionVersion       = "2022-06-28"
	notionVersionHeader = "Notion-Version"

	// requestsPerSecond mirrors Notion's documented average rate limit of roughly three
	// requests per second per integration.
	requestsPerSecond = 3
	burstSize         = 3
)

// Page is one row returned from a database query.
type Page struct {
	ID         string                 `json:"id"`
	Archived   bool                   `json:"archived"`
	URL        string                 `json:"url"`
	Properties map[string]interface{} `json:"properties"`
}

type queryResponse struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
	Results    []Page `json:"results"`
}

// Client queries Notion database pages on behalf of a user's integration.
type Client interface {
	QueryDatabase(ctx context.Context, accessToken, databaseID string) ([]Page, error)
}

// HTTPClient is the production Client.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// New constructs an HTTPClient using http.DefaultClient, rate limited to Notion's documented
// per-integration request budget.
func New() *HTTPClient {
	return &HTTPClient{
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(requestsPerSecond, burstSize),
	}
}

var _ Client = (*HTTPClient)(nil)

// QueryDatabase pages through every result of a database query, following next_cursor until
// has_more is false.
func (c *HTTPClient) QueryDatabase(ctx context.Context, accessToken, databaseID string) ([]Page, error) {
	var pages []Page
	cursor := ""

	for {
		body := map[string]string{}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("notion: encode query body: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/databases/%s/query", c.baseURL, databaseID), bytes.NewReader(encoded))
		if err != nil {
			return nil, fmt.Errorf("notion: build query request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set(notionVersionHeader, notionVersion)
		req.Header.Set("Content-Type", "application/json")

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("notion: rate limit wait: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("notion: query database %q: %w", databaseID, err)
		}

		var parsed queryResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("notion: decode query response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("notion: query database %q returned status %d", databaseID, resp.StatusCode)
		}

		pages = append(pages, parsed.Results...)
		if !parsed.HasMore || parsed.NextCursor == "" {
			break
		}
		cursor = parsed.NextCursor
	}

	return pages, nil
}
