// Package gcal is a thin HTTP client for listing and upserting Google Calendar events.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

const baseURL = "https://www.googleapis.com/calendar/v3"

// requestsPerSecond keeps calls well under Google Calendar's per-user quota, which is
// enforced in a 100-seconds-per-user-per-method window rather than a flat per-second cap.
const requestsPerSecond = 5
const burstSize = 5

// Event is a single calendar event, narrowed to the fields syncfleet's reconciliation logic
// consumes.
type Event struct {
	ID      string `json:"id,omitempty"`
	Summary string `json:"summary"`
	Status  string `json:"status,omitempty"`
}

type listResponse struct {
	Items         []Event `json:"items"`
	NextPageToken string  `json:"nextPageToken"`
}

// Client lists and upserts events on a user's calendar.
type Client interface {
	ListEvents(ctx context.Context, accessToken, calendarID string) ([]Event, error)
	UpsertEvent(ctx context.Context, accessToken, calendarID string, event Event) error
}

// HTTPClient is the production Client.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// New constructs an HTTPClient using http.DefaultClient, rate limited to a conservative
// per-user request budget.
func New() *HTTPClient {
	return &HTTPClient{
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(requestsPerSecond, burstSize),
	}
}

var _ Client = (*HTTPClient)(nil)

// ListEvents pages through every event on calendarID, following nextPageToken.
func (c *HTTPClient) ListEvents(ctx context.Context, accessToken, calendarID string) ([]Event, error) {
	var events []Event
	pageToken := ""

	for {
		url := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, calendarID)
		if pageToken != "" {
			url += "?pageToken=" + pageToken
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("gcal: build list request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("gcal: rate limit wait: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gcal: list events for %q: %w", calendarID, err)
		}

		var parsed listResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("gcal: decode list response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("gcal: list events for %q returned status %d", calendarID, resp.StatusCode)
		}

		events = append(events, parsed.Items...)
		if parsed.NextPageToken == "" {
			break
		}
		pageToken = parsed.NextPageToken
	}

	return events, nil
}

// UpsertEvent creates event if ID is empty, otherwise updates the existing event by ID.
func (c *HTTPClient) UpsertEvent(ctx context.Context, accessToken, calendarID string, event Event) error {
	method := http.MethodPost
	url := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, calendarID)
	if event.ID != "" {
		method = http.MethodPut
		url = fmt.Sprintf("%s/%s", url, event.ID)
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("gcal: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("gcal: build upsert request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gcal: rate limit wait: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcal: upsert event on %q: %w", calendarID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("gcal: upsert event on %q returned status %d", calendarID, resp.StatusCode)
	}
	return nil
}
