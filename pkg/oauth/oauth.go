// Package oauth refreshes a Google OAuth2 refresh token into a short-lived access token,
// caching it until it is within one minute of expiry.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenEndpoint = "https://oauth2.googleapis.com/token"

// earlyRefresh is the safety margin subtracted from an access token's reported expiry before
// TokenSource decides it needs refreshing.
const earlyRefresh = time.Minute

// TokenSource exchanges a user's Google refresh token for a bearer access token, refreshing
// lazily and caching the result until it is about to expire. It caches one access token at a
// time and reuses it only for the refresh token it was issued for.
type TokenSource struct {
	clientID     string
	clientSecret string
	endpoint     string
	httpClient   *http.Client
	nowFn        func() time.Time

	mu          sync.Mutex
	accessToken string
	cachedFor   string
	expiresAt   time.Time
}

// New constructs a TokenSource using the application's OAuth client id/secret.
func New(clientID, clientSecret string) *TokenSource {
	return &TokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		endpoint:     tokenEndpoint,
		httpClient:   http.DefaultClient,
		nowFn:        time.Now,
	}
}

// SetEndpointForTest overrides the token endpoint URL; only meant for tests in other
// packages that need to exercise a TokenSource against an httptest server.
func (t *TokenSource) SetEndpointForTest(endpoint string) { t.endpoint = endpoint }

// SetHTTPClientForTest overrides the HTTP client; only meant for tests.
func (t *TokenSource) SetHTTPClientForTest(client *http.Client) { t.httpClient = client }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// AccessToken returns a valid bearer access token for refreshToken, refreshing against
// Google's token endpoint if the cached one is absent or within earlyRefresh of expiring.
func (t *TokenSource) AccessToken(ctx context.Context, refreshToken string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && t.cachedFor == refreshToken && t.nowFn().Before(t.expiresAt.Add(-earlyRefresh)) {
		return t.accessToken, nil
	}

	form := url.Values{}
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("oauth: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth: refresh token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth: refresh token request returned status %d", resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("oauth: decode refresh token response: %w", err)
	}

	t.accessToken = parsed.AccessToken
	t.cachedFor = refreshToken
	t.expiresAt = t.nowFn().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return t.accessToken, nil
}
