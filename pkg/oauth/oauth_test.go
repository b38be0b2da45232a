package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSource_AccessToken_CachesUntilNearExpiry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "token", ExpiresIn: 3600})
	}))
	defer server.Close()

	ts := New("client-id", "client-secret")
	ts.httpClient = server.Client()
	ts.endpoint = server.URL
	clock := time.Now()
	ts.nowFn = func() time.Time { return clock }

	tok, err := ts.AccessToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "token", tok)
	assert.Equal(t, 1, calls)

	tok, err = ts.AccessToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "token", tok)
	assert.Equal(t, 1, calls, "cached token must not trigger a second request")

	clock = clock.Add(time.Hour)
	_, err = ts.AccessToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "near-expiry token must be refreshed")
}
