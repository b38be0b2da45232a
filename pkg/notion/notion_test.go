package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_QueryDatabase_FollowsCursor(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		requests++
		if requests == 1 {
			_ = json.NewEncoder(w).Encode(queryResponse{
				HasMore:    true,
				NextCursor: "cursor-2",
				Results:    []Page{{ID: "page-1"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(queryResponse{
			HasMore: false,
			Results: []Page{{ID: "page-2"}},
		})
	}))
	defer server.Close()

	client := New()
	client.httpClient = server.Client()
	client.baseURL = server.URL

	pages, err := client.QueryDatabase(context.Background(), "token-1", "db-1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "page-1", pages[0].ID)
	assert.Equal(t, "page-2", pages[1].ID)
	assert.Equal(t, 2, requests)
}
