package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncfleet/syncfleet/pkg/gcal"
	"github.com/syncfleet/syncfleet/pkg/notion"
	"github.com/syncfleet/syncfleet/pkg/oauth"
	"github.com/syncfleet/syncfleet/pkg/tasksstore"
)

type fakeNotion struct {
	pages []notion.Page
}

func (f *fakeNotion) QueryDatabase(ctx context.Context, accessToken, databaseID string) ([]notion.Page, error) {
	return f.pages, nil
}

type fakeGCal struct {
	upserted []gcal.Event
}

func (f *fakeGCal) ListEvents(ctx context.Context, accessToken, calendarID string) ([]gcal.Event, error) {
	return nil, nil
}

func (f *fakeGCal) UpsertEvent(ctx context.Context, accessToken, calendarID string, event gcal.Event) error {
	f.upserted = append(f.upserted, event)
	return nil
}

func newTestTokenSource(t *testing.T) *oauth.TokenSource {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-1",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(server.Close)

	ts := oauth.New("client-id", "client-secret")
	ts.SetEndpointForTest(server.URL)
	ts.SetHTTPClientForTest(server.Client())
	return ts
}

func TestNoOpReconciler_DoesNothing(t *testing.T) {
	r := &NoOpReconciler{}
	err := r.Reconcile(context.Background(), tasksstore.SyncRecord{UserID: "u1"}, Credentials{})
	require.NoError(t, err)
}

func TestNotionCalendarReconciler_SkipsDonePages(t *testing.T) {
	pages := []notion.Page{
		{
			ID: "page-1",
			Properties: map[string]interface{}{
				"Done": map[string]interface{}{"checkbox": true},
				"Name": map[string]interface{}{"title": []interface{}{
					map[string]interface{}{"plain_text": "Finished task"},
				}},
			},
		},
		{
			ID: "page-2",
			Properties: map[string]interface{}{
				"Done": map[string]interface{}{"checkbox": false},
				"Name": map[string]interface{}{"title": []interface{}{
					map[string]interface{}{"plain_text": "Open task"},
				}},
			},
		},
	}

	fn := &fakeNotion{pages: pages}
	fg := &fakeGCal{}

	r := &NotionCalendarReconciler{
		Notion: fn,
		GCal:   fg,
		Tokens: newTestTokenSource(t),
	}

	job := tasksstore.SyncRecord{
		UserID:          "u1",
		NotionDatabase:  "db-1",
		GoogleCalendar:  "cal-1",
		NotionTitleProp: "Name",
		NotionDoneProp:  "Done",
	}

	err := r.Reconcile(context.Background(), job, Credentials{
		NotionAccessToken:  "notion-token",
		GoogleRefreshToken: "refresh-token",
	})
	require.NoError(t, err)

	require.Len(t, fg.upserted, 1, "only the non-done page should be upserted")
	assert.Equal(t, "Open task", fg.upserted[0].Summary)
}
