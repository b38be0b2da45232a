// Package reconcile hosts the business logic that decides what changed between a Notion
// database and a Google Calendar for one due sync job. The core only ever calls
// Reconciler.Reconcile once per due job it owns.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/syncfleet/syncfleet/pkg/gcal"
	"github.com/syncfleet/syncfleet/pkg/notion"
	"github.com/syncfleet/syncfleet/pkg/oauth"
	"github.com/syncfleet/syncfleet/pkg/tasksstore"
)

// Credentials bundles a user's access credentials for the duration of one reconciliation
// call.
type Credentials struct {
	NotionAccessToken  string
	GoogleRefreshToken string
}

// Reconciler decides what changed between a due job's Notion database and Google Calendar
// and applies the difference. The core invokes Reconcile exactly once per due job it owns;
// calls within a tick run one at a time unless the pipeline's reconciliation concurrency is
// set above 1.
type Reconciler interface {
	Reconcile(ctx context.Context, job tasksstore.SyncRecord, creds Credentials) error
}

// NoOpReconciler performs no work; it exists so cmd/syncfleet can run with the coordination
// and scheduling machinery exercised end to end without live Notion/Google credentials.
type NoOpReconciler struct {
	Logger *slog.Logger
}

var _ Reconciler = (*NoOpReconciler)(nil)

func (n *NoOpReconciler) Reconcile(ctx context.Context, job tasksstore.SyncRecord, creds Credentials) error {
	if n.Logger != nil {
		n.Logger.InfoContext(ctx, "sync job reconciliation skipped (no-op reconciler)",
			"user_id", job.UserID, "notion_database", job.NotionDatabase)
	}
	return nil
}

// NotionCalendarReconciler wires the Notion, Google Calendar, and OAuth adapters together to
// mirror a Notion database's rows onto a Google Calendar.
type NotionCalendarReconciler struct {
	Notion notion.Client
	GCal   gcal.Client
	Tokens *oauth.TokenSource
	Logger *slog.Logger
}

var _ Reconciler = (*NotionCalendarReconciler)(nil)

// Reconcile fetches the due job's Notion pages, refreshes the user's Google access token, and
// calls UpsertEvent once per page whose "done" checkbox is not set. The events carry no ID,
// so each call creates a new event rather than updating an existing one.
func (r *NotionCalendarReconciler) Reconcile(ctx context.Context, job tasksstore.SyncRecord, creds Credentials) error {
	pages, err := r.Notion.QueryDatabase(ctx, creds.NotionAccessToken, job.NotionDatabase)
	if err != nil {
		return err
	}

	accessToken, err := r.Tokens.AccessToken(ctx, creds.GoogleRefreshToken)
	if err != nil {
		return err
	}

	for _, page := range pages {
		if isDone(page.Properties, job.NotionDoneProp) {
			continue
		}
		event := gcal.Event{Summary: pageTitle(page.Properties, job.NotionTitleProp)}
		if err := r.GCal.UpsertEvent(ctx, accessToken, job.GoogleCalendar, event); err != nil {
			return err
		}
	}

	if r.Logger != nil {
		r.Logger.InfoContext(ctx, "sync job reconciled", "user_id", job.UserID, "pages", len(pages))
	}
	return nil
}

func isDone(properties map[string]interface{}, doneProp string) bool {
	prop, ok := properties[doneProp].(map[string]interface{})
	if !ok {
		return false
	}
	checked, _ := prop["checkbox"].(bool)
	return checked
}

func pageTitle(properties map[string]interface{}, titleProp string) string {
	prop, ok := properties[titleProp].(map[string]interface{})
	if !ok {
		return ""
	}
	titleItems, ok := prop["title"].([]interface{})
	if !ok || len(titleItems) == 0 {
		return ""
	}
	first, ok := titleItems[0].(map[string]interface{})
	if !ok {
		return ""
	}
	text, _ := first["plain_text"].(string)
	return text
}
