package syncpipeline

import (
	"context"

	"github.com/syncfleet/syncfleet/pkg/reconcile"
	"github.com/syncfleet/syncfleet/pkg/tasksstore"
)

// credCache is the in-memory user-credential cache, created once per Pipeline and kept across
// ticks: it is owned by the single pipeline goroutine and never touched concurrently, so it
// needs no locking of its own.
type credCache struct {
	store   tasksstore.Store
	entries map[string]reconcile.Credentials
}

func newCredCache(store tasksstore.Store) *credCache {
	return &credCache{store: store, entries: make(map[string]reconcile.Credentials)}
}

// get returns the cached credentials for userID, fetching and inserting them on a miss.
func (c *credCache) get(ctx context.Context, userID string) (reconcile.Credentials, error) {
	if creds, ok := c.entries[userID]; ok {
		return creds, nil
	}

	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return reconcile.Credentials{}, err
	}

	creds := reconcile.Credentials{
		NotionAccessToken:  user.NotionAccessToken,
		GoogleRefreshToken: user.GoogleRefreshToken,
	}
	c.entries[userID] = creds
	return creds, nil
}
