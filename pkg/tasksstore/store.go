// Package tasksstore holds user credentials and sync job records backed by DynamoDB's
// type-data-index GSI query pattern: type selects the record kind and partition, data carries
// a sort key that range queries can filter on.
package tasksstore

import (
	"context"
	"time"
)

// UserRecord is a user's stored OAuth/Notion credentials.
type UserRecord struct {
	UserID             string
	GoogleRefreshToken string
	NotionBotID        string
	NotionAccessToken  string
}

// SyncRecord is one due (or not-yet-due) sync job for a user's Notion database / Google
// Calendar pairing.
type SyncRecord struct {
	UserID          string
	Partition       int
	LastSync        *time.Time
	NotionDatabase  string
	GoogleCalendar  string
	NotionTitleProp string
	NotionDoneProp  string
}

// Store is the collaborator the Sync Pipeline and its tests consume: list
// users, fetch a single user by id, and list the sync records due for a given partition.
type Store interface {
	// ListUsers returns every user record, unordered, possibly paginated internally.
	ListUsers(ctx context.Context) ([]UserRecord, error)

	// GetUser fetches a single user record by id.
	GetUser(ctx context.Context, userID string) (UserRecord, error)

	// ListDueSyncRecords queries for type = "sync#<partition>" records whose sort key
	// begins with "SCHEDULED".
	ListDueSyncRecords(ctx context.Context, partition int) ([]SyncRecord, error)
}
