// Package kv defines the persistence port used by the ledger: a narrow
// key to opaque-blob store.
package kv

import "context"

// Keys used by the application.
const (
	KeyPockets              = "pockets"
	KeyNotificationSettings = "notification_settings"
	KeySentNotifications    = "sent_notifications"
)

// Store is the Persistence Adapter. Implementations bound their own calls;
// callers add no timeouts.
type Store interface {
	// Get returns the value for key. ok is false when the key is missing.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// ClearAll removes every key.
	ClearAll(ctx context.Context) error
}
