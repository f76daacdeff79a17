// Package common contains shared constants, helpers and sentinel errors used
// across GophJournal components.
package common

// AuthorizationHeaderName carries the bearer access token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// HealthServiceName is the gRPC health service registered by the backend.
const HealthServiceName = "gophjournal"

// DateLayout is the canonical journal date format (one entry per date).
const DateLayout = "2006-01-02"

// Fixed local store keys. Per-user keys are built with UserKey.
const (
	LocalEntriesKey   = "local_entries"
	SyncQueueKey      = "sync_queue"
	AccountKey        = "account"
	LastUserKey       = "last_user"
	BundleCachePrefix = "bundle_cache"
	DeviceKeyPrefix   = "device_key"
	SummaryPrefix     = "summary_history"
)

// UserKey scopes a local store key to a user, e.g. "bundle_cache:42".
func UserKey(prefix, userID string) string {
	return prefix + ":" + userID
}
