package models

// Account is the cached login metadata that allows offline sign-in.
type Account struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

// Limits is the server-side entry-limit configuration.
type Limits struct {
	MaxEntryBytes     int `json:"max_entry_bytes"`
	MaxSummaryHistory int `json:"max_summary_history"`
}

// DefaultLimits are used when the server cannot be asked.
func DefaultLimits() Limits {
	return Limits{MaxEntryBytes: 64 * 1024, MaxSummaryHistory: 20}
}
