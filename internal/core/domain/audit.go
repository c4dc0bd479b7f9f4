package domain

import "time"

// Audit actions recorded by the token service. The log is append-only;
// entries are never mutated or deleted by this core.
const (
	AuditTokenGenerated      = "token_generated"
	AuditTokenRefreshed      = "token_refreshed"
	AuditAllTokensRevoked    = "all_tokens_revoked"
	AuditDeviceTokensRevoked = "device_tokens_revoked"
	AuditOldTokensRevoked    = "old_tokens_revoked"
)

// AuditEntry records one security-relevant action.
type AuditEntry struct {
	ID        string
	Action    string
	UserID    string
	Metadata  map[string]any
	CreatedAt time.Time
}
