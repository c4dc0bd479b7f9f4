package domain

import "time"

// TokenPair bundles the two signed strings returned to a client.
// The access token is stateless; the refresh token embeds the opaque
// value persisted in its RefreshToken record.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RefreshToken is the persisted record backing one client session.
// TokenHash holds the SHA-256 hash of the opaque random value embedded in
// the refresh JWT. The raw value exists only inside the signed token; a
// leaked database row cannot be replayed as a refresh token.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	IsRevoked  bool
	ExpiresAt  time.Time
	DeviceID   *string
	UserAgent  *string
	IPAddress  *string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// IsExpired reports whether the record has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsUsable reports whether the record can still back a refresh exchange.
func (t RefreshToken) IsUsable(at time.Time) bool {
	return !t.IsRevoked && !t.IsExpired(at)
}

// BelongsTo reports whether the record is owned by the given subject.
func (t RefreshToken) BelongsTo(userID string) bool {
	return userID != "" && t.UserID == userID
}
