package domain

import "time"

// TokenPairIssuedEvent signals a fresh session was created for a subject.
type TokenPairIssuedEvent struct {
	EventID  string
	UserID   string
	DeviceID *string
	IssuedAt time.Time
	Metadata map[string]any
}

// TokenRefreshedEvent signals a refresh-token rotation.
type TokenRefreshedEvent struct {
	EventID           string
	UserID            string
	SupersededTokenID string
	RefreshedAt       time.Time
	Reason            string
}

// TokensRevokedEvent signals bulk or targeted session revocation.
type TokensRevokedEvent struct {
	EventID   string
	UserID    string
	DeviceID  *string
	Count     int
	Reason    string
	RevokedAt time.Time
}

// RoleGrantReconciledEvent signals a privilege change was verified visible
// and new credentials were minted for the subject.
type RoleGrantReconciledEvent struct {
	EventID      string
	UserID       string
	RoleName     string
	BusinessID   *string
	Attempts     int
	ReconciledAt time.Time
}
