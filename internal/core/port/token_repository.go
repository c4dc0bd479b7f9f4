package port

import (
	"context"
	"time"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
)

// TokenRepository manages refresh-token records.
type TokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	// GetByToken looks up a record by the hash of its opaque value.
	GetByToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, tokenID string) error
	MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	RevokeForDevice(ctx context.Context, userID, deviceID string) (int, error)
	// RevokeOldestBeyondLimit revokes the oldest active records so at most
	// maxTokens remain usable, returning how many were revoked.
	RevokeOldestBeyondLimit(ctx context.Context, userID string, maxTokens int) (int, error)
	CountActiveForUser(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
