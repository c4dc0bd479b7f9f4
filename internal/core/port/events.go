package port

import (
	"context"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
)

// EventPublisher publishes security events to the message bus.
type EventPublisher interface {
	PublishTokenPairIssued(ctx context.Context, event domain.TokenPairIssuedEvent) error
	PublishTokenRefreshed(ctx context.Context, event domain.TokenRefreshedEvent) error
	PublishTokensRevoked(ctx context.Context, event domain.TokensRevokedEvent) error
	PublishRoleGrantReconciled(ctx context.Context, event domain.RoleGrantReconciledEvent) error
}
