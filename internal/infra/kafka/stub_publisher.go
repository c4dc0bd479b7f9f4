package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishTokenPairIssued logs auth.token.issued events.
func (p *StubPublisher) PublishTokenPairIssued(_ context.Context, event domain.TokenPairIssuedEvent) error {
	payload := map[string]any{
		"user_id":   event.UserID,
		"device_id": event.DeviceID,
		"issued_at": event.IssuedAt,
		"metadata":  event.Metadata,
	}
	p.logEvent("auth.token.issued", event.UserID, event.IssuedAt, payload)
	return nil
}

// PublishTokenRefreshed logs auth.token.refreshed events.
func (p *StubPublisher) PublishTokenRefreshed(_ context.Context, event domain.TokenRefreshedEvent) error {
	payload := map[string]any{
		"user_id":             event.UserID,
		"superseded_token_id": event.SupersededTokenID,
		"refreshed_at":        event.RefreshedAt,
		"reason":              event.Reason,
	}
	p.logEvent("auth.token.refreshed", event.UserID, event.RefreshedAt, payload)
	return nil
}

// PublishTokensRevoked logs auth.token.revoked events.
func (p *StubPublisher) PublishTokensRevoked(_ context.Context, event domain.TokensRevokedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"device_id":  event.DeviceID,
		"count":      event.Count,
		"reason":     event.Reason,
		"revoked_at": event.RevokedAt,
	}
	p.logEvent("auth.token.revoked", event.UserID, event.RevokedAt, payload)
	return nil
}

// PublishRoleGrantReconciled logs rbac.grant.reconciled events.
func (p *StubPublisher) PublishRoleGrantReconciled(_ context.Context, event domain.RoleGrantReconciledEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"role_name":     event.RoleName,
		"business_id":   event.BusinessID,
		"attempts":      event.Attempts,
		"reconciled_at": event.ReconciledAt,
	}
	p.logEvent("rbac.grant.reconciled", event.UserID, event.ReconciledAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
