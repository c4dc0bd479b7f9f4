package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishTokenPairIssued publishes auth.token.issued events.
func (p *EventPublisher) PublishTokenPairIssued(ctx context.Context, event domain.TokenPairIssuedEvent) error {
	payload := struct {
		UserID   string         `json:"user_id"`
		DeviceID *string        `json:"device_id,omitempty"`
		IssuedAt time.Time      `json:"issued_at"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}{
		UserID:   event.UserID,
		DeviceID: event.DeviceID,
		IssuedAt: event.IssuedAt,
		Metadata: event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.token.issued", event.UserID, event.IssuedAt, payload)
}

// PublishTokenRefreshed publishes auth.token.refreshed events.
func (p *EventPublisher) PublishTokenRefreshed(ctx context.Context, event domain.TokenRefreshedEvent) error {
	payload := struct {
		UserID            string    `json:"user_id"`
		SupersededTokenID string    `json:"superseded_token_id"`
		RefreshedAt       time.Time `json:"refreshed_at"`
		Reason            string    `json:"reason,omitempty"`
	}{
		UserID:            event.UserID,
		SupersededTokenID: event.SupersededTokenID,
		RefreshedAt:       event.RefreshedAt,
		Reason:            event.Reason,
	}

	return p.publish(ctx, event.EventID, "auth.token.refreshed", event.UserID, event.RefreshedAt, payload)
}

// PublishTokensRevoked publishes auth.token.revoked events.
func (p *EventPublisher) PublishTokensRevoked(ctx context.Context, event domain.TokensRevokedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		DeviceID  *string   `json:"device_id,omitempty"`
		Count     int       `json:"count"`
		Reason    string    `json:"reason,omitempty"`
		RevokedAt time.Time `json:"revoked_at"`
	}{
		UserID:    event.UserID,
		DeviceID:  event.DeviceID,
		Count:     event.Count,
		Reason:    event.Reason,
		RevokedAt: event.RevokedAt,
	}

	return p.publish(ctx, event.EventID, "auth.token.revoked", event.UserID, event.RevokedAt, payload)
}

// PublishRoleGrantReconciled publishes rbac.grant.reconciled events.
func (p *EventPublisher) PublishRoleGrantReconciled(ctx context.Context, event domain.RoleGrantReconciledEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		RoleName     string    `json:"role_name"`
		BusinessID   *string   `json:"business_id,omitempty"`
		Attempts     int       `json:"attempts"`
		ReconciledAt time.Time `json:"reconciled_at"`
	}{
		UserID:       event.UserID,
		RoleName:     event.RoleName,
		BusinessID:   event.BusinessID,
		Attempts:     event.Attempts,
		ReconciledAt: event.ReconciledAt,
	}

	return p.publish(ctx, event.EventID, "rbac.grant.reconciled", event.UserID, event.ReconciledAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
