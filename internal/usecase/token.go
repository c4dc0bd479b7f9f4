package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/config"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/security"
	"github.com/randevubu/randevubu.server-sub004/internal/repository"
)

const opaqueTokenBytes = 32

var (
	// ErrInvalidAccessToken indicates a malformed or forged access token.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates a well-formed access token whose
	// validity window has elapsed.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrRefreshUnauthorized covers every refresh rejection: bad
	// signature, unknown record, revoked, expired, or owner mismatch.
	// Callers cannot distinguish the cases.
	ErrRefreshUnauthorized = errors.New("refresh token unauthorized")
	// ErrUserNotEligible indicates the subject cannot hold a session.
	ErrUserNotEligible = errors.New("user cannot authenticate")
)

// TokenService issues, verifies, rotates, and revokes session token pairs.
type TokenService struct {
	cfg    *config.AppConfig
	signer *security.SessionSigner
	tokens port.TokenRepository
	users  port.UserRepository
	audit  port.AuditRepository
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(
	cfg *config.AppConfig,
	signer *security.SessionSigner,
	tokens port.TokenRepository,
	users port.UserRepository,
	audit port.AuditRepository,
	events port.EventPublisher,
	logger *zap.Logger,
) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &TokenService{
		cfg:    cfg,
		signer: signer,
		tokens: tokens,
		users:  users,
		audit:  audit,
		events: events,
		logger: logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// IssueTokenPair mints a fresh access/refresh pair for the subject, persists
// the refresh record, and trims the subject's sessions to the configured
// device limit.
func (s *TokenService) IssueTokenPair(ctx context.Context, userID string, device domain.DeviceInfo) (*domain.TokenPair, error) {
	user, err := s.eligibleUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	pair, recordID, err := s.mintPair(ctx, user, device)
	if err != nil {
		return nil, err
	}

	if trimmed, trimErr := s.enforceSessionLimit(ctx, user.ID); trimErr != nil {
		s.logger.Warn("session limit enforcement failed", zap.String("user_id", user.ID), zap.Error(trimErr))
	} else if trimmed > 0 {
		s.logger.Info("trimmed oldest sessions", zap.String("user_id", user.ID), zap.Int("revoked", trimmed))
	}

	s.writeAudit(ctx, domain.AuditTokenGenerated, user.ID, map[string]any{
		"token_id":  recordID,
		"device_id": optionalMeta(device.DeviceID),
	})

	if s.events != nil {
		event := domain.TokenPairIssuedEvent{
			EventID:  uuid.NewString(),
			UserID:   user.ID,
			DeviceID: device.DeviceID,
			IssuedAt: s.now(),
		}
		if pubErr := s.events.PublishTokenPairIssued(ctx, event); pubErr != nil {
			s.logger.Warn("publish token pair issued failed", zap.String("user_id", user.ID), zap.Error(pubErr))
		}
	}

	return pair, nil
}

// VerifyAccessToken validates an access token offline and returns its claims.
func (s *TokenService) VerifyAccessToken(_ context.Context, token string) (*security.SessionClaims, error) {
	claims, err := s.signer.ParseAccessToken(token)
	if err != nil {
		if errors.Is(err, security.ErrExpiredToken) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// RefreshAccessToken rotates a session: the presented refresh token is
// verified against its persisted record, a new pair is minted and persisted,
// and only then is the old record retired. Every rejection surfaces as
// ErrRefreshUnauthorized.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string, device domain.DeviceInfo) (*domain.TokenPair, error) {
	claims, err := s.signer.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrRefreshUnauthorized
	}

	record, err := s.tokens.GetByToken(ctx, security.HashToken(claims.OpaqueValue))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRefreshUnauthorized
		}
		return nil, fmt.Errorf("load refresh token record: %w", err)
	}

	now := s.now()
	if !record.IsUsable(now) || !record.BelongsTo(claims.UserID) {
		return nil, ErrRefreshUnauthorized
	}

	user, err := s.eligibleUser(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotEligible) || errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRefreshUnauthorized
		}
		return nil, err
	}

	pair, newRecordID, err := s.mintPair(ctx, user, device)
	if err != nil {
		return nil, err
	}

	// The new record exists before the old one is retired, so a crash
	// between the two steps leaves the subject with a session.
	if err := s.tokens.MarkUsed(ctx, record.ID, now); err != nil {
		s.logger.Warn("mark refresh token used failed", zap.String("token_id", record.ID), zap.Error(err))
	}
	if err := s.tokens.Revoke(ctx, record.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("revoke superseded refresh token: %w", err)
	}

	if trimmed, trimErr := s.enforceSessionLimit(ctx, user.ID); trimErr != nil {
		s.logger.Warn("session limit enforcement failed", zap.String("user_id", user.ID), zap.Error(trimErr))
	} else if trimmed > 0 {
		s.logger.Info("trimmed oldest sessions", zap.String("user_id", user.ID), zap.Int("revoked", trimmed))
	}

	s.auditRefreshed(ctx, user.ID, record.ID, newRecordID, "rotation")

	return pair, nil
}

// ReissueTokenPair mints a replacement pair after a privilege change. All of
// the subject's existing refresh records are revoked first so stale grants
// cannot be refreshed back into circulation.
func (s *TokenService) ReissueTokenPair(ctx context.Context, userID, reason string, device domain.DeviceInfo) (*domain.TokenPair, error) {
	user, err := s.eligibleUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	revoked, err := s.tokens.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions before reissue: %w", err)
	}
	if revoked > 0 {
		s.logger.Info("revoked sessions for reissue", zap.String("user_id", user.ID), zap.Int("revoked", revoked))
	}

	pair, recordID, err := s.mintPair(ctx, user, device)
	if err != nil {
		return nil, err
	}

	s.auditRefreshed(ctx, user.ID, "", recordID, reason)

	return pair, nil
}

// RevokeRefreshToken retires the record behind a presented refresh token.
// Unknown or already revoked tokens succeed silently so logout is idempotent.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	claims, err := s.signer.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil
	}

	record, err := s.tokens.GetByToken(ctx, security.HashToken(claims.OpaqueValue))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load refresh token record: %w", err)
	}

	if record.IsRevoked {
		return nil
	}

	if err := s.tokens.Revoke(ctx, record.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// RevokeAllUserTokens revokes every active session of the subject.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID, reason string) (int, error) {
	revoked, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all tokens: %w", err)
	}

	s.writeAudit(ctx, domain.AuditAllTokensRevoked, userID, map[string]any{
		"count":  revoked,
		"reason": reason,
	})

	s.publishRevoked(ctx, userID, nil, revoked, reason)

	return revoked, nil
}

// RevokeDeviceTokens revokes the subject's sessions bound to one device.
func (s *TokenService) RevokeDeviceTokens(ctx context.Context, userID, deviceID, reason string) (int, error) {
	revoked, err := s.tokens.RevokeForDevice(ctx, userID, deviceID)
	if err != nil {
		return 0, fmt.Errorf("revoke device tokens: %w", err)
	}

	s.writeAudit(ctx, domain.AuditDeviceTokensRevoked, userID, map[string]any{
		"device_id": deviceID,
		"count":     revoked,
		"reason":    reason,
	})

	s.publishRevoked(ctx, userID, &deviceID, revoked, reason)

	return revoked, nil
}

// LimitUserTokens trims the subject's active sessions to maxTokens, oldest
// first. A non-positive maxTokens falls back to the configured limit.
func (s *TokenService) LimitUserTokens(ctx context.Context, userID string, maxTokens int) (int, error) {
	if maxTokens <= 0 {
		maxTokens = s.cfg.Session.MaxTokensPerUser
	}
	return s.trimSessions(ctx, userID, maxTokens)
}

// ActiveSessionCount reports the subject's usable refresh records.
func (s *TokenService) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	count, err := s.tokens.CountActiveForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count active tokens: %w", err)
	}
	return count, nil
}

// CleanupExpiredTokens deletes refresh records past their expiry.
func (s *TokenService) CleanupExpiredTokens(ctx context.Context) (int, error) {
	deleted, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("deleted expired refresh tokens", zap.Int("deleted", deleted))
	}
	return deleted, nil
}

// GenerateVerificationCode produces a numeric code and its salted hash for
// out-of-band channel verification.
func (s *TokenService) GenerateVerificationCode(length int) (code string, hash string, err error) {
	code, err = security.GenerateNumericCode(length)
	if err != nil {
		return "", "", err
	}
	hash, err = security.HashCode(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}

// VerifyVerificationCode checks a code against its stored hash.
func (s *TokenService) VerifyVerificationCode(code, hash string) (bool, error) {
	return security.VerifyCode(code, hash)
}

func (s *TokenService) eligibleUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.CanAuthenticate() {
		return nil, ErrUserNotEligible
	}
	return user, nil
}

// mintPair signs both token kinds and persists the refresh record. Only a
// hash of the opaque value is stored; the raw value exists solely inside
// the signed refresh JWT.
func (s *TokenService) mintPair(ctx context.Context, user *domain.User, device domain.DeviceInfo) (*domain.TokenPair, string, error) {
	opaque, err := security.GenerateSecureToken(opaqueTokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("generate opaque value: %w", err)
	}

	accessToken, err := s.signer.SignAccessToken(user.ID, user.PhoneNumber)
	if err != nil {
		return nil, "", fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := s.signer.SignRefreshToken(user.ID, user.PhoneNumber, opaque)
	if err != nil {
		return nil, "", fmt.Errorf("sign refresh token: %w", err)
	}

	now := s.now()
	record := domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(opaque),
		ExpiresAt: now.Add(s.signer.RefreshTTL()),
		DeviceID:  device.DeviceID,
		UserAgent: device.UserAgent,
		IPAddress: device.IPAddress,
		CreatedAt: now,
	}

	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, "", fmt.Errorf("persist refresh token record: %w", err)
	}

	return &domain.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, record.ID, nil
}

func (s *TokenService) enforceSessionLimit(ctx context.Context, userID string) (int, error) {
	return s.trimSessions(ctx, userID, s.cfg.Session.MaxTokensPerUser)
}

func (s *TokenService) trimSessions(ctx context.Context, userID string, maxTokens int) (int, error) {
	if maxTokens <= 0 {
		return 0, nil
	}

	trimmed, err := s.tokens.RevokeOldestBeyondLimit(ctx, userID, maxTokens)
	if err != nil {
		return 0, fmt.Errorf("revoke oldest tokens: %w", err)
	}

	if trimmed > 0 {
		s.writeAudit(ctx, domain.AuditOldTokensRevoked, userID, map[string]any{
			"count": trimmed,
			"limit": maxTokens,
		})
	}

	return trimmed, nil
}

func (s *TokenService) auditRefreshed(ctx context.Context, userID, supersededID, newRecordID, reason string) {
	metadata := map[string]any{
		"token_id": newRecordID,
		"reason":   reason,
	}
	if supersededID != "" {
		metadata["superseded_token_id"] = supersededID
	}

	s.writeAudit(ctx, domain.AuditTokenRefreshed, userID, metadata)

	if s.events != nil {
		event := domain.TokenRefreshedEvent{
			EventID:           uuid.NewString(),
			UserID:            userID,
			SupersededTokenID: supersededID,
			RefreshedAt:       s.now(),
			Reason:            reason,
		}
		if err := s.events.PublishTokenRefreshed(ctx, event); err != nil {
			s.logger.Warn("publish token refreshed failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (s *TokenService) publishRevoked(ctx context.Context, userID string, deviceID *string, count int, reason string) {
	if s.events == nil {
		return
	}

	event := domain.TokensRevokedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		DeviceID:  deviceID,
		Count:     count,
		Reason:    reason,
		RevokedAt: s.now(),
	}
	if err := s.events.PublishTokensRevoked(ctx, event); err != nil {
		s.logger.Warn("publish tokens revoked failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// writeAudit appends a security audit entry. Audit failures are logged but
// never abort the triggering operation.
func (s *TokenService) writeAudit(ctx context.Context, action, userID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}

	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("audit append failed", zap.String("action", action), zap.String("user_id", userID), zap.Error(err))
	}
}

func optionalMeta(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
