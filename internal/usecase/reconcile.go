package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/config"
)

// ErrConsistency indicates a privilege mutation committed but could not be
// verified visible within the retry budget. The operation must be reported
// as failed; the caller's credentials were not reissued.
var ErrConsistency = errors.New("privilege change committed but not observable")

// RoleGrantInput describes one privilege-changing operation to reconcile.
// Mutate performs the assignment write; it must be atomic against the store
// of record.
type RoleGrantInput struct {
	UserID       string
	ExpectedRole string
	BusinessID   *string
	Device       domain.DeviceInfo
	Mutate       func(ctx context.Context) error
}

// ReconcileService runs privilege mutations through the mutate, invalidate,
// observe, verify, reissue protocol so the caller's session reflects the
// new role set in the same response.
type ReconcileService struct {
	cfg      *config.AppConfig
	resolver *PermissionResolver
	tokens   *TokenService
	events   port.EventPublisher
	logger   *zap.Logger
}

// NewReconcileService constructs a ReconcileService instance.
func NewReconcileService(
	cfg *config.AppConfig,
	resolver *PermissionResolver,
	tokens *TokenService,
	events port.EventPublisher,
	logger *zap.Logger,
) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReconcileService{
		cfg:      cfg,
		resolver: resolver,
		tokens:   tokens,
		events:   events,
		logger:   logger,
	}
}

// Reconcile executes the mutation and verifies the expected role is
// observable before reissuing credentials. It returns the new token pair,
// or nil when the mutation did not change the subject's effective roles.
// Verification is retried within the configured budget; exhausting it fails
// the whole operation with ErrConsistency and no token pair.
func (s *ReconcileService) Reconcile(ctx context.Context, input RoleGrantInput) (*domain.TokenPair, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(input.ExpectedRole) == "" {
		return nil, fmt.Errorf("expected role is required")
	}
	if input.Mutate == nil {
		return nil, fmt.Errorf("mutation is required")
	}

	before, err := s.resolver.GetUserPermissions(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("observe pre-mutation permissions: %w", err)
	}
	alreadyHeld := s.roleObserved(before, input.ExpectedRole, input.BusinessID)

	if err := input.Mutate(ctx); err != nil {
		return nil, fmt.Errorf("privilege mutation: %w", err)
	}

	if err := s.resolver.ForceInvalidateUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("invalidate after mutation: %w", err)
	}

	attempts, err := s.verifyObservable(ctx, userID, input.ExpectedRole, input.BusinessID)
	if err != nil {
		return nil, err
	}

	// A second invalidation immediately before reissue closes the window
	// where a concurrent reader repopulated the cache with pre-mutation
	// state between verification and credential issuance.
	if err := s.resolver.ForceInvalidateUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("invalidate before reissue: %w", err)
	}

	if alreadyHeld {
		s.logger.Info("role grant reconciled without reissue",
			zap.String("user_id", userID),
			zap.String("role", input.ExpectedRole),
			zap.Int("attempts", attempts))
		return nil, nil
	}

	pair, err := s.tokens.ReissueTokenPair(ctx, userID, "privilege_change", input.Device)
	if err != nil {
		return nil, fmt.Errorf("reissue credentials: %w", err)
	}

	s.logger.Info("role grant reconciled",
		zap.String("user_id", userID),
		zap.String("role", input.ExpectedRole),
		zap.Int("attempts", attempts))

	if s.events != nil {
		event := domain.RoleGrantReconciledEvent{
			EventID:      uuid.NewString(),
			UserID:       userID,
			RoleName:     input.ExpectedRole,
			BusinessID:   input.BusinessID,
			Attempts:     attempts,
			ReconciledAt: time.Now().UTC(),
		}
		if pubErr := s.events.PublishRoleGrantReconciled(ctx, event); pubErr != nil {
			s.logger.Warn("publish role grant reconciled failed", zap.String("user_id", userID), zap.Error(pubErr))
		}
	}

	return pair, nil
}

// verifyObservable re-reads permissions without the cache until the expected
// role shows up or the attempt budget runs out. Each miss force-invalidates
// and backs off; the backoff honors context cancellation.
func (s *ReconcileService) verifyObservable(ctx context.Context, userID, roleName string, businessID *string) (int, error) {
	maxAttempts := s.cfg.Reconcile.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := s.cfg.Reconcile.RetryBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		snapshot, err := s.resolver.GetUserPermissions(ctx, userID, false)
		if err != nil {
			return attempt, fmt.Errorf("observe post-mutation permissions: %w", err)
		}

		if s.roleObserved(snapshot, roleName, businessID) {
			return attempt, nil
		}

		s.logger.Warn("granted role not yet observable",
			zap.String("user_id", userID),
			zap.String("role", roleName),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts))

		if attempt == maxAttempts {
			break
		}

		if err := s.resolver.ForceInvalidateUser(ctx, userID); err != nil {
			return attempt, fmt.Errorf("invalidate between attempts: %w", err)
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, fmt.Errorf("%w: role %s for user %s after %d attempts", ErrConsistency, roleName, userID, maxAttempts)
}

// roleObserved reports whether the snapshot carries the role in the grant
// scope being reconciled.
func (s *ReconcileService) roleObserved(snapshot *domain.PermissionSnapshot, roleName string, businessID *string) bool {
	for _, grant := range snapshot.Grants {
		if !strings.EqualFold(grant.Role.Name, roleName) {
			continue
		}
		if businessID == nil {
			return true
		}
		if grant.BusinessID != nil && *grant.BusinessID == *businessID {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
