package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/repository"
)

var (
	// ErrPermissionDenied indicates the subject lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// PermissionResolver computes and caches per-subject permission snapshots.
// Snapshots are cached with a TTL; writes that change a subject's grants
// must force-invalidate so the next read recomputes from the store.
type PermissionResolver struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	cache       port.PermissionCache
	logger      *zap.Logger
	now         func() time.Time
}

// NewPermissionResolver constructs a PermissionResolver instance.
func NewPermissionResolver(
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	cache port.PermissionCache,
	logger *zap.Logger,
) *PermissionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	resolver := &PermissionResolver{
		roles:       roles,
		permissions: permissions,
		cache:       cache,
		logger:      logger,
	}
	resolver.now = func() time.Time { return time.Now().UTC() }
	return resolver
}

// WithClock overrides the resolver clock for deterministic tests.
func (r *PermissionResolver) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// GetUserPermissions resolves the subject's permission snapshot. With
// useCache false the store is always consulted and the cache refreshed.
// Cache read failures degrade to a recompute, never to a denial.
func (r *PermissionResolver) GetUserPermissions(ctx context.Context, userID string, useCache bool) (*domain.PermissionSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	if useCache && r.cache != nil {
		snapshot, err := r.cache.Get(ctx, userID)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("permission cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return r.recompute(ctx, userID)
}

// HasPermission reports whether the subject holds resource:action within
// the given scope.
func (r *PermissionResolver) HasPermission(ctx context.Context, userID, resource, action string, scope *domain.PermissionScope) (bool, error) {
	snapshot, err := r.GetUserPermissions(ctx, userID, true)
	if err != nil {
		return false, err
	}
	return snapshot.Allows(resource, action, scope), nil
}

// RequirePermission returns ErrPermissionDenied unless the subject holds
// resource:action within the given scope.
func (r *PermissionResolver) RequirePermission(ctx context.Context, userID, resource, action string, scope *domain.PermissionScope) error {
	allowed, err := r.HasPermission(ctx, userID, resource, action, scope)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrPermissionDenied
	}
	return nil
}

// RequireAny returns ErrPermissionDenied unless the subject holds at least
// one of the permissions, given as "resource:action" pairs.
func (r *PermissionResolver) RequireAny(ctx context.Context, userID string, names []string, scope *domain.PermissionScope) error {
	snapshot, err := r.GetUserPermissions(ctx, userID, true)
	if err != nil {
		return err
	}

	for _, name := range names {
		resource, action, ok := strings.Cut(name, ":")
		if !ok {
			continue
		}
		if snapshot.Allows(resource, action, scope) {
			return nil
		}
	}

	return ErrPermissionDenied
}

// HasRole reports whether the subject currently holds the named role.
func (r *PermissionResolver) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	snapshot, err := r.GetUserPermissions(ctx, userID, true)
	if err != nil {
		return false, err
	}
	return snapshot.HasRole(roleName), nil
}

// ClearUserCache drops the subject's cached snapshot. The generation is
// untouched, so an in-flight recompute may legitimately repopulate it.
func (r *PermissionResolver) ClearUserCache(ctx context.Context, userID string) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("invalidate permission cache: %w", err)
	}
	return nil
}

// ForceInvalidateUser bumps the subject's cache generation and drops the
// snapshot. After it returns, no read can be served from state computed
// before the call.
func (r *PermissionResolver) ForceInvalidateUser(ctx context.Context, userID string) error {
	if r.cache == nil {
		return nil
	}
	if _, err := r.cache.ForceInvalidate(ctx, userID); err != nil {
		return fmt.Errorf("force invalidate permission cache: %w", err)
	}
	return nil
}

// recompute resolves grants from the store and refreshes the cache. The
// generation is read before the store queries so a concurrent force
// invalidation fences this write out.
func (r *PermissionResolver) recompute(ctx context.Context, userID string) (*domain.PermissionSnapshot, error) {
	var generation int64
	if r.cache != nil {
		observed, err := r.cache.Generation(ctx, userID)
		if err != nil {
			r.logger.Warn("permission generation read failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			generation = observed
		}
	}

	assignments, err := r.roles.ListActiveAssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}

	snapshot := &domain.PermissionSnapshot{
		UserID:     userID,
		ComputedAt: r.now(),
		Generation: generation,
	}

	if len(assignments) > 0 {
		roleIDs := make([]string, 0, len(assignments))
		for _, assignment := range assignments {
			roleIDs = append(roleIDs, assignment.RoleID)
		}

		permissionsByRole, err := r.permissions.ListByRoles(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("list role permissions: %w", err)
		}

		grants := make([]domain.RoleGrant, 0, len(assignments))
		for _, assignment := range assignments {
			role, err := r.roles.GetByID(ctx, assignment.RoleID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("load role %s: %w", assignment.RoleID, err)
			}

			grants = append(grants, domain.RoleGrant{
				Role:        *role,
				BusinessID:  assignment.BusinessID,
				Permissions: permissionsByRole[assignment.RoleID],
			})
		}
		snapshot.Grants = grants
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, userID, *snapshot); err != nil {
			r.logger.Warn("permission cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return snapshot, nil
}
