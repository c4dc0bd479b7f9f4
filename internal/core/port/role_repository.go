package port

import (
	"context"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
)

// RoleRepository handles roles and role assignments.
type RoleRepository interface {
	GetActiveByName(ctx context.Context, name string) (*domain.Role, error)
	// ListActiveAssignmentsForUser returns assignments where both the
	// assignment and the underlying role are active.
	ListActiveAssignmentsForUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error)
	GetByID(ctx context.Context, roleID string) (*domain.Role, error)
	CreateAssignment(ctx context.Context, assignment domain.RoleAssignment) error
	DeactivateAssignment(ctx context.Context, assignmentID string) error
}

// PermissionRepository resolves permissions attached to roles.
type PermissionRepository interface {
	ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error)
	ListByRoles(ctx context.Context, roleIDs []string) (map[string][]domain.Permission, error)
}
