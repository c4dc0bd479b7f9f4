package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
)

// PermissionRepository implements port.PermissionRepository over PostgreSQL.
type PermissionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository constructs a permission repository instance.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	return &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListByRole returns permissions mapped to a role via role_permissions.
func (r *PermissionRepository) ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select("p.id", "p.resource", "p.action").
		From("randevubu.permissions p").
		Join("randevubu.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleID}).
		OrderBy("p.resource ASC", "p.action ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by role sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	var permissions []domain.Permission
	for rows.Next() {
		var permission domain.Permission
		if err := rows.Scan(&permission.ID, &permission.Resource, &permission.Action); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return permissions, nil
}

// ListByRoles returns permissions for a set of roles, keyed by role id.
func (r *PermissionRepository) ListByRoles(ctx context.Context, roleIDs []string) (map[string][]domain.Permission, error) {
	result := make(map[string][]domain.Permission, len(roleIDs))
	if len(roleIDs) == 0 {
		return result, nil
	}

	stmt, args, err := r.builder.Select("rp.role_id", "p.id", "p.resource", "p.action").
		From("randevubu.permissions p").
		Join("randevubu.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleIDs}).
		OrderBy("p.resource ASC", "p.action ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			roleID     string
			permission domain.Permission
		)
		if err := rows.Scan(&roleID, &permission.ID, &permission.Resource, &permission.Action); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		result[roleID] = append(result[roleID], permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return result, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
