package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/repository"
)

// RoleRepository implements port.RoleRepository over PostgreSQL.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a role repository instance.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{exec: tx, builder: r.builder}
}

// GetActiveByName retrieves an active role by its unique name.
func (r *RoleRepository) GetActiveByName(ctx context.Context, name string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name", "description", "is_active").
		From("randevubu.roles").
		Where(squirrel.Eq{"name": name}).
		Where(squirrel.Eq{"is_active": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by name sql: %w", err)
	}

	return r.scanRole(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByID retrieves a role regardless of activation state.
func (r *RoleRepository) GetByID(ctx context.Context, roleID string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name", "description", "is_active").
		From("randevubu.roles").
		Where(squirrel.Eq{"id": roleID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by id sql: %w", err)
	}

	return r.scanRole(r.exec.QueryRow(ctx, stmt, args...))
}

func (r *RoleRepository) scanRole(row pgx.Row) (*domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
	)

	if err := row.Scan(&role.ID, &role.Name, &description, &role.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	role.Description = nullableStringPtr(description)

	return &role, nil
}

// ListActiveAssignmentsForUser returns assignments where both the
// assignment and the underlying role are active.
func (r *RoleRepository) ListActiveAssignmentsForUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	stmt, args, err := r.builder.Select(
		"a.id",
		"a.user_id",
		"a.role_id",
		"a.granted_by",
		"a.granted_at",
		"a.is_active",
		"a.business_id",
	).
		From("randevubu.role_assignments a").
		Join("randevubu.roles r ON r.id = a.role_id").
		Where(squirrel.Eq{"a.user_id": userID}).
		Where(squirrel.Eq{"a.is_active": true}).
		Where(squirrel.Eq{"r.is_active": true}).
		OrderBy("a.granted_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assignments by user sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.RoleAssignment
	for rows.Next() {
		var (
			assignment domain.RoleAssignment
			businessID sql.NullString
		)
		if err := rows.Scan(
			&assignment.ID,
			&assignment.UserID,
			&assignment.RoleID,
			&assignment.GrantedBy,
			&assignment.GrantedAt,
			&assignment.IsActive,
			&businessID,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignment.BusinessID = nullableStringPtr(businessID)
		assignments = append(assignments, assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}

	return assignments, nil
}

// CreateAssignment inserts a new role assignment row.
func (r *RoleRepository) CreateAssignment(ctx context.Context, assignment domain.RoleAssignment) error {
	stmt, args, err := r.builder.Insert("randevubu.role_assignments").
		Columns("id", "user_id", "role_id", "granted_by", "granted_at", "is_active", "business_id").
		Values(
			assignment.ID,
			assignment.UserID,
			assignment.RoleID,
			assignment.GrantedBy,
			assignment.GrantedAt,
			assignment.IsActive,
			optionalString(assignment.BusinessID),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert assignment sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}

	return nil
}

// DeactivateAssignment soft-deactivates an assignment. Assignments are
// never physically deleted.
func (r *RoleRepository) DeactivateAssignment(ctx context.Context, assignmentID string) error {
	stmt, args, err := r.builder.Update("randevubu.role_assignments").
		Set("is_active", false).
		Where(squirrel.Eq{"id": assignmentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate assignment sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate assignment: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
