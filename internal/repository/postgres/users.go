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

// UserRepository implements port.UserRepository over PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a user repository instance.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"phone_number",
		"first_name",
		"last_name",
		"is_active",
		"created_at",
		"deleted_at",
	).
		From("randevubu.users").
		Where(squirrel.Eq{"id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		user      domain.User
		firstName sql.NullString
		lastName  sql.NullString
		deletedAt sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.PhoneNumber,
		&firstName,
		&lastName,
		&user.IsActive,
		&user.CreatedAt,
		&deletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.FirstName = nullableStringPtr(firstName)
	user.LastName = nullableStringPtr(lastName)
	user.DeletedAt = nullableTimePtr(deletedAt)

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
