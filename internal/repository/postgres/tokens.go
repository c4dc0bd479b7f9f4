package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL tables.
type TokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new token repository.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{exec: tx, builder: r.builder}
}

// Create inserts a new refresh-token record.
func (r *TokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("randevubu.refresh_tokens").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"is_revoked",
			"expires_at",
			"device_id",
			"user_agent",
			"ip_address",
			"created_at",
			"last_used_at",
		).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.IsRevoked,
			token.ExpiresAt,
			optionalString(token.DeviceID),
			optionalString(token.UserAgent),
			optionalString(token.IPAddress),
			token.CreatedAt,
			token.LastUsedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByToken retrieves a refresh-token record by the hash of its opaque
// value. Raw opaque values are never stored, so they cannot be queried.
func (r *TokenRepository) GetByToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"token_hash",
		"is_revoked",
		"expires_at",
		"device_id",
		"user_agent",
		"ip_address",
		"created_at",
		"last_used_at",
	).
		From("randevubu.refresh_tokens").
		Where(squirrel.Eq{"token_hash": tokenHash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		token      domain.RefreshToken
		deviceID   sql.NullString
		userAgent  sql.NullString
		ipAddress  sql.NullString
		lastUsedAt sql.NullTime
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.IsRevoked,
		&token.ExpiresAt,
		&deviceID,
		&userAgent,
		&ipAddress,
		&token.CreatedAt,
		&lastUsedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	token.DeviceID = nullableStringPtr(deviceID)
	token.UserAgent = nullableStringPtr(userAgent)
	token.IPAddress = nullableStringPtr(ipAddress)
	token.LastUsedAt = nullableTimePtr(lastUsedAt)

	return &token, nil
}

// Revoke marks a single refresh-token record as revoked.
func (r *TokenRepository) Revoke(ctx context.Context, tokenID string) error {
	stmt, args, err := r.builder.Update("randevubu.refresh_tokens").
		Set("is_revoked", true).
		Where(squirrel.Eq{"id": tokenID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// MarkUsed records the moment a refresh token was exchanged.
func (r *TokenRepository) MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error {
	stmt, args, err := r.builder.Update("randevubu.refresh_tokens").
		Set("last_used_at", usedAt.UTC()).
		Where(squirrel.Eq{"id": tokenID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark refresh token used sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark refresh token used: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RevokeAllForUser revokes every active refresh token for a user. Calling
// it when nothing is active is not an error.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Update("randevubu.refresh_tokens").
		Set("is_revoked", true).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"is_revoked": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// RevokeForDevice revokes active refresh tokens bound to a device.
func (r *TokenRepository) RevokeForDevice(ctx context.Context, userID, deviceID string) (int, error) {
	stmt, args, err := r.builder.Update("randevubu.refresh_tokens").
		Set("is_revoked", true).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"device_id": deviceID}).
		Where(squirrel.Eq{"is_revoked": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke device refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke device refresh tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// RevokeOldestBeyondLimit revokes the oldest active records so that at
// most maxTokens remain usable for the subject.
func (r *TokenRepository) RevokeOldestBeyondLimit(ctx context.Context, userID string, maxTokens int) (int, error) {
	if maxTokens < 0 {
		maxTokens = 0
	}

	stmt := `
		WITH ranked AS (
			SELECT id,
			       row_number() OVER (ORDER BY created_at DESC) AS rn
			  FROM randevubu.refresh_tokens
			 WHERE user_id = $1
			   AND is_revoked = false
			   AND expires_at > now()
		),
		updated AS (
			UPDATE randevubu.refresh_tokens t
			   SET is_revoked = true
			  FROM ranked
			 WHERE t.id = ranked.id
			   AND ranked.rn > $2
			 RETURNING 1
		)
		SELECT count(*) FROM updated;
	`

	var count int
	if err := r.exec.QueryRow(ctx, stmt, userID, maxTokens).Scan(&count); err != nil {
		return 0, fmt.Errorf("revoke oldest refresh tokens: %w", err)
	}

	return count, nil
}

// CountActiveForUser counts usable records owned by the subject.
func (r *TokenRepository) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Select("count(*)").
		From("randevubu.refresh_tokens").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"is_revoked": false}).
		Where(squirrel.Expr("expires_at > now()")).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count refresh tokens sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count refresh tokens: %w", err)
	}

	return count, nil
}

// DeleteExpired removes records that expired before the given moment.
// Such records are already unusable, so this is safe to run concurrently
// with every other operation.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("randevubu.refresh_tokens").
		Where(squirrel.Lt{"expires_at": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
