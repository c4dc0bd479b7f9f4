package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
)

// AuditRepository implements port.AuditRepository over PostgreSQL.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs an audit repository instance.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append persists a single audit entry. Metadata is stored as JSONB.
func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	var metadata []byte
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = encoded
	}

	stmt, args, err := r.builder.Insert("randevubu.audit_log").
		Columns("id", "action", "user_id", "metadata", "created_at").
		Values(entry.ID, entry.Action, entry.UserID, metadata, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
