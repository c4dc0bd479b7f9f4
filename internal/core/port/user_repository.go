package port

import (
	"context"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
)

// UserRepository exposes the subject lookups this core depends on.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*domain.User, error)
}

// AuditRepository appends to the security audit log.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}
