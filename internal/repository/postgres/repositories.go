package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles the PostgreSQL-backed repositories sharing one pool.
type Repositories struct {
	Users       *UserRepository
	Tokens      *TokenRepository
	Roles       *RoleRepository
	Permissions *PermissionRepository
	Audit       *AuditRepository
}

// NewRepositories constructs all repositories on top of a shared pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:       NewUserRepository(pool),
		Tokens:      NewTokenRepository(pool),
		Roles:       NewRoleRepository(pool),
		Permissions: NewPermissionRepository(pool),
		Audit:       NewAuditRepository(pool),
	}
}
