package port

import (
	"context"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
)

// PermissionCache stores computed permission snapshots per subject.
//
// Each subject has a generation counter alongside its snapshot. Get must
// reject (treat as a miss) any snapshot whose recorded generation is older
// than the current one, so a ForceInvalidate cannot be undone by a slow
// concurrent writer that observed the pre-invalidation store state.
type PermissionCache interface {
	Get(ctx context.Context, userID string) (*domain.PermissionSnapshot, error)
	// Set stores the snapshot under the generation it carries. Stale
	// snapshots may be stored; Get filters them out.
	Set(ctx context.Context, userID string, snapshot domain.PermissionSnapshot) error
	// Generation returns the subject's current invalidation generation.
	Generation(ctx context.Context, userID string) (int64, error)
	// Invalidate drops the cached snapshot without bumping the generation.
	Invalidate(ctx context.Context, userID string) error
	// ForceInvalidate bumps the generation and drops the snapshot,
	// returning the new generation.
	ForceInvalidate(ctx context.Context, userID string) (int64, error)
}
