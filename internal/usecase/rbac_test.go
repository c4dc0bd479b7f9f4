package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func newRBACFixture() (*PermissionResolver, *stubRoleRepository, *stubPermissionCache) {
	customerRole := domain.Role{ID: "r-customer", Name: domain.RoleCustomer, IsActive: true}
	ownerRole := domain.Role{ID: "r-owner", Name: domain.RoleOwner, IsActive: true}

	roles := newStubRoleRepository(customerRole, ownerRole)
	perms := &stubPermissionRepository{byRole: map[string][]domain.Permission{
		"r-customer": {
			{ID: "p1", Resource: "appointment", Action: "create"},
		},
		"r-owner": {
			{ID: "p2", Resource: "business", Action: "manage"},
			{ID: "p3", Resource: "staff", Action: "invite"},
		},
	}}
	cache := newStubPermissionCache()

	resolver := NewPermissionResolver(roles, perms, cache, nil)
	return resolver, roles, cache
}

func TestGetUserPermissionsComputesUnion(t *testing.T) {
	resolver, roles, _ := newRBACFixture()

	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "r-customer", IsActive: true,
	})
	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a2", UserID: "u1", RoleID: "r-owner", IsActive: true, BusinessID: strPtr("b1"),
	})

	snapshot, err := resolver.GetUserPermissions(context.Background(), "u1", false)
	if err != nil {
		t.Fatalf("get permissions: %v", err)
	}

	if len(snapshot.Grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(snapshot.Grants))
	}
	if got := len(snapshot.Permissions()); got != 3 {
		t.Fatalf("expected union of 3 permissions, got %d", got)
	}
	if !snapshot.HasRole(domain.RoleOwner) {
		t.Fatal("expected OWNER role in snapshot")
	}
}

func TestGetUserPermissionsUsesCacheOnSecondRead(t *testing.T) {
	resolver, roles, cache := newRBACFixture()

	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "r-customer", IsActive: true,
	})

	if _, err := resolver.GetUserPermissions(context.Background(), "u1", true); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if cache.setCalls != 1 {
		t.Fatalf("expected one cache write, got %d", cache.setCalls)
	}

	// A grant added without invalidation stays invisible within the TTL.
	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a2", UserID: "u1", RoleID: "r-owner", IsActive: true,
	})

	snapshot, err := resolver.GetUserPermissions(context.Background(), "u1", true)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if snapshot.HasRole(domain.RoleOwner) {
		t.Fatal("cached snapshot should not yet reflect the new grant")
	}
	if cache.setCalls != 1 {
		t.Fatalf("second read should be served from cache, writes = %d", cache.setCalls)
	}
}

func TestForceInvalidateGuaranteesNextReadIsFresh(t *testing.T) {
	resolver, roles, cache := newRBACFixture()

	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "r-customer", IsActive: true,
	})

	stale, err := resolver.GetUserPermissions(context.Background(), "u1", true)
	if err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a2", UserID: "u1", RoleID: "r-owner", IsActive: true,
	})

	// A slow concurrent writer re-stores the pre-mutation snapshot after
	// the invalidation; the generation fence must reject it.
	if err := resolver.ForceInvalidateUser(context.Background(), "u1"); err != nil {
		t.Fatalf("force invalidate: %v", err)
	}
	_ = cache.Set(context.Background(), "u1", *stale)

	snapshot, err := resolver.GetUserPermissions(context.Background(), "u1", true)
	if err != nil {
		t.Fatalf("read after invalidation: %v", err)
	}
	if !snapshot.HasRole(domain.RoleOwner) {
		t.Fatal("read after force invalidation returned the pre-invalidation permission set")
	}
}

func TestHasPermissionHonorsBusinessScope(t *testing.T) {
	resolver, roles, _ := newRBACFixture()

	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "r-owner", IsActive: true, BusinessID: strPtr("b1"),
	})

	inScope, err := resolver.HasPermission(context.Background(), "u1", "business", "manage", &domain.PermissionScope{BusinessID: "b1"})
	if err != nil {
		t.Fatalf("in-scope check: %v", err)
	}
	if !inScope {
		t.Fatal("expected permission within the granted business")
	}

	outOfScope, err := resolver.HasPermission(context.Background(), "u1", "business", "manage", &domain.PermissionScope{BusinessID: "b2"})
	if err != nil {
		t.Fatalf("out-of-scope check: %v", err)
	}
	if outOfScope {
		t.Fatal("business-scoped grant must not apply to another business")
	}

	unscoped, err := resolver.HasPermission(context.Background(), "u1", "business", "manage", nil)
	if err != nil {
		t.Fatalf("unscoped check: %v", err)
	}
	if unscoped {
		t.Fatal("business-scoped grant must not apply without a scope")
	}
}

func TestRequirePermissionAndRequireAny(t *testing.T) {
	resolver, roles, _ := newRBACFixture()

	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "r-customer", IsActive: true,
	})

	if err := resolver.RequirePermission(context.Background(), "u1", "appointment", "create", nil); err != nil {
		t.Fatalf("expected permission to be granted: %v", err)
	}

	if err := resolver.RequirePermission(context.Background(), "u1", "business", "manage", nil); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	if err := resolver.RequireAny(context.Background(), "u1", []string{"business:manage", "appointment:create"}, nil); err != nil {
		t.Fatalf("RequireAny with one match: %v", err)
	}

	if err := resolver.RequireAny(context.Background(), "u1", []string{"business:manage", "staff:invite"}, nil); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("RequireAny without matches: got %v, want ErrPermissionDenied", err)
	}
}

func TestClearUserCacheAllowsRepopulation(t *testing.T) {
	resolver, roles, cache := newRBACFixture()

	_ = roles.CreateAssignment(context.Background(), domain.RoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "r-customer", IsActive: true,
	})

	if _, err := resolver.GetUserPermissions(context.Background(), "u1", true); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if err := resolver.ClearUserCache(context.Background(), "u1"); err != nil {
		t.Fatalf("clear cache: %v", err)
	}

	if _, err := resolver.GetUserPermissions(context.Background(), "u1", true); err != nil {
		t.Fatalf("read after clear: %v", err)
	}
	if cache.setCalls != 2 {
		t.Fatalf("expected recompute after clear, writes = %d", cache.setCalls)
	}
}
