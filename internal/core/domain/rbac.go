package domain

import (
	"strings"
	"time"
)

// Well-known role names. Business-scoped roles (OWNER, STAFF) coexist with
// global roles (ADMIN, CUSTOMER) on the same subject.
const (
	RoleAdmin    = "ADMIN"
	RoleOwner    = "OWNER"
	RoleStaff    = "STAFF"
	RoleCustomer = "CUSTOMER"
)

// Role defines a named, activatable set of permissions.
type Role struct {
	ID          string
	Name        string
	Description *string
	IsActive    bool
}

// Permission is a capability expressed as resource plus action.
type Permission struct {
	ID       string
	Resource string
	Action   string
}

// CanonicalName renders the permission as "resource:action".
func (p Permission) CanonicalName() string {
	return strings.ToLower(strings.TrimSpace(p.Resource)) + ":" + strings.ToLower(strings.TrimSpace(p.Action))
}

// Matches compares resource/action pairs case-insensitively.
func (p Permission) Matches(resource, action string) bool {
	return strings.EqualFold(p.Resource, resource) && strings.EqualFold(p.Action, action)
}

// RoleAssignment grants a role to a subject, optionally pinned to one
// business. Assignments are soft-deactivated, never deleted.
type RoleAssignment struct {
	ID         string
	UserID     string
	RoleID     string
	GrantedBy  string
	GrantedAt  time.Time
	IsActive   bool
	BusinessID *string
}

// PermissionScope narrows a permission check to one business.
type PermissionScope struct {
	BusinessID string
}

// RoleGrant is one resolved assignment: the role, its scope, and the
// permissions it contributes.
type RoleGrant struct {
	Role        Role
	BusinessID  *string
	Permissions []Permission
}

// AppliesTo reports whether the grant counts toward a check in the given
// scope. Global grants (nil BusinessID) apply everywhere.
func (g RoleGrant) AppliesTo(scope *PermissionScope) bool {
	if g.BusinessID == nil {
		return true
	}
	if scope == nil || scope.BusinessID == "" {
		return false
	}
	return *g.BusinessID == scope.BusinessID
}

// PermissionSnapshot is the cached answer to "what can this subject do".
// Generation fences the snapshot against force-invalidation races: a
// snapshot written under an older generation is never served.
type PermissionSnapshot struct {
	UserID     string
	Grants     []RoleGrant
	ComputedAt time.Time
	Generation int64
}

// RoleNames returns the distinct role names across all grants.
func (s PermissionSnapshot) RoleNames() []string {
	seen := make(map[string]struct{}, len(s.Grants))
	names := make([]string, 0, len(s.Grants))
	for _, grant := range s.Grants {
		if _, ok := seen[grant.Role.Name]; ok {
			continue
		}
		seen[grant.Role.Name] = struct{}{}
		names = append(names, grant.Role.Name)
	}
	return names
}

// HasRole reports whether any grant carries the named role.
func (s PermissionSnapshot) HasRole(name string) bool {
	for _, grant := range s.Grants {
		if strings.EqualFold(grant.Role.Name, name) {
			return true
		}
	}
	return false
}

// Permissions returns the union of permissions across all grants.
func (s PermissionSnapshot) Permissions() []Permission {
	seen := make(map[string]struct{})
	var result []Permission
	for _, grant := range s.Grants {
		for _, perm := range grant.Permissions {
			key := perm.CanonicalName()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, perm)
		}
	}
	return result
}

// Allows reports whether the snapshot grants resource:action within the
// supplied scope. Scoped grants only count when the scope matches.
func (s PermissionSnapshot) Allows(resource, action string, scope *PermissionScope) bool {
	for _, grant := range s.Grants {
		if !grant.AppliesTo(scope) {
			continue
		}
		for _, perm := range grant.Permissions {
			if perm.Matches(resource, action) {
				return true
			}
		}
	}
	return false
}
