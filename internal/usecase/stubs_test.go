package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/config"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/security"
	"github.com/randevubu/randevubu.server-sub004/internal/repository"
)

const (
	testAccessSecret  = "access-secret-0123456789-0123456789-0123"
	testRefreshSecret = "refresh-secret-0123456789-0123456789-012"
)

func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		Session: config.SessionSettings{MaxTokensPerUser: 5},
		Reconcile: config.ReconcileSettings{
			MaxAttempts:  2,
			RetryBackoff: time.Millisecond,
		},
	}
}

func newTestSigner(t interface{ Fatalf(string, ...any) }) *security.SessionSigner {
	signer, err := security.NewSessionSigner(security.SignerConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "randevubu-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

// stubTokenRepository is an in-memory port.TokenRepository that records the
// order of mutating calls so ordering invariants can be asserted.
type stubTokenRepository struct {
	mu      sync.Mutex
	records map[string]*domain.RefreshToken
	ops     []string
}

func newStubTokenRepository() *stubTokenRepository {
	return &stubTokenRepository{records: make(map[string]*domain.RefreshToken)}
}

func (r *stubTokenRepository) Create(_ context.Context, token domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := token
	r.records[token.ID] = &copied
	r.ops = append(r.ops, "create:"+token.ID)
	return nil
}

func (r *stubTokenRepository) GetByToken(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.TokenHash == tokenHash {
			copied := *record
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubTokenRepository) Revoke(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[tokenID]
	if !ok {
		return repository.ErrNotFound
	}
	record.IsRevoked = true
	r.ops = append(r.ops, "revoke:"+tokenID)
	return nil
}

func (r *stubTokenRepository) MarkUsed(_ context.Context, tokenID string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[tokenID]
	if !ok {
		return repository.ErrNotFound
	}
	record.LastUsedAt = &usedAt
	return nil
}

func (r *stubTokenRepository) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.UserID == userID && !record.IsRevoked {
			record.IsRevoked = true
			count++
		}
	}
	r.ops = append(r.ops, "revoke_all:"+userID)
	return count, nil
}

func (r *stubTokenRepository) RevokeForDevice(_ context.Context, userID, deviceID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.UserID == userID && !record.IsRevoked && record.DeviceID != nil && *record.DeviceID == deviceID {
			record.IsRevoked = true
			count++
		}
	}
	return count, nil
}

func (r *stubTokenRepository) RevokeOldestBeyondLimit(_ context.Context, userID string, maxTokens int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []*domain.RefreshToken
	for _, record := range r.records {
		if record.UserID == userID && !record.IsRevoked {
			active = append(active, record)
		}
	}
	if len(active) <= maxTokens {
		return 0, nil
	}

	// oldest first
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			if active[j].CreatedAt.Before(active[i].CreatedAt) {
				active[i], active[j] = active[j], active[i]
			}
		}
	}

	count := 0
	for _, record := range active[:len(active)-maxTokens] {
		record.IsRevoked = true
		count++
	}
	return count, nil
}

func (r *stubTokenRepository) CountActiveForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.UserID == userID && !record.IsRevoked {
			count++
		}
	}
	return count, nil
}

func (r *stubTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, record := range r.records {
		if !record.ExpiresAt.After(before) {
			delete(r.records, id)
			count++
		}
	}
	return count, nil
}

func (r *stubTokenRepository) activeCount(userID string) int {
	count, _ := r.CountActiveForUser(context.Background(), userID)
	return count
}

func (r *stubTokenRepository) operations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

type stubUserRepository struct {
	users map[string]domain.User
}

func (r *stubUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := r.users[id]; ok {
		copied := user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

type stubAuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	failNow bool
}

func (r *stubAuditRepository) Append(_ context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNow {
		return errors.New("audit store unavailable")
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubAuditRepository) byAction(action string) []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.AuditEntry
	for _, entry := range r.entries {
		if entry.Action == action {
			matched = append(matched, entry)
		}
	}
	return matched
}

type stubEventPublisher struct {
	mu         sync.Mutex
	issued     []domain.TokenPairIssuedEvent
	refreshed  []domain.TokenRefreshedEvent
	revoked    []domain.TokensRevokedEvent
	reconciled []domain.RoleGrantReconciledEvent
}

func (p *stubEventPublisher) PublishTokenPairIssued(_ context.Context, event domain.TokenPairIssuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued = append(p.issued, event)
	return nil
}

func (p *stubEventPublisher) PublishTokenRefreshed(_ context.Context, event domain.TokenRefreshedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshed = append(p.refreshed, event)
	return nil
}

func (p *stubEventPublisher) PublishTokensRevoked(_ context.Context, event domain.TokensRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *stubEventPublisher) PublishRoleGrantReconciled(_ context.Context, event domain.RoleGrantReconciledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconciled = append(p.reconciled, event)
	return nil
}

// stubRoleRepository keeps assignments in memory. createDelay defers the
// visibility of new assignments by a number of list calls, simulating
// replication lag for reconciliation tests.
type stubRoleRepository struct {
	mu          sync.Mutex
	roles       map[string]domain.Role
	assignments []domain.RoleAssignment
	pending     []pendingAssignment
}

type pendingAssignment struct {
	assignment domain.RoleAssignment
	readsLeft  int
}

func newStubRoleRepository(roles ...domain.Role) *stubRoleRepository {
	byID := make(map[string]domain.Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}
	return &stubRoleRepository{roles: byID}
}

func (r *stubRoleRepository) GetActiveByName(_ context.Context, name string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name && role.IsActive {
			copied := role
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRoleRepository) GetByID(_ context.Context, roleID string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role, ok := r.roles[roleID]; ok {
		copied := role
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubRoleRepository) ListActiveAssignmentsForUser(_ context.Context, userID string) ([]domain.RoleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Pending assignments become visible once their read budget drains.
	remaining := r.pending[:0]
	for _, p := range r.pending {
		p.readsLeft--
		if p.readsLeft <= 0 {
			r.assignments = append(r.assignments, p.assignment)
		} else {
			remaining = append(remaining, p)
		}
	}
	r.pending = remaining

	var matched []domain.RoleAssignment
	for _, assignment := range r.assignments {
		if assignment.UserID == userID && assignment.IsActive {
			matched = append(matched, assignment)
		}
	}
	return matched, nil
}

func (r *stubRoleRepository) CreateAssignment(_ context.Context, assignment domain.RoleAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = append(r.assignments, assignment)
	return nil
}

// createAssignmentLagged stages an assignment that only becomes readable
// after the given number of list calls.
func (r *stubRoleRepository) createAssignmentLagged(assignment domain.RoleAssignment, readsBeforeVisible int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, pendingAssignment{assignment: assignment, readsLeft: readsBeforeVisible})
}

func (r *stubRoleRepository) DeactivateAssignment(_ context.Context, assignmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.assignments {
		if r.assignments[i].ID == assignmentID {
			r.assignments[i].IsActive = false
			return nil
		}
	}
	return repository.ErrNotFound
}

type stubPermissionRepository struct {
	byRole map[string][]domain.Permission
}

func (r *stubPermissionRepository) ListByRole(_ context.Context, roleID string) ([]domain.Permission, error) {
	return append([]domain.Permission(nil), r.byRole[roleID]...), nil
}

func (r *stubPermissionRepository) ListByRoles(_ context.Context, roleIDs []string) (map[string][]domain.Permission, error) {
	result := make(map[string][]domain.Permission, len(roleIDs))
	for _, id := range roleIDs {
		if perms, ok := r.byRole[id]; ok {
			result[id] = append([]domain.Permission(nil), perms...)
		}
	}
	return result, nil
}

// stubPermissionCache is an in-memory generation-fenced snapshot cache.
type stubPermissionCache struct {
	mu          sync.Mutex
	snapshots   map[string]domain.PermissionSnapshot
	generations map[string]int64
	getCalls    int
	setCalls    int
}

func newStubPermissionCache() *stubPermissionCache {
	return &stubPermissionCache{
		snapshots:   make(map[string]domain.PermissionSnapshot),
		generations: make(map[string]int64),
	}
}

func (c *stubPermissionCache) Get(_ context.Context, userID string) (*domain.PermissionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCalls++
	snapshot, ok := c.snapshots[userID]
	if !ok || snapshot.Generation < c.generations[userID] {
		return nil, repository.ErrNotFound
	}
	copied := snapshot
	return &copied, nil
}

func (c *stubPermissionCache) Set(_ context.Context, userID string, snapshot domain.PermissionSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCalls++
	c.snapshots[userID] = snapshot
	return nil
}

func (c *stubPermissionCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID], nil
}

func (c *stubPermissionCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, userID)
	return nil
}

func (c *stubPermissionCache) ForceInvalidate(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	delete(c.snapshots, userID)
	return c.generations[userID], nil
}
