package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/repository"
)

func TestTokenRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	deviceID := "device-1"

	mock.ExpectExec(`INSERT INTO randevubu\.refresh_tokens`).
		WithArgs("tok-1", "u1", "hash-1", false, now.Add(720*time.Hour),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), now, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), domain.RefreshToken{
		ID:        "tok-1",
		UserID:    "u1",
		TokenHash: "hash-1",
		ExpiresAt: now.Add(720 * time.Hour),
		DeviceID:  &deviceID,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetByToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "token_hash", "is_revoked", "expires_at",
		"device_id", "user_agent", "ip_address", "created_at", "last_used_at",
	}).AddRow("tok-1", "u1", "hash-1", false, now.Add(time.Hour),
		nil, nil, nil, now, nil)

	mock.ExpectQuery(`SELECT id, user_id, token_hash, is_revoked, expires_at, device_id, user_agent, ip_address, created_at, last_used_at FROM randevubu\.refresh_tokens WHERE token_hash = \$1`).
		WithArgs("hash-1").
		WillReturnRows(rows)

	record, err := repo.GetByToken(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("GetByToken returned error: %v", err)
	}
	if record.ID != "tok-1" || record.UserID != "u1" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.DeviceID != nil || record.LastUsedAt != nil {
		t.Fatal("expected nullable columns to map to nil pointers")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetByToken_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM randevubu\.refresh_tokens WHERE token_hash = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "token_hash", "is_revoked", "expires_at",
			"device_id", "user_agent", "ip_address", "created_at", "last_used_at",
		}))

	if _, err := repo.GetByToken(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_Revoke_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectExec(`UPDATE randevubu\.refresh_tokens SET is_revoked = \$1 WHERE id = \$2`).
		WithArgs(true, "absent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Revoke(context.Background(), "absent"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_RevokeAllForUser_CountsRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectExec(`UPDATE randevubu\.refresh_tokens SET is_revoked = \$1 WHERE user_id = \$2 AND is_revoked = \$3`).
		WithArgs(true, "u1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	revoked, err := repo.RevokeAllForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RevokeAllForUser returned error: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("revoked = %d, want 3", revoked)
	}

	// Nothing left to revoke on the second pass; still no error.
	mock.ExpectExec(`UPDATE randevubu\.refresh_tokens SET is_revoked = \$1 WHERE user_id = \$2 AND is_revoked = \$3`).
		WithArgs(true, "u1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	revoked, err = repo.RevokeAllForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second RevokeAllForUser returned error: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("revoked = %d, want 0", revoked)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_RevokeOldestBeyondLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectQuery(`WITH ranked AS`).
		WithArgs("u1", 5).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	revoked, err := repo.RevokeOldestBeyondLimit(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("RevokeOldestBeyondLimit returned error: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("revoked = %d, want 2", revoked)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
