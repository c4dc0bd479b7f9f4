package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
)

func TestVerifyAccessTokenRoundTrip(t *testing.T) {
	service, _, _, _ := newRotationService(t)

	pair, err := service.IssueTokenPair(context.Background(), "u1", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}

	claims, err := service.VerifyAccessToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("claims user = %q, want u1", claims.UserID)
	}
	if claims.PhoneNumber != "+905551234567" {
		t.Fatalf("claims phone = %q, want +905551234567", claims.PhoneNumber)
	}
}

func TestVerifyAccessTokenRejectsRefreshToken(t *testing.T) {
	service, _, _, _ := newRotationService(t)

	pair, err := service.IssueTokenPair(context.Background(), "u1", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}

	if _, err := service.VerifyAccessToken(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("refresh token as access: got %v, want ErrInvalidAccessToken", err)
	}
}

func TestVerifyAccessTokenDistinguishesExpiredFromInvalid(t *testing.T) {
	signer := newTestSigner(t)
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	signer.WithClock(func() time.Time { return issuedAt })

	tokens := newStubTokenRepository()
	users := &stubUserRepository{users: map[string]domain.User{
		"u1": {ID: "u1", PhoneNumber: "+905551234567", IsActive: true},
	}}
	service := NewTokenService(newTestConfig(), signer, tokens, users, &stubAuditRepository{}, nil, nil)
	service.WithClock(func() time.Time { return issuedAt })

	pair, err := service.IssueTokenPair(context.Background(), "u1", domain.DeviceInfo{})
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}

	// Move past the access TTL.
	signer.WithClock(func() time.Time { return issuedAt.Add(16 * time.Minute) })

	if _, err := service.VerifyAccessToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrExpiredAccessToken) {
		t.Fatalf("expired token: got %v, want ErrExpiredAccessToken", err)
	}

	if _, err := service.VerifyAccessToken(context.Background(), "malformed"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("malformed token: got %v, want ErrInvalidAccessToken", err)
	}
}

func TestVerificationCodeRoundTrip(t *testing.T) {
	service, _, _, _ := newRotationService(t)

	code, hash, err := service.GenerateVerificationCode(6)
	if err != nil {
		t.Fatalf("generate verification code: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}

	ok, err := service.VerifyVerificationCode(code, hash)
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}
	if !ok {
		t.Fatal("expected code to verify against its hash")
	}

	wrongCode := "000000"
	if code == wrongCode {
		wrongCode = "111111"
	}
	ok, err = service.VerifyVerificationCode(wrongCode, hash)
	if err != nil {
		t.Fatalf("verify wrong code: %v", err)
	}
	if ok {
		t.Fatal("wrong code must not verify")
	}
}
