package security

import (
	"errors"
	"testing"
	"time"
)

const (
	testAccessSecret  = "unit-access-secret-0123456789-0123456789"
	testRefreshSecret = "unit-refresh-secret-0123456789-012345678"
)

func newSigner(t *testing.T) *SessionSigner {
	t.Helper()
	signer, err := NewSessionSigner(SignerConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "randevubu-test",
		Audience:      "randevubu-clients",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func TestNewSessionSignerConfigurationErrors(t *testing.T) {
	cases := []struct {
		name    string
		cfg     SignerConfig
		wantErr error
	}{
		{
			name:    "missing access secret",
			cfg:     SignerConfig{RefreshSecret: testRefreshSecret, Issuer: "x"},
			wantErr: ErrSecretMissing,
		},
		{
			name:    "missing refresh secret",
			cfg:     SignerConfig{AccessSecret: testAccessSecret, Issuer: "x"},
			wantErr: ErrSecretMissing,
		},
		{
			name:    "identical secrets",
			cfg:     SignerConfig{AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret, Issuer: "x"},
			wantErr: ErrSecretsIdentical,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSessionSigner(tc.cfg); !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewSessionSignerRejectsShortSecrets(t *testing.T) {
	_, err := NewSessionSigner(SignerConfig{
		AccessSecret:  "short",
		RefreshSecret: "also-short-but-different",
		Issuer:        "x",
	})
	if err == nil {
		t.Fatal("expected error for short secrets")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	signer := newSigner(t)

	token, err := signer.SignAccessToken("u1", "+905551234567")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}

	claims, err := signer.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Kind != TokenKindAccess {
		t.Fatalf("kind = %q, want access", claims.Kind)
	}
	if claims.UserID != "u1" {
		t.Fatalf("user = %q, want u1", claims.UserID)
	}
	if claims.OpaqueValue != "" {
		t.Fatal("access tokens must not carry an opaque value")
	}
}

func TestRefreshTokenRequiresOpaqueValue(t *testing.T) {
	signer := newSigner(t)

	if _, err := signer.SignRefreshToken("u1", "+905551234567", ""); err == nil {
		t.Fatal("expected error for missing opaque value")
	}

	token, err := signer.SignRefreshToken("u1", "+905551234567", "opaque-1")
	if err != nil {
		t.Fatalf("sign refresh token: %v", err)
	}

	claims, err := signer.ParseRefreshToken(token)
	if err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}
	if claims.OpaqueValue != "opaque-1" {
		t.Fatalf("opaque = %q, want opaque-1", claims.OpaqueValue)
	}
}

func TestSecretSeparationBetweenKinds(t *testing.T) {
	signer := newSigner(t)

	accessToken, err := signer.SignAccessToken("u1", "")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	refreshToken, err := signer.SignRefreshToken("u1", "", "opaque-1")
	if err != nil {
		t.Fatalf("sign refresh token: %v", err)
	}

	if _, err := signer.ParseRefreshToken(accessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token parsed as refresh: got %v, want ErrInvalidToken", err)
	}
	if _, err := signer.ParseAccessToken(refreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token parsed as access: got %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsForeignSigner(t *testing.T) {
	signer := newSigner(t)

	foreign, err := NewSessionSigner(SignerConfig{
		AccessSecret:  "another-access-secret-0123456789-0123456",
		RefreshSecret: "another-refresh-secret-0123456789-012345",
		Issuer:        "randevubu-test",
		Audience:      "randevubu-clients",
	})
	if err != nil {
		t.Fatalf("new foreign signer: %v", err)
	}

	token, err := foreign.SignAccessToken("u1", "")
	if err != nil {
		t.Fatalf("sign with foreign signer: %v", err)
	}

	if _, err := signer.ParseAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature: got %v, want ErrInvalidToken", err)
	}
}

func TestParseDistinguishesExpiredFromInvalid(t *testing.T) {
	signer := newSigner(t)
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	signer.WithClock(func() time.Time { return issuedAt })

	token, err := signer.SignAccessToken("u1", "")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}

	signer.WithClock(func() time.Time { return issuedAt.Add(16 * time.Minute) })

	if _, err := signer.ParseAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expired token: got %v, want ErrExpiredToken", err)
	}

	if _, err := signer.ParseAccessToken("garbage.token.value"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: got %v, want ErrInvalidToken", err)
	}
}
