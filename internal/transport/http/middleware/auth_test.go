package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu.server-sub004/internal/infra/config"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/security"
	"github.com/randevubu/randevubu.server-sub004/internal/usecase"
)

func newAuthTestRig(t *testing.T) (*gin.Engine, *security.SessionSigner) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := security.NewSessionSigner(security.SignerConfig{
		AccessSecret:  "middleware-access-secret-0123456789-0123",
		RefreshSecret: "middleware-refresh-secret-0123456789-012",
		Issuer:        "randevubu-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	tokens := usecase.NewTokenService(&config.AppConfig{}, signer, nil, nil, nil, nil, nil)

	r := gin.New()
	r.Use(EnrichContext())
	r.GET("/protected", RequireAuth(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey)})
	})

	return r, signer
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	r, signer := newAuthTestRig(t)

	token, err := signer.SignAccessToken("u1", "+905551234567")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "u1") {
		t.Fatalf("response missing user id: %s", w.Body.String())
	}
}

func TestRequireAuthRejectsMissingAndMalformedHeaders(t *testing.T) {
	r, _ := newAuthTestRig(t)

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "empty token", header: "Bearer "},
		{name: "garbage token", header: "Bearer not.a.token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestRequireAuthDistinguishesExpiredTokens(t *testing.T) {
	r, signer := newAuthTestRig(t)

	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	signer.WithClock(func() time.Time { return issuedAt })
	token, err := signer.SignAccessToken("u1", "")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	signer.WithClock(func() time.Time { return issuedAt.Add(16 * time.Minute) })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "expired") {
		t.Fatalf("expected an expired-token message, got %s", w.Body.String())
	}
}
