package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// TokenKind tags a claim set as belonging to one half of a session pair.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

var (
	// ErrSecretMissing indicates a signing secret was not configured.
	ErrSecretMissing = errors.New("jwt: signing secret missing")
	// ErrSecretsIdentical indicates access and refresh share one secret.
	// The two token kinds must never be forgeable from a single secret.
	ErrSecretsIdentical = errors.New("jwt: access and refresh secrets must differ")
	// ErrInvalidToken indicates a malformed token, a bad signature, an
	// unexpected algorithm, or a claim set that fails shape validation.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrExpiredToken indicates the token's signature is fine but its
	// validity window has elapsed.
	ErrExpiredToken = errors.New("jwt: token expired")
)

const minSecretLength = 32

// SessionClaims is the claim set carried by both token kinds. OpaqueValue
// is present only on refresh tokens and references the persisted record.
type SessionClaims struct {
	Kind        TokenKind `json:"kind"`
	UserID      string    `json:"uid"`
	PhoneNumber string    `json:"phone,omitempty"`
	OpaqueValue string    `json:"otv,omitempty"`
	jwt.RegisteredClaims
}

// SignerConfig configures the session signer.
type SignerConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// SessionSigner signs and verifies the two token kinds with distinct
// HS256 secrets.
type SessionSigner struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewSessionSigner validates the secret configuration and constructs a
// signer. Missing or identical secrets are a fatal configuration error.
func NewSessionSigner(cfg SignerConfig) (*SessionSigner, error) {
	access := strings.TrimSpace(cfg.AccessSecret)
	refresh := strings.TrimSpace(cfg.RefreshSecret)

	if access == "" {
		return nil, fmt.Errorf("%w: access", ErrSecretMissing)
	}
	if refresh == "" {
		return nil, fmt.Errorf("%w: refresh", ErrSecretMissing)
	}
	if subtle.ConstantTimeCompare([]byte(access), []byte(refresh)) == 1 {
		return nil, ErrSecretsIdentical
	}
	if len(access) < minSecretLength || len(refresh) < minSecretLength {
		return nil, fmt.Errorf("jwt: signing secrets must be at least %d bytes", minSecretLength)
	}

	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}

	return &SessionSigner{
		accessSecret:  []byte(access),
		refreshSecret: []byte(refresh),
		issuer:        issuer,
		audience:      strings.TrimSpace(cfg.Audience),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the signer clock for deterministic tests.
func (s *SessionSigner) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// AccessTTL returns the configured access token lifetime.
func (s *SessionSigner) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (s *SessionSigner) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// SignAccessToken mints a stateless access token for the subject.
func (s *SessionSigner) SignAccessToken(userID, phoneNumber string) (string, error) {
	return s.sign(TokenKindAccess, userID, phoneNumber, "", s.accessTTL, s.accessSecret)
}

// SignRefreshToken mints a refresh token embedding the opaque value that
// binds it to a persisted record.
func (s *SessionSigner) SignRefreshToken(userID, phoneNumber, opaqueValue string) (string, error) {
	if strings.TrimSpace(opaqueValue) == "" {
		return "", fmt.Errorf("jwt: opaque value is required for refresh tokens")
	}
	return s.sign(TokenKindRefresh, userID, phoneNumber, opaqueValue, s.refreshTTL, s.refreshSecret)
}

func (s *SessionSigner) sign(kind TokenKind, userID, phoneNumber, opaqueValue string, ttl time.Duration, secret []byte) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("jwt: user id is required")
	}

	now := s.now()

	var audience jwt.ClaimStrings
	if s.audience != "" {
		audience = append(audience, s.audience)
	}

	claims := SessionClaims{
		Kind:        kind,
		UserID:      userID,
		PhoneNumber: strings.TrimSpace(phoneNumber),
		OpaqueValue: opaqueValue,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign %s token: %w", kind, err)
	}

	return signed, nil
}

// ParseAccessToken verifies an access token and returns its claims.
// A refresh token presented here fails with ErrInvalidToken because the
// kinds are signed with different secrets.
func (s *SessionSigner) ParseAccessToken(token string) (*SessionClaims, error) {
	return s.parse(token, TokenKindAccess, s.accessSecret)
}

// ParseRefreshToken verifies a refresh token and returns its claims.
func (s *SessionSigner) ParseRefreshToken(token string) (*SessionClaims, error) {
	return s.parse(token, TokenKindRefresh, s.refreshSecret)
}

func (s *SessionSigner) parse(token string, kind TokenKind, secret []byte) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &SessionClaims{}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if err := claims.validateShape(kind); err != nil {
		return nil, err
	}

	return claims, nil
}

// validateShape rejects any payload that does not match the expected
// shape for its claimed kind.
func (c *SessionClaims) validateShape(expected TokenKind) error {
	if c.Kind != expected {
		return ErrInvalidToken
	}
	if strings.TrimSpace(c.UserID) == "" {
		return ErrInvalidToken
	}

	switch c.Kind {
	case TokenKindAccess:
		if c.OpaqueValue != "" {
			return ErrInvalidToken
		}
	case TokenKindRefresh:
		if strings.TrimSpace(c.OpaqueValue) == "" {
			return ErrInvalidToken
		}
	default:
		return ErrInvalidToken
	}

	return nil
}
