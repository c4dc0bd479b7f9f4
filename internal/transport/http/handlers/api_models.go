package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// TokenPairResponse carries the two signed session strings.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// RefreshRequest defines the payload for the token refresh endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest defines the payload for single-session logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RevokeDeviceRequest defines the payload for device-scoped revocation.
type RevokeDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

// RevokedResponse reports how many sessions a revocation affected.
type RevokedResponse struct {
	Revoked int `json:"revoked"`
}

// GrantRoleRequest defines the payload for the role grant endpoint.
type GrantRoleRequest struct {
	RoleName   string  `json:"role_name" binding:"required"`
	BusinessID *string `json:"business_id"`
}

// GrantRoleResponse carries the grant outcome. Tokens is null when the
// subject's effective roles did not change.
type GrantRoleResponse struct {
	Granted bool               `json:"granted"`
	Tokens  *TokenPairResponse `json:"tokens"`
}

// PermissionView is one resolved permission in API responses.
type PermissionView struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// PermissionsResponse describes the subject's effective authorization state.
type PermissionsResponse struct {
	UserID      string           `json:"user_id"`
	Roles       []string         `json:"roles"`
	Permissions []PermissionView `json:"permissions"`
	ComputedAt  time.Time        `json:"computed_at"`
}
