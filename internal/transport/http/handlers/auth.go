package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/transport/http/middleware"
	"github.com/randevubu/randevubu.server-sub004/internal/usecase"
)

// AuthHandler serves the session lifecycle endpoints.
type AuthHandler struct {
	tokens *usecase.TokenService
	logger *zap.Logger
}

// NewAuthHandler builds an auth handler instance.
func NewAuthHandler(tokens *usecase.TokenService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{tokens: tokens, logger: logger}
}

// Refresh rotates the presented refresh token into a new session pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	pair, err := h.tokens.RefreshAccessToken(c.Request.Context(), req.RefreshToken, deviceFromContext(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRefreshUnauthorized, Status: http.StatusUnauthorized, Message: "refresh token unauthorized"},
		}, http.StatusInternalServerError, "token refresh failed")
		return
	}

	c.JSON(http.StatusOK, tokenPairResponse(pair))
}

// Logout revokes the session behind the presented refresh token. The
// operation is idempotent; unknown tokens succeed.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	if err := h.tokens.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// LogoutAll revokes every session of the authenticated subject.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	revoked, err := h.tokens.RevokeAllUserTokens(c.Request.Context(), userID, "logout_all")
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	c.JSON(http.StatusOK, RevokedResponse{Revoked: revoked})
}

// LogoutDevice revokes the subject's sessions bound to one device.
func (h *AuthHandler) LogoutDevice(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req RevokeDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	revoked, err := h.tokens.RevokeDeviceTokens(c.Request.Context(), userID, req.DeviceID, "logout_device")
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "device logout failed"))
		return
	}

	c.JSON(http.StatusOK, RevokedResponse{Revoked: revoked})
}

func tokenPairResponse(pair *domain.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}
}

// deviceFromContext assembles the client context a session gets bound to.
func deviceFromContext(c *gin.Context) domain.DeviceInfo {
	reqCtx := middleware.GetRequestContext(c)

	info := domain.DeviceInfo{}
	if reqCtx.DeviceID != "" {
		deviceID := reqCtx.DeviceID
		info.DeviceID = &deviceID
	}
	if reqCtx.UserAgent != "" {
		userAgent := reqCtx.UserAgent
		info.UserAgent = &userAgent
	}
	if reqCtx.IP != "" {
		ip := reqCtx.IP
		info.IPAddress = &ip
	}
	return info
}
