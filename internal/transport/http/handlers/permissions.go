package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/transport/http/middleware"
	"github.com/randevubu/randevubu.server-sub004/internal/usecase"
)

// PermissionHandler exposes the subject's effective authorization state.
type PermissionHandler struct {
	resolver *usecase.PermissionResolver
	logger   *zap.Logger
}

// NewPermissionHandler builds a permission handler instance.
func NewPermissionHandler(resolver *usecase.PermissionResolver, logger *zap.Logger) *PermissionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionHandler{resolver: resolver, logger: logger}
}

// Mine returns the authenticated subject's roles and permissions.
func (h *PermissionHandler) Mine(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	useCache := c.Query("fresh") != "true"

	snapshot, err := h.resolver.GetUserPermissions(c.Request.Context(), userID, useCache)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "permission resolution failed"))
		return
	}

	permissions := snapshot.Permissions()
	views := make([]PermissionView, 0, len(permissions))
	for _, perm := range permissions {
		views = append(views, PermissionView{Resource: perm.Resource, Action: perm.Action})
	}

	c.JSON(http.StatusOK, PermissionsResponse{
		UserID:      snapshot.UserID,
		Roles:       snapshot.RoleNames(),
		Permissions: views,
		ComputedAt:  snapshot.ComputedAt,
	})
}
