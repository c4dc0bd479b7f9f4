package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/domain"
	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/repository"
	"github.com/randevubu/randevubu.server-sub004/internal/transport/http/middleware"
	"github.com/randevubu/randevubu.server-sub004/internal/usecase"
)

// RoleHandler serves role grant operations. Grants run through the
// reconciliation protocol so the response carries credentials consistent
// with the new role set.
type RoleHandler struct {
	roles     port.RoleRepository
	reconcile *usecase.ReconcileService
	logger    *zap.Logger
}

// NewRoleHandler builds a role handler instance.
func NewRoleHandler(roles port.RoleRepository, reconcile *usecase.ReconcileService, logger *zap.Logger) *RoleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleHandler{roles: roles, reconcile: reconcile, logger: logger}
}

// Grant assigns a role to the target subject and reconciles the change.
// A null tokens field means the subject already held the role.
func (h *RoleHandler) Grant(c *gin.Context) {
	actorID := c.GetString(middleware.UserIDKey)
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	targetID := c.Param("userId")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user id is required"))
		return
	}

	var req GrantRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	role, err := h.roles.GetActiveByName(c.Request.Context(), req.RoleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "role not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "role lookup failed"))
		return
	}

	input := usecase.RoleGrantInput{
		UserID:       targetID,
		ExpectedRole: role.Name,
		BusinessID:   req.BusinessID,
		Device:       deviceFromContext(c),
		Mutate: func(ctx context.Context) error {
			assignment := domain.RoleAssignment{
				ID:         uuid.NewString(),
				UserID:     targetID,
				RoleID:     role.ID,
				GrantedBy:  actorID,
				GrantedAt:  time.Now().UTC(),
				IsActive:   true,
				BusinessID: req.BusinessID,
			}
			if err := h.roles.CreateAssignment(ctx, assignment); err != nil {
				return fmt.Errorf("create role assignment: %w", err)
			}
			return nil
		},
	}

	pair, err := h.reconcile.Reconcile(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrConsistency, Status: http.StatusConflict, Message: "role grant could not be verified"},
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "role grant failed")
		return
	}

	response := GrantRoleResponse{Granted: true}
	if pair != nil {
		tokens := tokenPairResponse(pair)
		response.Tokens = &tokens
	}

	c.JSON(http.StatusOK, response)
}
