package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"authgate/internal/domain"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 1000
)

type updateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := UsersListResponse{Results: make([]UserResponse, len(users))}
	for i := range users {
		resp.Results[i] = userToResponse(users[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deleteUser(c *gin.Context) {
	caller, _ := currentUser(c)
	targetID := c.Param("id")

	if err := h.users.DeleteUser(c.Request.Context(), caller, targetID); err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, caller, domain.ActivityUserDelete, map[string]any{"targetUserId": targetID})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) updateUserRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	caller, _ := currentUser(c)
	targetID := c.Param("id")
	user, err := h.users.UpdateRole(c.Request.Context(), caller, targetID, domain.Role(req.Role))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, caller, domain.ActivityRoleUpdate, map[string]any{
		"targetUserId": targetID,
		"role":         req.Role,
	})
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) listActivity(c *gin.Context) {
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(v, maxActivityLimit)
	}

	if h.activity == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Activity log is not readable with the configured sink"})
		return
	}
	entries, err := h.activity.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]ActivityResponse, len(entries))
	for i := range entries {
		resp[i] = activityToResponse(entries[i])
	}
	c.JSON(http.StatusOK, gin.H{"results": resp})
}
