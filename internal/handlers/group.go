package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"church-chat-service/internal/directory"
	"church-chat-service/internal/models"
	"church-chat-service/internal/repositories"
	"church-chat-service/internal/ws"
)

const lazySyncTimeout = 3 * time.Second

// syncEngine is the slice of the group sync engine the gateway needs.
type syncEngine interface {
	SyncUser(ctx context.Context, userID int) error
	CreateDepartmentGroup(ctx context.Context, creatorID int, name string, description string, dept string) (models.Group, error)
}

// GroupHandler manages group and membership endpoints.
type GroupHandler struct {
	groups repositories.GroupRepository
	dir    directory.Directory
	sync   syncEngine
	hub    *ws.Hub
	log    *zap.Logger
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups repositories.GroupRepository, dir directory.Directory, sync syncEngine, hub *ws.Hub, log *zap.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, dir: dir, sync: sync, hub: hub, log: log}
}

// ListGroups returns the caller's groups with member counts, unread counts
// and last-message previews. Sync runs first so newly-relevant department
// groups appear without a separate call; a sync failure only logs, the list
// is still served.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetInt("userID")

	syncCtx, cancel := context.WithTimeout(c.Request.Context(), lazySyncTimeout)
	if err := h.sync.SyncUser(syncCtx, userID); err != nil {
		h.log.Warn("lazy group sync failed", zap.Int("user_id", userID), zap.Error(err))
	}
	cancel()

	groups, err := h.groups.ListGroupSummaries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// CreateGroup handles POST /groups. Restricted to privileged directory
// roles; department-kind creation rejects duplicate tags and bulk-adds the
// department's current directory members.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		Kind        string `json:"type" binding:"required"`
		Department  string `json:"department"`
		MemberIDs   []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := models.GroupKind(req.Kind)
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group type"})
		return
	}

	caller, err := h.dir.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "directory lookup failed"})
		return
	}
	if !caller.HasPrivilegedRole() {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if kind == models.GroupKindDepartment {
		if req.Department == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "department is required"})
			return
		}
		group, err := h.sync.CreateDepartmentGroup(c.Request.Context(), userID, req.Name, req.Description, req.Department)
		if errors.Is(err, repositories.ErrGroupExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "group for department already exists"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"group_id": group.ID})
		return
	}

	if len(req.MemberIDs) > 0 {
		users, err := h.dir.BulkUsers(c.Request.Context(), req.MemberIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "directory lookup failed"})
			return
		}
		if len(users) != len(req.MemberIDs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown member"})
			return
		}
	}

	group, err := h.groups.CreateGroupWithMembers(c.Request.Context(), repositories.CreateGroupParams{
		Name:        req.Name,
		Description: req.Description,
		Kind:        kind,
		CreatedBy:   userID,
		CreatorRole: models.RoleAdmin,
	}, req.MemberIDs)
	if errors.Is(err, repositories.ErrGroupExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "group already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"group_id": group.ID})
}

// AddMember handles POST /groups/:group_id/members. Allowed for group
// admins and for directory executives of the group's department.
func (h *GroupHandler) AddMember(c *gin.Context) {
	groupID, ok := parseIntParam(c, "group_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.GetGroup(c.Request.Context(), groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	allowed, err := h.canManageMembers(c.Request.Context(), group, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization check failed"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if _, err := h.dir.GetUser(c.Request.Context(), req.UserID); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "directory lookup failed"})
		return
	}

	if err := h.groups.AddMember(c.Request.Context(), groupID, req.UserID, models.RoleMember); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

// RemoveMember handles DELETE /groups/:group_id/members/:user_id. Same
// authorization as AddMember; self-removal goes through LeaveGroup instead.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := parseIntParam(c, "group_id")
	if !ok {
		return
	}
	targetID, ok := parseIntParam(c, "user_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	if targetID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use leave to remove yourself"})
		return
	}

	group, err := h.groups.GetGroup(c.Request.Context(), groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	allowed, err := h.canManageMembers(c.Request.Context(), group, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization check failed"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.groups.RemoveMember(c.Request.Context(), groupID, targetID); err != nil {
		if errors.Is(err, repositories.ErrNotMember) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// LeaveGroup handles POST /groups/:group_id/leave. Refused while the caller
// is the group's sole admin; another admin must be promoted first.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	groupID, ok := parseIntParam(c, "group_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	role, err := h.groups.MemberRole(c.Request.Context(), groupID, userID)
	if errors.Is(err, repositories.ErrNotMember) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this group"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}

	if role == models.RoleAdmin {
		admins, err := h.groups.CountAdmins(c.Request.Context(), groupID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
			return
		}
		if admins <= 1 {
			c.JSON(http.StatusConflict, gin.H{"error": "promote another admin before leaving"})
			return
		}
	}

	if err := h.groups.RemoveMember(c.Request.Context(), groupID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// UpdateMemberRole handles PATCH /groups/:group_id/members/:user_id/role.
// Group admins only; this is how a sole admin hands off before leaving.
func (h *GroupHandler) UpdateMemberRole(c *gin.Context) {
	groupID, ok := parseIntParam(c, "group_id")
	if !ok {
		return
	}
	targetID, ok := parseIntParam(c, "user_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := models.MemberRole(req.Role)
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	callerRole, err := h.groups.MemberRole(c.Request.Context(), groupID, userID)
	if errors.Is(err, repositories.ErrNotMember) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this group"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if callerRole != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.groups.UpdateMemberRole(c.Request.Context(), groupID, targetID, role); err != nil {
		if errors.Is(err, repositories.ErrNotMember) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// canManageMembers allows group admins, and directory executives of the
// group's department for department groups.
func (h *GroupHandler) canManageMembers(ctx context.Context, group models.Group, userID int) (bool, error) {
	role, err := h.groups.MemberRole(ctx, group.ID, userID)
	if err != nil && !errors.Is(err, repositories.ErrNotMember) {
		return false, err
	}
	if err == nil && role == models.RoleAdmin {
		return true, nil
	}

	if group.Department == nil {
		return false, nil
	}
	caller, err := h.dir.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return caller.IsExecutiveIn(*group.Department), nil
}
