package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// NotificationController exposes a user's notification feed.
type NotificationController struct {
	db *gorm.DB
}

// NewNotificationController creates a NotificationController.
func NewNotificationController(db *gorm.DB) *NotificationController {
	return &NotificationController{db: db}
}

// ListNotifications returns the current user's notifications, newest first.
// unread=true filters to unread only.
func (n *NotificationController) ListNotifications(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	q := n.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if ctx.Query("unread") == "true" {
		q = q.Where("read = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50140, "failed to count notifications")
		return
	}

	var items []models.Notification
	if err := q.Preload("Actor").Order("read ASC, created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50141, "failed to list notifications")
		return
	}

	utils.Success(ctx, gin.H{
		"items":      items,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// UnreadCount returns how many notifications the user has not read.
func (n *NotificationController) UnreadCount(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var count int64
	if err := n.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50140, "failed to count notifications")
		return
	}

	utils.Success(ctx, gin.H{"unread": count})
}

// MarkRead marks one notification as read. Owner only.
func (n *NotificationController) MarkRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var notif models.Notification
	if err := n.db.First(&notif, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40460, "notification not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50142, "failed to load notification")
		return
	}
	if notif.UserID != userID {
		utils.Error(ctx, http.StatusForbidden, 40350, "not your notification")
		return
	}

	if err := n.db.Model(&notif).Update("read", true).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50143, "failed to mark notification read")
		return
	}
	utils.Success(ctx, gin.H{"message": "marked read"})
}

// MarkAllRead marks every unread notification of the user as read.
func (n *NotificationController) MarkAllRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	res := n.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50143, "failed to mark notifications read")
		return
	}
	utils.Success(ctx, gin.H{"updated": res.RowsAffected})
}
