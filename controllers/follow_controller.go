package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// FollowController manages the follower graph.
type FollowController struct {
	db *gorm.DB
}

// NewFollowController creates a FollowController.
func NewFollowController(db *gorm.DB) *FollowController {
	return &FollowController{db: db}
}

// ToggleFollow follows a user, or unfollows when the edge already exists.
func (f *FollowController) ToggleFollow(ctx *gin.Context) {
	followerID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	targetID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid user id")
		return
	}
	if uint(targetID) == followerID {
		utils.Error(ctx, http.StatusBadRequest, 40061, "you cannot follow yourself")
		return
	}

	var target models.User
	if err := f.db.First(&target, targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to get user")
		return
	}

	following := false
	edge := models.Follow{FollowerID: followerID, FollowingID: target.ID}
	if err := f.db.Create(&edge).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(ctx, http.StatusInternalServerError, 50110, "failed to toggle follow")
			return
		}
		if err := f.db.Where("follower_id = ? AND following_id = ?", followerID, target.ID).
			Delete(&models.Follow{}).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50110, "failed to toggle follow")
			return
		}
	} else {
		following = true
		n := models.Notification{
			UserID:  target.ID,
			ActorID: followerID,
			Type:    models.NotificationFollow,
		}
		if err := f.db.Create(&n).Error; err != nil {
			utils.Sugar.Warnf("follow notification failed target=%d err=%v", target.ID, err)
		}
	}

	utils.Success(ctx, gin.H{"following": following})
}

// ListFollowers returns who follows the given user.
func (f *FollowController) ListFollowers(ctx *gin.Context) {
	f.listEdges(ctx, "following_id", "follower_id")
}

// ListFollowing returns who the given user follows.
func (f *FollowController) ListFollowing(ctx *gin.Context) {
	f.listEdges(ctx, "follower_id", "following_id")
}

func (f *FollowController) listEdges(ctx *gin.Context, whereCol, selectCol string) {
	userID := ctx.Param("id")
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var total int64
	if err := f.db.Model(&models.Follow{}).
		Where(whereCol+" = ?", userID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50111, "failed to count follows")
		return
	}

	var users []models.User
	if err := f.db.Model(&models.User{}).
		Joins("JOIN follows ON follows."+selectCol+" = users.id").
		Where("follows."+whereCol+" = ?", userID).
		Order("follows.created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50112, "failed to list follows")
		return
	}

	items := make([]gin.H, 0, len(users))
	for _, u := range users {
		items = append(items, publicUserResponse(u))
	}

	utils.Success(ctx, gin.H{
		"items":      items,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// FollowStats returns follower/following counts and, when authenticated,
// whether the viewer follows the user.
func (f *FollowController) FollowStats(ctx *gin.Context) {
	userID := ctx.Param("id")

	var followers, following int64
	if err := f.db.Model(&models.Follow{}).
		Where("following_id = ?", userID).Count(&followers).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50111, "failed to count follows")
		return
	}
	if err := f.db.Model(&models.Follow{}).
		Where("follower_id = ?", userID).Count(&following).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50111, "failed to count follows")
		return
	}

	payload := gin.H{"followers": followers, "following": following}
	if viewerID, ok := getUserID(ctx); ok {
		var n int64
		_ = f.db.Model(&models.Follow{}).
			Where("follower_id = ? AND following_id = ?", viewerID, userID).
			Count(&n).Error
		payload["is_following"] = n > 0
	}

	utils.Success(ctx, payload)
}
