package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/achievements"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// CommentController manages comments and comment likes.
type CommentController struct {
	db         *gorm.DB
	dispatcher *achievements.Dispatcher
}

// NewCommentController creates a CommentController.
func NewCommentController(db *gorm.DB, dispatcher *achievements.Dispatcher) *CommentController {
	return &CommentController{db: db, dispatcher: dispatcher}
}

// CreateComment allows authenticated users to comment on ideas.
func (c *CommentController) CreateComment(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid request payload")
		return
	}

	content := utils.Sanitize(req.Content)
	if strings.TrimSpace(content) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40023, "content cannot be empty")
		return
	}

	var idea models.Idea
	if err := c.db.First(&idea, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "idea not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load idea")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	comment := models.Comment{
		IdeaID:  idea.ID,
		UserID:  userID,
		Content: content,
	}

	// Ledger row and cached counter move together.
	err := c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Idea{}).Where("id = ?", idea.ID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to create comment")
		return
	}

	if err := c.db.Preload("User").First(&comment, comment.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to load comment")
		return
	}

	utils.InvalidateByPrefix("cache:idea:detail:" + strconv.Itoa(int(idea.ID)))

	if idea.UserID != userID {
		n := models.Notification{
			UserID:    idea.UserID,
			ActorID:   userID,
			Type:      models.NotificationComment,
			Content:   idea.Title,
			IdeaID:    &idea.ID,
			CommentID: &comment.ID,
		}
		if err := c.db.Create(&n).Error; err != nil {
			utils.Sugar.Warnf("comment notification failed idea=%d err=%v", idea.ID, err)
		}
	}

	unlocked := c.dispatcher.Dispatch(ctx.Request.Context(), achievements.TriggerCommentCreated, userID)

	utils.Success(ctx, gin.H{"comment": comment, "unlocked_achievements": unlocked})
}

// ListIdeaComments returns the comments on an idea, oldest first.
func (c *CommentController) ListIdeaComments(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	ideaID := ctx.Param("id")

	var total int64
	if err := c.db.Model(&models.Comment{}).Where("idea_id = ?", ideaID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to count comments")
		return
	}

	var comments []models.Comment
	if err := c.db.Preload("User").Where("idea_id = ?", ideaID).
		Order("created_at ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&comments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to list comments")
		return
	}

	utils.Success(ctx, gin.H{
		"items":      comments,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// ListUserComments returns comments a user has written (public).
func (c *CommentController) ListUserComments(ctx *gin.Context) {
	userID := strings.TrimSpace(ctx.Param("id"))
	if userID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40060, "missing user id")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var total int64
	if err := c.db.Model(&models.Comment{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to count user comments")
		return
	}

	var comments []models.Comment
	if err := c.db.Preload("User").Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&comments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50073, "failed to list user comments")
		return
	}

	utils.Success(ctx, gin.H{
		"items":      comments,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// ToggleCommentLike likes a comment or removes an existing like.
func (c *CommentController) ToggleCommentLike(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var comment models.Comment
	if err := c.db.First(&comment, ctx.Param("commentId")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50074, "failed to load comment")
		return
	}

	liked := false
	err := c.db.Transaction(func(tx *gorm.DB) error {
		like := models.CommentLike{CommentID: comment.ID, UserID: userID}
		if err := tx.Create(&like).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}
			if err := tx.Where("comment_id = ? AND user_id = ?", comment.ID, userID).
				Delete(&models.CommentLike{}).Error; err != nil {
				return err
			}
			return tx.Model(&models.Comment{}).Where("id = ? AND like_count > 0", comment.ID).
				UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
		}
		liked = true
		return tx.Model(&models.Comment{}).Where("id = ?", comment.ID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50075, "failed to toggle comment like")
		return
	}

	utils.InvalidateByPrefix("cache:idea:detail:" + strconv.Itoa(int(comment.IdeaID)))

	if liked && comment.UserID != userID {
		n := models.Notification{
			UserID:    comment.UserID,
			ActorID:   userID,
			Type:      models.NotificationCommentLike,
			IdeaID:    &comment.IdeaID,
			CommentID: &comment.ID,
		}
		if err := c.db.Create(&n).Error; err != nil {
			utils.Sugar.Warnf("comment like notification failed comment=%d err=%v", comment.ID, err)
		}
	}

	var likeCount int64
	_ = c.db.Model(&models.CommentLike{}).Where("comment_id = ?", comment.ID).Count(&likeCount).Error

	utils.Success(ctx, gin.H{"liked": liked, "like_count": likeCount})
}

// DeleteComment allows the comment owner or an admin to delete a comment.
func (c *CommentController) DeleteComment(ctx *gin.Context) {
	cid := strings.TrimSpace(ctx.Param("commentId"))
	if cid == "" {
		utils.Error(ctx, http.StatusBadRequest, 40070, "missing comment id")
		return
	}
	var cmt models.Comment
	if err := c.db.First(&cmt, cid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50076, "failed to load comment")
		return
	}

	uid, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}
	if cmt.UserID != uid && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40320, "you can only delete your own comment")
		return
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("comment_id = ?", cmt.ID).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&cmt).Error; err != nil {
			return err
		}
		return tx.Model(&models.Idea{}).Where("id = ? AND comment_count > 0", cmt.IdeaID).
			UpdateColumn("comment_count", gorm.Expr("comment_count - 1")).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50077, "failed to delete comment")
		return
	}

	utils.InvalidateByPrefix("cache:idea:detail:" + strconv.Itoa(int(cmt.IdeaID)))
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}
