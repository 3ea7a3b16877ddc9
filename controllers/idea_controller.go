package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/achievements"
	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// IdeaController manages idea CRUD, likes and attachments.
type IdeaController struct {
	db         *gorm.DB
	dispatcher *achievements.Dispatcher
}

// NewIdeaController creates an IdeaController.
func NewIdeaController(db *gorm.DB, dispatcher *achievements.Dispatcher) *IdeaController {
	return &IdeaController{db: db, dispatcher: dispatcher}
}

// CreateIdea allows authenticated users to publish a new idea.
func (p *IdeaController) CreateIdea(ctx *gin.Context) {
	var req struct {
		Title    string `json:"title" binding:"required,min=1"`
		Summary  string `json:"summary"`
		Content  string `json:"content" binding:"required"`
		Category string `json:"category"`
		Tags     string `json:"tags"`
		CoverURL string `json:"cover_url"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title cannot be empty")
		return
	}

	content := utils.Sanitize(req.Content)
	category := req.Category
	if category == "" {
		category = "General"
	}
	if !validCategory(category) {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid category")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	idea := models.Idea{
		UserID:   userID,
		Title:    title,
		Summary:  utils.Sanitize(strings.TrimSpace(req.Summary)),
		Content:  content,
		Category: category,
		Tags:     strings.TrimSpace(req.Tags),
		CoverURL: strings.TrimSpace(req.CoverURL),
	}

	if err := p.db.Create(&idea).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create idea")
		return
	}

	utils.InvalidateByPrefix("cache:ideas:list:")
	utils.InvalidateByPrefix("cache:user:" + strconv.Itoa(int(userID)) + ":ideas:")

	unlocked := p.dispatcher.Dispatch(ctx.Request.Context(), achievements.TriggerIdeaCreated, userID)

	utils.Success(ctx, gin.H{"idea": idea, "unlocked_achievements": unlocked})
}

// ListIdeas returns paginated ideas including author information.
// sort=trending orders by like count over the last 7 days.
func (p *IdeaController) ListIdeas(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	search := strings.TrimSpace(ctx.Query("search"))
	category := strings.TrimSpace(ctx.Query("category"))
	sort := strings.TrimSpace(ctx.Query("sort"))

	// Cache list pages only when there is no search term to avoid key explosion
	cacheKey := fmt.Sprintf("cache:ideas:list:cat=%s:sort=%s:page=%d:size=%d", category, sort, page, pageSize)
	if search == "" {
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}

	var ideas []models.Idea
	var total int64

	query := p.db.Model(&models.Idea{}).Preload("User")
	if search != "" {
		query = query.Where("title LIKE ? OR content LIKE ? OR tags LIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%")
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count ideas")
		return
	}

	switch sort {
	case "trending":
		since := time.Now().AddDate(0, 0, -7)
		query = query.
			Joins("LEFT JOIN idea_likes ON idea_likes.idea_id = ideas.id AND idea_likes.created_at >= ?", since).
			Group("ideas.id").
			Order("COUNT(idea_likes.id) DESC, ideas.created_at DESC")
	case "popular":
		query = query.Order("like_count DESC, created_at DESC")
	default:
		query = query.Order("created_at DESC")
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Find(&ideas).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list ideas")
		return
	}

	payload := gin.H{
		"items":      ideas,
		"pagination": paginationPayload(page, pageSize, total),
	}
	if search == "" {
		utils.CacheSetJSON(cacheKey, envelope(payload), 10*time.Minute)
	}
	utils.Success(ctx, payload)
}

// GetIdea returns a single idea with its comments.
func (p *IdeaController) GetIdea(ctx *gin.Context) {
	ideaID := ctx.Param("id")

	if b, ok := utils.CacheGetBytes("cache:idea:detail:" + ideaID); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var idea models.Idea
	if err := p.db.Preload("User").First(&idea, ideaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "idea not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load idea")
		return
	}

	var comments []models.Comment
	if err := p.db.Preload("User").Where("idea_id = ?", idea.ID).
		Order("created_at ASC").Find(&comments).Error; err == nil {
		idea.Comments = comments
	} else {
		utils.Sugar.Warnf("failed to load comments for idea %d: %v", idea.ID, err)
	}

	payload := gin.H{"idea": idea}
	utils.CacheSetJSON("cache:idea:detail:"+ideaID, envelope(payload), time.Hour)
	utils.Success(ctx, payload)
}

// LikedStatus reports whether the authenticated user liked the idea. Kept
// separate from GetIdea so the detail payload stays cacheable.
func (p *IdeaController) LikedStatus(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var count int64
	if err := p.db.Model(&models.IdeaLike{}).
		Where("idea_id = ? AND user_id = ?", ctx.Param("id"), userID).
		Count(&count).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to check like status")
		return
	}
	utils.Success(ctx, gin.H{"liked": count > 0})
}

// ListMyIdeas returns ideas created by the authenticated user.
func (p *IdeaController) ListMyIdeas(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	p.listByUser(ctx, strconv.Itoa(int(userID)), false)
}

// ListUserIdeas returns ideas created by a specific user (public).
func (p *IdeaController) ListUserIdeas(ctx *gin.Context) {
	userID := strings.TrimSpace(ctx.Param("id"))
	if userID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40060, "missing user id")
		return
	}
	p.listByUser(ctx, userID, true)
}

func (p *IdeaController) listByUser(ctx *gin.Context, userID string, cache bool) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	cacheKey := fmt.Sprintf("cache:user:%s:ideas:page=%d:size=%d", userID, page, pageSize)
	if cache {
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}
	var ideas []models.Idea
	var total int64
	q := p.db.Where("user_id = ?", userID).Preload("User").Order("created_at DESC")
	if err := q.Model(&models.Idea{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to count user ideas")
		return
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&ideas).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to list user ideas")
		return
	}
	payload := gin.H{
		"items":      ideas,
		"pagination": paginationPayload(page, pageSize, total),
	}
	if cache {
		utils.CacheSetJSON(cacheKey, envelope(payload), time.Hour)
	}
	utils.Success(ctx, payload)
}

// ToggleLike likes an idea, or removes the like when it already exists. The
// ledger row and the cached counter move in one transaction so they cannot
// drift.
func (p *IdeaController) ToggleLike(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var idea models.Idea
	if err := p.db.First(&idea, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "idea not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load idea")
		return
	}

	liked := false
	err := p.db.Transaction(func(tx *gorm.DB) error {
		like := models.IdeaLike{IdeaID: idea.ID, UserID: userID}
		if err := tx.Create(&like).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}
			// Already liked: remove the ledger row and decrement.
			if err := tx.Where("idea_id = ? AND user_id = ?", idea.ID, userID).
				Delete(&models.IdeaLike{}).Error; err != nil {
				return err
			}
			return tx.Model(&models.Idea{}).Where("id = ? AND like_count > 0", idea.ID).
				UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
		}
		liked = true
		return tx.Model(&models.Idea{}).Where("id = ?", idea.ID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to toggle like")
		return
	}

	utils.InvalidateByPrefix("cache:idea:detail:" + strconv.Itoa(int(idea.ID)))
	utils.InvalidateByPrefix("cache:ideas:list:")

	var unlocked []achievements.Unlocked
	if liked {
		if idea.UserID != userID {
			n := models.Notification{
				UserID:  idea.UserID,
				ActorID: userID,
				Type:    models.NotificationIdeaLike,
				Content: idea.Title,
				IdeaID:  &idea.ID,
			}
			if err := p.db.Create(&n).Error; err != nil {
				utils.Sugar.Warnf("like notification failed idea=%d err=%v", idea.ID, err)
			}
		}
		// Like milestones belong to the idea's author, not the liker.
		unlocked = p.dispatcher.Dispatch(ctx.Request.Context(), achievements.TriggerIdeaLiked, idea.UserID)
	}

	var likeCount int64
	_ = p.db.Model(&models.IdeaLike{}).Where("idea_id = ?", idea.ID).Count(&likeCount).Error

	utils.Success(ctx, gin.H{
		"liked":                 liked,
		"like_count":            likeCount,
		"unlocked_achievements": unlocked,
	})
}

// ListLikedIdeas returns ideas the authenticated user has liked.
func (p *IdeaController) ListLikedIdeas(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var total int64
	if err := p.db.Model(&models.IdeaLike{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to count liked ideas")
		return
	}

	var ideas []models.Idea
	if err := p.db.Model(&models.Idea{}).Preload("User").
		Joins("JOIN idea_likes ON idea_likes.idea_id = ideas.id").
		Where("idea_likes.user_id = ?", userID).
		Order("idea_likes.created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&ideas).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50063, "failed to list liked ideas")
		return
	}

	utils.Success(ctx, gin.H{
		"items":      ideas,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// DeleteIdea allows the author or an admin to delete an idea.
func (p *IdeaController) DeleteIdea(ctx *gin.Context) {
	ideaID := ctx.Param("id")
	var idea models.Idea
	if err := p.db.First(&idea, ideaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40404, "idea not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to load idea")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}

	if idea.UserID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only delete your own ideas")
		return
	}

	// Cascade comments and likes alongside the idea.
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("idea_id = ?", idea.ID).Delete(&models.IdeaLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("idea_id = ?", idea.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&idea).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to delete idea")
		return
	}

	utils.InvalidateByPrefix("cache:ideas:list:")
	utils.InvalidateByPrefix("cache:idea:detail:" + ideaID)
	utils.InvalidateByPrefix("cache:user:" + strconv.Itoa(int(idea.UserID)) + ":ideas:")

	utils.Success(ctx, gin.H{"message": "idea deleted"})
}

// UploadAttachment handles file uploads for idea covers and attachments.
func (p *IdeaController) UploadAttachment(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
		return
	}
	defer file.Close()

	const maxSize = 50 * 1024 * 1024
	if header.Size > 0 && header.Size > maxSize {
		utils.Error(ctx, http.StatusBadRequest, 40032, "file size exceeds 50MB")
		return
	}

	now := time.Now()
	year := now.Format("2006")
	month := now.Format("01")
	day := now.Format("02")
	baseDir := filepath.Join(".", "static", "uploads", year, month, day)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to create upload directory")
		return
	}

	fname := filepath.Base(header.Filename)
	if fname == "." || fname == "" {
		fname = fmt.Sprintf("file_%d", now.UnixNano())
	}
	// prefix with timestamp and user id to prevent collisions
	safeName := fmt.Sprintf("%d_%d_%s", now.UnixNano(), userID, fname)
	dstPath := filepath.Join(baseDir, safeName)

	out, err := os.Create(dstPath)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to save file")
		return
	}
	defer out.Close()

	lr := &io.LimitedReader{R: file, N: maxSize + 1}
	written, err := io.Copy(out, lr)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to write file")
		return
	}
	if written > maxSize {
		_ = out.Close()
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusBadRequest, 40032, "file size exceeds 50MB")
		return
	}

	relURL := fmt.Sprintf("/static/uploads/%s/%s/%s/%s", year, month, day, safeName)
	conf := config.Get()
	ttlMinutes := conf.UploadsSelfDestructMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	expireAt := time.Now().Add(time.Duration(ttlMinutes) * time.Minute)
	absPath, _ := filepath.Abs(dstPath)
	record := models.UploadedFile{UserID: userID, FilePath: absPath, URL: relURL, ExpireAt: expireAt}
	if err := p.db.Create(&record).Error; err != nil {
		utils.Sugar.Warnf("upload record failed path=%s err=%v", absPath, err)
	}

	utils.Success(ctx, gin.H{"url": relURL})
}

func validCategory(category string) bool {
	for _, c := range models.IdeaCategories {
		if category == c {
			return true
		}
	}
	return false
}
