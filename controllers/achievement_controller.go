package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/achievements"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// AchievementController exposes the achievement catalog, per-user unlocks and
// admin management endpoints.
type AchievementController struct {
	db      *gorm.DB
	granter *achievements.Granter
}

// NewAchievementController creates an AchievementController.
func NewAchievementController(db *gorm.DB, granter *achievements.Granter) *AchievementController {
	return &AchievementController{db: db, granter: granter}
}

// ListCatalog returns every achievement in the catalog.
func (a *AchievementController) ListCatalog(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes("cache:achievements:catalog"); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}
	var items []models.Achievement
	if err := a.db.Order("points ASC, id ASC").Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to list achievements")
		return
	}
	payload := gin.H{"items": items}
	utils.CacheSetJSON("cache:achievements:catalog", envelope(payload), time.Hour)
	utils.Success(ctx, payload)
}

// ListUserAchievements returns a user's unlocks alongside their total points.
func (a *AchievementController) ListUserAchievements(ctx *gin.Context) {
	userID := strings.TrimSpace(ctx.Param("id"))
	if userID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40080, "missing user id")
		return
	}
	a.respondUserAchievements(ctx, userID)
}

// MyAchievements returns the authenticated user's unlocks and points.
func (a *AchievementController) MyAchievements(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	a.respondUserAchievements(ctx, userID)
}

func (a *AchievementController) respondUserAchievements(ctx *gin.Context, userID interface{}) {
	var unlocks []models.UserAchievement
	if err := a.db.Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at DESC").
		Find(&unlocks).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50081, "failed to list user achievements")
		return
	}

	var points int64
	for _, u := range unlocks {
		points += int64(u.Achievement.Points)
	}

	utils.Success(ctx, gin.H{
		"items":        unlocks,
		"total_points": points,
	})
}

// ListAchievementUsers returns the users who unlocked a given achievement,
// newest unlock first.
func (a *AchievementController) ListAchievementUsers(ctx *gin.Context) {
	code := strings.TrimSpace(ctx.Param("code"))
	if code == "" {
		utils.Error(ctx, http.StatusBadRequest, 40081, "missing achievement code")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var ach models.Achievement
	if err := a.db.Where("code = ?", code).First(&ach).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "achievement not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50082, "failed to load achievement")
		return
	}

	var total int64
	if err := a.db.Model(&models.UserAchievement{}).
		Where("achievement_id = ?", ach.ID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50083, "failed to count unlocks")
		return
	}

	type unlockRow struct {
		UserID     uint      `json:"user_id"`
		Username   string    `json:"username"`
		FullName   string    `json:"full_name"`
		AvatarURL  string    `json:"avatar_url"`
		UnlockedAt time.Time `json:"unlocked_at"`
	}
	var rows []unlockRow
	if err := a.db.Model(&models.UserAchievement{}).
		Select("user_achievements.user_id, users.username, users.full_name, users.avatar_url, user_achievements.unlocked_at").
		Joins("JOIN users ON users.id = user_achievements.user_id").
		Where("user_achievements.achievement_id = ?", ach.ID).
		Order("user_achievements.unlocked_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Scan(&rows).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50084, "failed to list unlock holders")
		return
	}

	utils.Success(ctx, gin.H{
		"achievement": ach,
		"items":       rows,
		"pagination":  paginationPayload(page, pageSize, total),
	})
}

// CreateAchievement lets admins extend the catalog. Codes are immutable once
// created.
func (a *AchievementController) CreateAchievement(ctx *gin.Context) {
	var req struct {
		Code        string `json:"code" binding:"required"`
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		IconURL     string `json:"icon_url"`
		Points      int    `json:"points"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40082, "invalid request payload")
		return
	}

	code := strings.TrimSpace(strings.ToLower(req.Code))
	if !validAchievementCode(code) {
		utils.Error(ctx, http.StatusBadRequest, 40083, "code may only contain lowercase letters, digits and '_'")
		return
	}
	if req.Points < 0 {
		utils.Error(ctx, http.StatusBadRequest, 40084, "points cannot be negative")
		return
	}

	ach := models.Achievement{
		Code:        code,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		IconURL:     strings.TrimSpace(req.IconURL),
		Points:      req.Points,
	}
	if err := a.db.Create(&ach).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(ctx, http.StatusConflict, 40910, "achievement code already exists")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50085, "failed to create achievement")
		return
	}

	utils.InvalidateByPrefix("cache:achievements:catalog")
	utils.Success(ctx, gin.H{"achievement": ach})
}

// UpdateAchievement lets admins rename display fields. The code stays fixed so
// existing unlocks and rules keep pointing at the same achievement.
func (a *AchievementController) UpdateAchievement(ctx *gin.Context) {
	code := strings.TrimSpace(ctx.Param("code"))
	var ach models.Achievement
	if err := a.db.Where("code = ?", code).First(&ach).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "achievement not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50082, "failed to load achievement")
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IconURL     *string `json:"icon_url"`
		Points      *int    `json:"points"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40082, "invalid request payload")
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.IconURL != nil {
		updates["icon_url"] = strings.TrimSpace(*req.IconURL)
	}
	if req.Points != nil && *req.Points >= 0 {
		updates["points"] = *req.Points
	}
	if len(updates) > 0 {
		if err := a.db.Model(&ach).Updates(updates).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50086, "failed to update achievement")
			return
		}
	}

	utils.InvalidateByPrefix("cache:achievements:catalog")
	utils.InvalidateByPrefix("cache:leaderboard:")
	utils.Success(ctx, gin.H{"achievement": ach})
}

// GrantAchievement lets admins unlock an achievement for a user manually.
// Granting twice is a no-op reported as already_granted.
func (a *AchievementController) GrantAchievement(ctx *gin.Context) {
	var req struct {
		UserID uint   `json:"user_id" binding:"required"`
		Code   string `json:"code" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40085, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.First(&user, req.UserID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return
	}

	fresh, err := a.granter.GrantOnce(ctx.Request.Context(), req.UserID, strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, achievements.ErrUnknownAchievement) {
			utils.Error(ctx, http.StatusNotFound, 40430, "achievement not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50087, "failed to grant achievement")
		return
	}

	utils.InvalidateByPrefix("cache:leaderboard:")
	utils.Success(ctx, gin.H{"granted": fresh, "already_granted": !fresh})
}

func validAchievementCode(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}
