package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/utils"
)

// LeaderboardController ranks users by accumulated achievement points.
type LeaderboardController struct {
	db *gorm.DB
}

// NewLeaderboardController creates a LeaderboardController.
func NewLeaderboardController(db *gorm.DB) *LeaderboardController {
	return &LeaderboardController{db: db}
}

// Leaderboard returns the top users by total achievement points. A user's
// score is the sum of the point values of their unlocked achievements; ties
// break on the earlier latest unlock.
func (l *LeaderboardController) Leaderboard(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	search := strings.TrimSpace(ctx.Query("search"))

	// Search results are not cached to keep the key space bounded.
	cacheKey := fmt.Sprintf("cache:leaderboard:page=%d:size=%d", page, pageSize)
	if search == "" {
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}

	type entry struct {
		UserID       uint      `json:"user_id"`
		Username     string    `json:"username"`
		FullName     string    `json:"full_name"`
		Role         string    `json:"role"`
		RoleDisplay  string    `json:"role_display" gorm:"-"`
		AvatarURL    string    `json:"avatar_url"`
		Points       int64     `json:"points"`
		Unlocks      int64     `json:"unlocks"`
		LatestUnlock time.Time `json:"latest_unlock"`
		Rank         int       `json:"rank" gorm:"-"`
	}

	board := l.db.Table("user_achievements")
	totalQ := l.db.Table("user_achievements")
	if search != "" {
		match := "%" + search + "%"
		board = board.Where("users.username LIKE ? OR users.full_name LIKE ?", match, match)
		totalQ = totalQ.Joins("JOIN users ON users.id = user_achievements.user_id").
			Where("users.username LIKE ? OR users.full_name LIKE ?", match, match)
	}

	var entries []entry
	if err := board.
		Select(`user_achievements.user_id,
			users.username, users.full_name, users.role, users.avatar_url,
			SUM(achievements.points) AS points,
			COUNT(user_achievements.id) AS unlocks,
			MAX(user_achievements.unlocked_at) AS latest_unlock`).
		Joins("JOIN achievements ON achievements.id = user_achievements.achievement_id").
		Joins("JOIN users ON users.id = user_achievements.user_id").
		Group("user_achievements.user_id, users.username, users.full_name, users.role, users.avatar_url").
		Order("points DESC, latest_unlock ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Scan(&entries).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50150, "failed to build leaderboard")
		return
	}

	var total int64
	if err := totalQ.Distinct("user_achievements.user_id").Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50151, "failed to count ranked users")
		return
	}

	base := (page - 1) * pageSize
	for i := range entries {
		entries[i].Rank = base + i + 1
		entries[i].RoleDisplay = roleDisplay(entries[i].Role)
	}

	payload := gin.H{
		"items":      entries,
		"pagination": paginationPayload(page, pageSize, total),
	}
	if search == "" {
		utils.CacheSetJSON(cacheKey, envelope(payload), 10*time.Minute)
	}
	utils.Success(ctx, payload)
}
