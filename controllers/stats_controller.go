package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// StatsController provides platform statistics such as entity counts and
// daily page view figures for the admin dashboard.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate statistics for the platform.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount, ideaCount, commentCount, likeCount int64
	var challengeCount, achievementUnlocks, dailyActive int64

	// Each count falls back to 0 instead of failing the whole endpoint.
	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		userCount = 0
	}
	if err := s.db.Model(&models.Idea{}).Count(&ideaCount).Error; err != nil {
		ideaCount = 0
	}
	if err := s.db.Model(&models.Comment{}).Count(&commentCount).Error; err != nil {
		commentCount = 0
	}
	if err := s.db.Model(&models.IdeaLike{}).Count(&likeCount).Error; err != nil {
		likeCount = 0
	}
	if err := s.db.Model(&models.Challenge{}).Count(&challengeCount).Error; err != nil {
		challengeCount = 0
	}
	if err := s.db.Model(&models.UserAchievement{}).Count(&achievementUnlocks).Error; err != nil {
		achievementUnlocks = 0
	}

	// Daily active (PV-based): today's page views across all paths. String
	// date equality avoids timezone/type mismatches with the DATE column.
	today := time.Now().In(time.Local).Format("2006-01-02")
	if err := s.db.Model(&models.PageView{}).
		Where("date = ?", today).
		Select("COALESCE(SUM(count),0)").
		Scan(&dailyActive).Error; err != nil {
		dailyActive = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":          userCount,
		"idea_count":          ideaCount,
		"comment_count":       commentCount,
		"like_count":          likeCount,
		"challenge_count":     challengeCount,
		"achievement_unlocks": achievementUnlocks,
		"daily_active_count":  dailyActive,
	})
}

// GetIdeaStats returns PV and engagement counts for a given idea id.
func (s *StatsController) GetIdeaStats(ctx *gin.Context) {
	id := ctx.Param("id")

	var pv int64
	if err := s.db.Model(&models.PageView{}).
		Where("path = ?", "/api/v1/ideas/"+id).
		Select("COALESCE(SUM(count),0)").
		Scan(&pv).Error; err != nil {
		pv = 0
	}

	var commentsCount, likesCount int64
	if err := s.db.Model(&models.Comment{}).Where("idea_id = ?", id).Count(&commentsCount).Error; err != nil {
		commentsCount = 0
	}
	if err := s.db.Model(&models.IdeaLike{}).Where("idea_id = ?", id).Count(&likesCount).Error; err != nil {
		likesCount = 0
	}

	utils.Success(ctx, gin.H{
		"pv":             pv,
		"comments_count": commentsCount,
		"likes_count":    likesCount,
	})
}
