package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// ChallengeController manages sponsored challenges, participation and
// submissions.
type ChallengeController struct {
	db *gorm.DB
}

// NewChallengeController creates a ChallengeController.
func NewChallengeController(db *gorm.DB) *ChallengeController {
	return &ChallengeController{db: db}
}

// CreateChallenge lets recruiters and admins publish a challenge.
func (c *ChallengeController) CreateChallenge(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	role := getRole(ctx)
	if role != models.RoleRecruiter && role != models.RoleAdmin {
		utils.Error(ctx, http.StatusForbidden, 40330, "only recruiters can create challenges")
		return
	}

	var req struct {
		Company         string    `json:"company" binding:"required"`
		Title           string    `json:"title" binding:"required,min=1"`
		Difficulty      string    `json:"difficulty"`
		Description     string    `json:"description"`
		Objectives      string    `json:"objectives"`
		Requirements    string    `json:"requirements"`
		JudgingCriteria string    `json:"judging_criteria"`
		Prize           string    `json:"prize"`
		Deadline        time.Time `json:"deadline" binding:"required"`
		MaxParticipants int       `json:"max_participants"`
		Tags            string    `json:"tags"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40090, "invalid request payload")
		return
	}

	if req.Deadline.Before(time.Now()) {
		utils.Error(ctx, http.StatusBadRequest, 40091, "deadline must be in the future")
		return
	}
	if req.MaxParticipants < 0 {
		utils.Error(ctx, http.StatusBadRequest, 40092, "max participants cannot be negative")
		return
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "Beginner"
	}
	if !validDifficulty(difficulty) {
		utils.Error(ctx, http.StatusBadRequest, 40093, "invalid difficulty")
		return
	}

	challenge := models.Challenge{
		CreatedBy:       userID,
		Company:         utils.Sanitize(strings.TrimSpace(req.Company)),
		Title:           utils.Sanitize(strings.TrimSpace(req.Title)),
		Difficulty:      difficulty,
		Description:     utils.Sanitize(req.Description),
		Objectives:      utils.Sanitize(req.Objectives),
		Requirements:    utils.Sanitize(req.Requirements),
		JudgingCriteria: utils.Sanitize(req.JudgingCriteria),
		Prize:           utils.Sanitize(strings.TrimSpace(req.Prize)),
		Deadline:        req.Deadline,
		MaxParticipants: req.MaxParticipants,
		Tags:            strings.TrimSpace(req.Tags),
	}
	if err := c.db.Create(&challenge).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50090, "failed to create challenge")
		return
	}

	utils.InvalidateByPrefix("cache:challenges:list:")
	utils.Success(ctx, gin.H{"challenge": challenge})
}

// ListChallenges returns paginated challenges, optionally filtered by status
// (open or closed) and difficulty.
func (c *ChallengeController) ListChallenges(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	status := strings.TrimSpace(ctx.Query("status"))
	difficulty := strings.TrimSpace(ctx.Query("difficulty"))

	cacheKey := fmt.Sprintf("cache:challenges:list:status=%s:diff=%s:page=%d:size=%d", status, difficulty, page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	query := c.db.Model(&models.Challenge{}).Preload("Creator")
	switch status {
	case "open":
		query = query.Where("deadline > ?", time.Now())
	case "closed":
		query = query.Where("deadline <= ?", time.Now())
	}
	if difficulty != "" {
		query = query.Where("difficulty = ?", difficulty)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50091, "failed to count challenges")
		return
	}

	var items []models.Challenge
	if err := query.Order("deadline ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50092, "failed to list challenges")
		return
	}

	payload := gin.H{
		"items":      items,
		"pagination": paginationPayload(page, pageSize, total),
	}
	utils.CacheSetJSON(cacheKey, envelope(payload), 10*time.Minute)
	utils.Success(ctx, payload)
}

// GetChallenge returns a challenge with its participant count.
func (c *ChallengeController) GetChallenge(ctx *gin.Context) {
	var challenge models.Challenge
	if err := c.db.Preload("Creator").First(&challenge, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "challenge not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50093, "failed to load challenge")
		return
	}

	var participants int64
	_ = c.db.Model(&models.ChallengeParticipant{}).
		Where("challenge_id = ?", challenge.ID).Count(&participants).Error

	utils.Success(ctx, gin.H{
		"challenge":         challenge,
		"participant_count": participants,
		"is_open":           challenge.Deadline.After(time.Now()),
	})
}

// JoinChallenge registers the current user as a participant. The row lock on
// the challenge serializes concurrent joins against the capacity check; the
// unique pair index turns a racing double-join into "already joined".
func (c *ChallengeController) JoinChallenge(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var alreadyJoined, full, closed bool
	err := c.db.Transaction(func(tx *gorm.DB) error {
		q := tx
		// SQLite has no SELECT ... FOR UPDATE; its single writer covers us there.
		if tx.Dialector.Name() == "mysql" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var challenge models.Challenge
		if err := q.First(&challenge, ctx.Param("id")).Error; err != nil {
			return err
		}
		if challenge.Deadline.Before(time.Now()) {
			closed = true
			return nil
		}
		if challenge.MaxParticipants > 0 {
			var count int64
			if err := tx.Model(&models.ChallengeParticipant{}).
				Where("challenge_id = ?", challenge.ID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(challenge.MaxParticipants) {
				full = true
				return nil
			}
		}
		p := models.ChallengeParticipant{
			ChallengeID: challenge.ID,
			UserID:      userID,
			JoinedAt:    time.Now(),
		}
		if err := tx.Create(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				alreadyJoined = true
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "challenge not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50094, "failed to join challenge")
		return
	}

	switch {
	case closed:
		utils.Error(ctx, http.StatusBadRequest, 40094, "challenge deadline has passed")
	case full:
		utils.Error(ctx, http.StatusConflict, 40920, "challenge is full")
	case alreadyJoined:
		utils.Success(ctx, gin.H{"joined": false, "already_joined": true})
	default:
		utils.Success(ctx, gin.H{"joined": true, "already_joined": false})
	}
}

// SubmitEntry stores the participant's submission. Requires membership and an
// open deadline; one submission per participant.
func (c *ChallengeController) SubmitEntry(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		FileURL     string `json:"file_url" binding:"required"`
		Description string `json:"description"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40095, "invalid request payload")
		return
	}

	var challenge models.Challenge
	if err := c.db.First(&challenge, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "challenge not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50093, "failed to load challenge")
		return
	}

	if challenge.Deadline.Before(time.Now()) {
		utils.Error(ctx, http.StatusBadRequest, 40094, "challenge deadline has passed")
		return
	}

	var membership int64
	if err := c.db.Model(&models.ChallengeParticipant{}).
		Where("challenge_id = ? AND user_id = ?", challenge.ID, userID).
		Count(&membership).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50095, "failed to check participation")
		return
	}
	if membership == 0 {
		utils.Error(ctx, http.StatusForbidden, 40331, "join the challenge before submitting")
		return
	}

	submission := models.ChallengeSubmission{
		ChallengeID: challenge.ID,
		UserID:      userID,
		FileURL:     strings.TrimSpace(req.FileURL),
		Description: utils.Sanitize(req.Description),
	}
	if err := c.db.Create(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(ctx, http.StatusConflict, 40921, "you already submitted to this challenge")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50096, "failed to store submission")
		return
	}

	utils.Success(ctx, gin.H{"submission": submission})
}

// ListParticipants returns who joined a challenge, newest first.
func (c *ChallengeController) ListParticipants(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	challengeID := ctx.Param("id")

	var total int64
	if err := c.db.Model(&models.ChallengeParticipant{}).
		Where("challenge_id = ?", challengeID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50097, "failed to count participants")
		return
	}

	var participants []models.ChallengeParticipant
	if err := c.db.Preload("User").
		Where("challenge_id = ?", challengeID).
		Order("joined_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&participants).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50098, "failed to list participants")
		return
	}

	utils.Success(ctx, gin.H{
		"items":      participants,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// MyParticipation reports the user's membership and submission for a challenge.
func (c *ChallengeController) MyParticipation(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	challengeID := ctx.Param("id")

	var membership int64
	if err := c.db.Model(&models.ChallengeParticipant{}).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		Count(&membership).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50095, "failed to check participation")
		return
	}

	payload := gin.H{"joined": membership > 0}
	var submission models.ChallengeSubmission
	err := c.db.Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&submission).Error
	if err == nil {
		payload["submission"] = submission
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusInternalServerError, 50099, "failed to load submission")
		return
	}

	utils.Success(ctx, payload)
}

// ListMyChallenges returns challenges the current recruiter created, with
// participant and submission counts.
func (c *ChallengeController) ListMyChallenges(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var total int64
	if err := c.db.Model(&models.Challenge{}).
		Where("created_by = ?", userID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50091, "failed to count challenges")
		return
	}

	var items []models.Challenge
	if err := c.db.Where("created_by = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50092, "failed to list challenges")
		return
	}

	type counted struct {
		models.Challenge
		ParticipantCount int64 `json:"participant_count"`
		SubmissionCount  int64 `json:"submission_count"`
	}
	out := make([]counted, 0, len(items))
	for _, ch := range items {
		var pc, sc int64
		_ = c.db.Model(&models.ChallengeParticipant{}).Where("challenge_id = ?", ch.ID).Count(&pc).Error
		_ = c.db.Model(&models.ChallengeSubmission{}).Where("challenge_id = ?", ch.ID).Count(&sc).Error
		out = append(out, counted{Challenge: ch, ParticipantCount: pc, SubmissionCount: sc})
	}

	utils.Success(ctx, gin.H{
		"items":      out,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// ListSubmissions returns submissions for a challenge. Restricted to the
// challenge creator and admins.
func (c *ChallengeController) ListSubmissions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var challenge models.Challenge
	if err := c.db.First(&challenge, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "challenge not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50093, "failed to load challenge")
		return
	}
	if challenge.CreatedBy != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40332, "only the challenge creator can view submissions")
		return
	}

	var submissions []models.ChallengeSubmission
	if err := c.db.Where("challenge_id = ?", challenge.ID).
		Order("created_at DESC").Find(&submissions).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50100, "failed to list submissions")
		return
	}

	utils.Success(ctx, gin.H{"items": submissions})
}

func validDifficulty(d string) bool {
	for _, v := range models.ChallengeDifficulties {
		if d == v {
			return true
		}
	}
	return false
}
