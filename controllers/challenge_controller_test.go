package controllers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/models"
)

func seedChallenge(t *testing.T, db *gorm.DB, creator uint, deadline time.Time, maxParticipants int) models.Challenge {
	t.Helper()
	ch := models.Challenge{
		CreatedBy:       creator,
		Company:         "Acme",
		Title:           "Build a widget",
		Difficulty:      "Beginner",
		Deadline:        deadline,
		MaxParticipants: maxParticipants,
	}
	require.NoError(t, db.Create(&ch).Error)
	return ch
}

func TestCreateChallengeRequiresRecruiterRole(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	innovator := seedUser(t, db, "maker", models.RoleInnovator)
	recruiter := seedUser(t, db, "hirer", models.RoleRecruiter)

	body := gin.H{
		"company":  "Acme",
		"title":    "Design a logo",
		"deadline": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	}

	w := doJSON(r, http.MethodPost, "/api/v1/challenges", tokenFor(t, innovator), body)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/challenges", tokenFor(t, recruiter), body)
	require.Equal(t, http.StatusOK, w.Code)
	ch := decodeData(t, w)["challenge"].(map[string]interface{})
	require.Equal(t, "Beginner", ch["difficulty"])
}

func TestCreateChallengeRejectsPastDeadline(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	recruiter := seedUser(t, db, "hirer2", models.RoleRecruiter)

	w := doJSON(r, http.MethodPost, "/api/v1/challenges", tokenFor(t, recruiter), gin.H{
		"company":  "Acme",
		"title":    "Too late",
		"deadline": time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinChallengeOutcomes(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	recruiter := seedUser(t, db, "sponsor", models.RoleRecruiter)
	ch := seedChallenge(t, db, recruiter.ID, time.Now().Add(24*time.Hour), 2)
	path := fmt.Sprintf("/api/v1/challenges/%d/join", ch.ID)

	first := seedUser(t, db, "joiner1", models.RoleInnovator)
	second := seedUser(t, db, "joiner2", models.RoleInnovator)
	third := seedUser(t, db, "joiner3", models.RoleInnovator)

	w := doJSON(r, http.MethodPost, path, tokenFor(t, first), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decodeData(t, w)["joined"])

	// Joining again reports membership instead of failing.
	w = doJSON(r, http.MethodPost, path, tokenFor(t, first), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, false, data["joined"])
	require.Equal(t, true, data["already_joined"])

	w = doJSON(r, http.MethodPost, path, tokenFor(t, second), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Capacity of 2 is exhausted.
	w = doJSON(r, http.MethodPost, path, tokenFor(t, third), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.ChallengeParticipant{}).
		Where("challenge_id = ?", ch.ID).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestJoinClosedChallenge(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	recruiter := seedUser(t, db, "sponsor2", models.RoleRecruiter)
	ch := seedChallenge(t, db, recruiter.ID, time.Now().Add(-time.Hour), 0)
	user := seedUser(t, db, "late", models.RoleInnovator)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/challenges/%d/join", ch.ID),
		tokenFor(t, user), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinMissingChallenge(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	user := seedUser(t, db, "lost", models.RoleInnovator)

	w := doJSON(r, http.MethodPost, "/api/v1/challenges/9999/join", tokenFor(t, user), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitEntryLifecycle(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	recruiter := seedUser(t, db, "sponsor3", models.RoleRecruiter)
	ch := seedChallenge(t, db, recruiter.ID, time.Now().Add(24*time.Hour), 0)
	user := seedUser(t, db, "entrant", models.RoleInnovator)
	token := tokenFor(t, user)
	submitPath := fmt.Sprintf("/api/v1/challenges/%d/submissions", ch.ID)
	body := gin.H{"file_url": "/static/uploads/entry.pdf", "description": "my pitch"}

	// Must join first.
	w := doJSON(r, http.MethodPost, submitPath, token, body)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/challenges/%d/join", ch.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, submitPath, token, body)
	require.Equal(t, http.StatusOK, w.Code)

	// One submission per participant.
	w = doJSON(r, http.MethodPost, submitPath, token, body)
	require.Equal(t, http.StatusConflict, w.Code)

	// Participation summary reflects both join and submission.
	w = doJSON(r, http.MethodGet, fmt.Sprintf("/api/v1/challenges/%d/participation", ch.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, true, data["joined"])
	require.NotNil(t, data["submission"])
}

func TestSubmitAfterDeadline(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	recruiter := seedUser(t, db, "sponsor4", models.RoleRecruiter)
	ch := seedChallenge(t, db, recruiter.ID, time.Now().Add(time.Minute), 0)
	user := seedUser(t, db, "slow", models.RoleInnovator)
	token := tokenFor(t, user)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/challenges/%d/join", ch.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, db.Model(&models.Challenge{}).Where("id = ?", ch.ID).
		Update("deadline", time.Now().Add(-time.Minute)).Error)

	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/challenges/%d/submissions", ch.ID),
		token, gin.H{"file_url": "/static/uploads/late.pdf"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
