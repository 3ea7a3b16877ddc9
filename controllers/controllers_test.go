package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ideahub/ideahub/achievements"
	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/middleware"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	_ = os.Setenv("JWT_SECRET", "controller-test-secret")
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Idea{},
		&models.IdeaLike{},
		&models.Comment{},
		&models.CommentLike{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.Challenge{},
		&models.ChallengeParticipant{},
		&models.ChallengeSubmission{},
		&models.Follow{},
		&models.Chat{},
		&models.ChatParticipant{},
		&models.Message{},
		&models.MessageRead{},
		&models.MessageRequest{},
		&models.Notification{},
		&models.PageView{},
		&models.UploadedFile{},
	))
	require.NoError(t, config.SeedAchievements(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

// testRouter wires the engine and controllers exactly as production does, but
// without access logging, CORS or rate limits.
func testRouter(db *gorm.DB) *gin.Engine {
	store := achievements.NewGormStore(db)
	dispatcher := achievements.NewDispatcher(store, achievements.DefaultRules(), nil)

	authController := NewAuthController(db)
	ideaController := NewIdeaController(db, dispatcher)
	commentController := NewCommentController(db, dispatcher)
	achievementController := NewAchievementController(db, dispatcher.Granter())
	challengeController := NewChallengeController(db)
	followController := NewFollowController(db)
	chatController := NewChatController(db)
	notificationController := NewNotificationController(db)
	leaderboardController := NewLeaderboardController(db)

	r := gin.New()
	api := r.Group("/api/v1")

	api.POST("/auth/register", authController.Register)
	api.POST("/auth/login", authController.Login)
	api.GET("/ideas", ideaController.ListIdeas)
	api.GET("/ideas/:id", ideaController.GetIdea)
	api.GET("/ideas/:id/comments", commentController.ListIdeaComments)
	api.GET("/achievements", achievementController.ListCatalog)
	api.GET("/achievements/:code/users", achievementController.ListAchievementUsers)
	api.GET("/users/:id/achievements", achievementController.ListUserAchievements)
	api.GET("/leaderboard", leaderboardController.Leaderboard)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.POST("/ideas", ideaController.CreateIdea)
	protected.POST("/ideas/:id/like", ideaController.ToggleLike)
	protected.POST("/ideas/:id/comments", commentController.CreateComment)
	protected.POST("/comments/:commentId/like", commentController.ToggleCommentLike)
	protected.POST("/challenges", challengeController.CreateChallenge)
	protected.POST("/challenges/:id/join", challengeController.JoinChallenge)
	protected.POST("/challenges/:id/submissions", challengeController.SubmitEntry)
	protected.GET("/challenges/:id/participation", challengeController.MyParticipation)
	protected.POST("/users/:id/follow", followController.ToggleFollow)
	protected.POST("/message-requests", chatController.CreateMessageRequest)
	protected.POST("/message-requests/:id/respond", chatController.RespondMessageRequest)
	protected.GET("/chats", chatController.ListChats)
	protected.POST("/chats/:id/messages", chatController.SendMessage)
	protected.GET("/notifications", notificationController.ListNotifications)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleAdmin))
	admin.POST("/achievements/grant", achievementController.GrantAchievement)

	return r
}

func seedUser(t *testing.T, db *gorm.DB, name, role string) models.User {
	t.Helper()
	hash, err := utils.HashPassword("secret-pass")
	require.NoError(t, err)
	u := models.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: hash,
		Role:         role,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func tokenFor(t *testing.T, u models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(u.ID, u.Username, u.Role, time.Hour)
	require.NoError(t, err)
	return token
}

func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func TestLoginAndCreateIdeaUnlocksFirstPost(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	user := seedUser(t, db, "alice", models.RoleInnovator)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice", "password": "secret-pass",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)

	w = doJSON(r, http.MethodPost, "/api/v1/ideas", token, gin.H{
		"title": "Solar micro-grids", "content": "Cheap resilient power", "category": "Tech",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	unlocked, _ := data["unlocked_achievements"].([]interface{})
	require.Len(t, unlocked, 1)
	first := unlocked[0].(map[string]interface{})
	require.Equal(t, "first_post", first["code"])

	// The unlock must be in the database exactly once.
	var count int64
	require.NoError(t, db.Model(&models.UserAchievement{}).
		Where("user_id = ?", user.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	// Second idea grants nothing new.
	w = doJSON(r, http.MethodPost, "/api/v1/ideas", token, gin.H{
		"title": "Second idea", "content": "body",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	require.Empty(t, data["unlocked_achievements"])
}

func TestRegisterRejectionKeepsCodeUsable(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	seedUser(t, db, "taken", models.RoleInnovator)

	email := "newbie@example.com"
	utils.SaveCode(email, "424242", 10*time.Minute)

	// A rejected attempt must not consume the one-time code.
	w := doJSON(r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "taken",
		"email":    email,
		"password": "secret-pass",
		"confirm":  "secret-pass",
		"code":     "424242",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// The same code still registers the corrected attempt.
	w = doJSON(r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "newbie",
		"email":    email,
		"password": "secret-pass",
		"confirm":  "secret-pass",
		"code":     "424242",
		"role":     models.RoleRecruiter,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.NotEmpty(t, data["token"])
	user := data["user"].(map[string]interface{})
	require.Equal(t, models.RoleRecruiter, user["role"])

	// And the code is consumed exactly once.
	w = doJSON(r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "another",
		"email":    email,
		"password": "secret-pass",
		"confirm":  "secret-pass",
		"code":     "424242",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	seedUser(t, db, "bob", models.RoleInnovator)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "bob", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateIdeaRejectsInvalidCategory(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	user := seedUser(t, db, "carl", models.RoleInnovator)

	w := doJSON(r, http.MethodPost, "/api/v1/ideas", tokenFor(t, user), gin.H{
		"title": "x", "content": "y", "category": "Sports",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLikeToggleKeepsLedgerAndCounterInSync(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	author := seedUser(t, db, "author", models.RoleInnovator)
	fan := seedUser(t, db, "fan", models.RoleInnovator)
	idea := models.Idea{UserID: author.ID, Title: "t", Content: "c"}
	require.NoError(t, db.Create(&idea).Error)
	token := tokenFor(t, fan)
	path := fmt.Sprintf("/api/v1/ideas/%d/like", idea.ID)

	// Like
	w := doJSON(r, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, true, data["liked"])
	require.EqualValues(t, 1, data["like_count"])

	var got models.Idea
	require.NoError(t, db.First(&got, idea.ID).Error)
	require.EqualValues(t, 1, got.LikeCount)

	// Author got a notification
	var n int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", author.ID, models.NotificationIdeaLike).
		Count(&n).Error)
	require.Equal(t, int64(1), n)

	// Unlike restores both ledger and counter
	w = doJSON(r, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	require.Equal(t, false, data["liked"])
	require.EqualValues(t, 0, data["like_count"])

	require.NoError(t, db.First(&got, idea.ID).Error)
	require.EqualValues(t, 0, got.LikeCount)
	var ledger int64
	require.NoError(t, db.Model(&models.IdeaLike{}).
		Where("idea_id = ?", idea.ID).Count(&ledger).Error)
	require.Equal(t, int64(0), ledger)
}

func TestSelfLikeCreatesNoNotification(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	author := seedUser(t, db, "selflike", models.RoleInnovator)
	idea := models.Idea{UserID: author.ID, Title: "t", Content: "c"}
	require.NoError(t, db.Create(&idea).Error)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/ideas/%d/like", idea.ID), tokenFor(t, author), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var n int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("type = ?", models.NotificationIdeaLike).Count(&n).Error)
	require.Equal(t, int64(0), n)
}

func TestCommentNotifiesAuthorAndUnlocksFirstWord(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	author := seedUser(t, db, "ideaowner", models.RoleInnovator)
	commenter := seedUser(t, db, "talker", models.RoleInnovator)
	idea := models.Idea{UserID: author.ID, Title: "t", Content: "c"}
	require.NoError(t, db.Create(&idea).Error)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/ideas/%d/comments", idea.ID),
		tokenFor(t, commenter), gin.H{"content": "love it"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	unlocked, _ := data["unlocked_achievements"].([]interface{})
	require.Len(t, unlocked, 1)
	require.Equal(t, "first_word", unlocked[0].(map[string]interface{})["code"])

	var got models.Idea
	require.NoError(t, db.First(&got, idea.ID).Error)
	require.EqualValues(t, 1, got.CommentCount)

	var n int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", author.ID, models.NotificationComment).
		Count(&n).Error)
	require.Equal(t, int64(1), n)
}

func TestAdminGrantIsIdempotentAndRoleGated(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	admin := seedUser(t, db, "root", models.RoleAdmin)
	user := seedUser(t, db, "plain", models.RoleInnovator)

	// Non-admin is rejected.
	w := doJSON(r, http.MethodPost, "/api/v1/admin/achievements/grant", tokenFor(t, user),
		gin.H{"user_id": user.ID, "code": "influencer"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/admin/achievements/grant", tokenFor(t, admin),
		gin.H{"user_id": user.ID, "code": "influencer"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, true, data["granted"])

	w = doJSON(r, http.MethodPost, "/api/v1/admin/achievements/grant", tokenFor(t, admin),
		gin.H{"user_id": user.ID, "code": "influencer"})
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	require.Equal(t, false, data["granted"])
	require.Equal(t, true, data["already_granted"])

	// Unknown code maps to 404.
	w = doJSON(r, http.MethodPost, "/api/v1/admin/achievements/grant", tokenFor(t, admin),
		gin.H{"user_id": user.ID, "code": "made_up"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeaderboardRanksByPoints(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	top := seedUser(t, db, "top", models.RoleInnovator)
	mid := seedUser(t, db, "mid", models.RoleRecruiter)
	low := seedUser(t, db, "low", models.RoleAdmin)

	grant := func(userID uint, code string) {
		var ach models.Achievement
		require.NoError(t, db.Where("code = ?", code).First(&ach).Error)
		require.NoError(t, db.Create(&models.UserAchievement{
			UserID: userID, AchievementID: ach.ID, UnlockedAt: time.Now(),
		}).Error)
	}
	grant(top.ID, "influencer")         // 50
	grant(top.ID, "first_post")         // 10
	grant(mid.ID, "community_favorite") // 30
	grant(low.ID, "first_word")         // 5

	w := doJSON(r, http.MethodGet, "/api/v1/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	items, _ := data["items"].([]interface{})
	require.Len(t, items, 3)

	first := items[0].(map[string]interface{})
	second := items[1].(map[string]interface{})
	third := items[2].(map[string]interface{})
	require.Equal(t, "top", first["username"])
	require.EqualValues(t, 60, first["points"])
	require.EqualValues(t, 1, first["rank"])
	require.Equal(t, "mid", second["username"])
	require.Equal(t, "Recruiter", second["role_display"])
	require.EqualValues(t, 2, second["rank"])
	require.Equal(t, "low", third["username"])
	require.Equal(t, "Admin", third["role_display"])
	require.EqualValues(t, 3, third["rank"])
}

func TestFollowToggleAndNotification(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	follower := seedUser(t, db, "follower", models.RoleInnovator)
	followed := seedUser(t, db, "followed", models.RoleInnovator)
	token := tokenFor(t, follower)
	path := fmt.Sprintf("/api/v1/users/%d/follow", followed.ID)

	w := doJSON(r, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decodeData(t, w)["following"])

	// Self follow is rejected.
	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/follow", follower.ID), token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Toggle off.
	w = doJSON(r, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, decodeData(t, w)["following"])

	var edges int64
	require.NoError(t, db.Model(&models.Follow{}).Count(&edges).Error)
	require.Equal(t, int64(0), edges)
}

func TestMessageRequestAcceptCreatesChat(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	sender := seedUser(t, db, "sender", models.RoleInnovator)
	receiver := seedUser(t, db, "receiver", models.RoleInnovator)

	w := doJSON(r, http.MethodPost, "/api/v1/message-requests", tokenFor(t, sender),
		gin.H{"receiver_id": receiver.ID})
	require.Equal(t, http.StatusOK, w.Code)
	reqData := decodeData(t, w)["request"].(map[string]interface{})
	requestID := int(reqData["id"].(float64))

	// Duplicate request is rejected.
	w = doJSON(r, http.MethodPost, "/api/v1/message-requests", tokenFor(t, sender),
		gin.H{"receiver_id": receiver.ID})
	require.Equal(t, http.StatusConflict, w.Code)

	// Only the recipient can respond.
	respondPath := fmt.Sprintf("/api/v1/message-requests/%d/respond", requestID)
	w = doJSON(r, http.MethodPost, respondPath, tokenFor(t, sender), gin.H{"action": "accept"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, respondPath, tokenFor(t, receiver), gin.H{"action": "accept"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, models.MessageRequestAccepted, data["status"])
	chatID := int(data["chat_id"].(float64))

	// Both ends are chat members and can message each other.
	var membership int64
	require.NoError(t, db.Model(&models.ChatParticipant{}).
		Where("chat_id = ?", chatID).Count(&membership).Error)
	require.Equal(t, int64(2), membership)

	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/chats/%d/messages", chatID),
		tokenFor(t, sender), gin.H{"content": "hi there"})
	require.Equal(t, http.StatusOK, w.Code)

	// An outsider cannot.
	outsider := seedUser(t, db, "outsider", models.RoleInnovator)
	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/chats/%d/messages", chatID),
		tokenFor(t, outsider), gin.H{"content": "let me in"})
	require.Equal(t, http.StatusForbidden, w.Code)

	// Responding twice conflicts.
	w = doJSON(r, http.MethodPost, respondPath, tokenFor(t, receiver), gin.H{"action": "reject"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestReverseRequestReusesExistingChat(t *testing.T) {
	db := newTestDB(t)
	r := testRouter(db)
	a := seedUser(t, db, "annika", models.RoleInnovator)
	b := seedUser(t, db, "bruno", models.RoleInnovator)

	accept := func(sender, receiver models.User) uint {
		w := doJSON(r, http.MethodPost, "/api/v1/message-requests", tokenFor(t, sender),
			gin.H{"receiver_id": receiver.ID})
		require.Equal(t, http.StatusOK, w.Code)
		reqData := decodeData(t, w)["request"].(map[string]interface{})
		w = doJSON(r, http.MethodPost,
			fmt.Sprintf("/api/v1/message-requests/%d/respond", int(reqData["id"].(float64))),
			tokenFor(t, receiver), gin.H{"action": "accept"})
		require.Equal(t, http.StatusOK, w.Code)
		return uint(decodeData(t, w)["chat_id"].(float64))
	}

	firstChat := accept(a, b)
	secondChat := accept(b, a)
	require.Equal(t, firstChat, secondChat)

	var chatCount int64
	require.NoError(t, db.Model(&models.Chat{}).Count(&chatCount).Error)
	require.Equal(t, int64(1), chatCount)

	// Each side sees one chat with the other as its only peer.
	w := doJSON(r, http.MethodGet, "/api/v1/chats", tokenFor(t, a), nil)
	require.Equal(t, http.StatusOK, w.Code)
	items, _ := decodeData(t, w)["items"].([]interface{})
	require.Len(t, items, 1)
	peers, _ := items[0].(map[string]interface{})["peers"].([]interface{})
	require.Len(t, peers, 1)
	require.Equal(t, "bruno", peers[0].(map[string]interface{})["username"])
}
