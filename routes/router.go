package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/achievements"
	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/controllers"
	"github.com/ideahub/ideahub/middleware"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// File-based zap access log instead of gin's console logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Record PV after each request
	r.Use(middleware.PageViewRecorder(db))

	r.Static("/static", "./static")

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	// Engine wiring: one dispatcher shared by every content controller.
	store := achievements.NewGormStore(db)
	dispatcher := achievements.NewDispatcher(store, achievements.DefaultRules(), utils.Sugar)

	authController := controllers.NewAuthController(db)
	ideaController := controllers.NewIdeaController(db, dispatcher)
	commentController := controllers.NewCommentController(db, dispatcher)
	achievementController := controllers.NewAchievementController(db, dispatcher.Granter())
	challengeController := controllers.NewChallengeController(db)
	followController := controllers.NewFollowController(db)
	chatController := controllers.NewChatController(db)
	notificationController := controllers.NewNotificationController(db)
	leaderboardController := controllers.NewLeaderboardController(db)
	statsController := controllers.NewStatsController(db)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/send-email-code", authController.SendEmailCode)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public reads
	api.GET("/ideas", ideaController.ListIdeas)
	api.GET("/ideas/:id", ideaController.GetIdea)
	api.GET("/ideas/:id/comments", commentController.ListIdeaComments)
	api.GET("/ideas/:id/stats", statsController.GetIdeaStats)
	api.GET("/challenges", challengeController.ListChallenges)
	api.GET("/challenges/:id", challengeController.GetChallenge)
	api.GET("/challenges/:id/participants", challengeController.ListParticipants)
	api.GET("/achievements", achievementController.ListCatalog)
	api.GET("/achievements/:code/users", achievementController.ListAchievementUsers)
	api.GET("/leaderboard", leaderboardController.Leaderboard)
	api.GET("/stats", statsController.GetStats)
	api.GET("/users/:id", authController.GetUserPublic)
	api.GET("/user/by-username/:username", authController.GetUserPublicByUsername)
	api.GET("/users/:id/ideas", ideaController.ListUserIdeas)
	api.GET("/users/:id/comments", commentController.ListUserComments)
	api.GET("/users/:id/achievements", achievementController.ListUserAchievements)
	api.GET("/users/:id/followers", followController.ListFollowers)
	api.GET("/users/:id/following", followController.ListFollowing)
	api.GET("/users/:id/follow-stats", middleware.AuthOptional(), followController.FollowStats)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())

	protected.POST("/upload", ideaController.UploadAttachment)

	protected.POST("/ideas", ideaController.CreateIdea)
	protected.DELETE("/ideas/:id", ideaController.DeleteIdea)
	protected.POST("/ideas/:id/like", ideaController.ToggleLike)
	protected.GET("/ideas/:id/liked", ideaController.LikedStatus)
	protected.GET("/users/me/ideas", ideaController.ListMyIdeas)
	protected.GET("/users/me/liked-ideas", ideaController.ListLikedIdeas)

	protected.POST("/ideas/:id/comments", commentController.CreateComment)
	protected.POST("/comments/:commentId/like", commentController.ToggleCommentLike)
	protected.DELETE("/comments/:commentId", commentController.DeleteComment)

	protected.GET("/users/me/achievements", achievementController.MyAchievements)

	protected.POST("/challenges", challengeController.CreateChallenge)
	protected.POST("/challenges/:id/join", challengeController.JoinChallenge)
	protected.POST("/challenges/:id/submissions", challengeController.SubmitEntry)
	protected.GET("/challenges/:id/submissions", challengeController.ListSubmissions)
	protected.GET("/challenges/:id/participation", challengeController.MyParticipation)
	protected.GET("/users/me/challenges", challengeController.ListMyChallenges)

	protected.POST("/users/:id/follow", followController.ToggleFollow)

	protected.GET("/chats", chatController.ListChats)
	protected.GET("/chats/:id/messages", chatController.ListMessages)
	protected.POST("/chats/:id/messages", chatController.SendMessage)
	protected.POST("/chats/:id/read", chatController.MarkRead)
	protected.POST("/message-requests", chatController.CreateMessageRequest)
	protected.GET("/message-requests", chatController.ListMessageRequests)
	protected.POST("/message-requests/:id/respond", chatController.RespondMessageRequest)

	protected.GET("/notifications", notificationController.ListNotifications)
	protected.GET("/notifications/unread-count", notificationController.UnreadCount)
	protected.POST("/notifications/:id/read", notificationController.MarkRead)
	protected.POST("/notifications/read-all", notificationController.MarkAllRead)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleAdmin))
	admin.GET("/users", authController.ListUsers)
	admin.PATCH("/users/:id/role", authController.UpdateUserRole)
	admin.POST("/achievements", achievementController.CreateAchievement)
	admin.PATCH("/achievements/:code", achievementController.UpdateAchievement)
	admin.POST("/achievements/grant", achievementController.GrantAchievement)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})

	return r
}
