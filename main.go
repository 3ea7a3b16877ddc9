package main

import (
	"time"

	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/routes"
	"github.com/ideahub/ideahub/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
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
	)

	r := routes.SetupRouter(db)

	// Background cleanup for expired uploads (best-effort)
	utils.StartUploadCleaner(5 * time.Minute)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
