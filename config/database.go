package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ideahub/ideahub/models"
)

var db *gorm.DB

// InitDatabase establishes a connection to MySQL using configuration values,
// performs automatic migrations and seeds achievement reference data.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()
	var dsn string
	if cfg.DatabaseURI != "" {
		dsn = cfg.DatabaseURI
	} else {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)
	}

	// Derive GORM log level from app LogLevel and raise the slow-sql threshold to reduce noise.
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormCfg := &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		// Map driver duplicate-key errors to gorm.ErrDuplicatedKey so unique
		// constraint races can be handled uniformly.
		TranslateError: true,
	}

	var err error
	db, err = gorm.Open(mysql.Open(dsn), gormCfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	// Modest pool with aggressive idle recycling so the server's wait_timeout
	// never hands us a dead connection.
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	// Ping at startup to surface network/auth problems before the first query.
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	if len(modelDefs) > 0 {
		if err := db.AutoMigrate(modelDefs...); err != nil {
			log.Printf("auto migration failed: %v", err)
		}
	}

	if err := SeedAchievements(db); err != nil {
		log.Printf("achievement seed failed: %v", err)
	}

	return db
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "", "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// DB provides access to the initialized gorm DB instance.
func DB() *gorm.DB {
	if db == nil {
		log.Fatal("database not initialized, call InitDatabase first")
	}
	return db
}

// SeedAchievements inserts the built-in achievement catalog when missing.
// Existing rows are left untouched so admins can rename display fields.
func SeedAchievements(db *gorm.DB) error {
	seed := []models.Achievement{
		{Code: "first_post", Name: "First Post", Description: "Shared your very first idea", IconURL: "/static/achievements/first_post.svg", Points: 10},
		{Code: "first_word", Name: "First Word", Description: "Left your first comment on an idea", IconURL: "/static/achievements/first_word.svg", Points: 5},
		{Code: "conversationalist", Name: "The Conversationalist", Description: "Commented on 5 different ideas", IconURL: "/static/achievements/conversationalist.svg", Points: 25},
		{Code: "community_favorite", Name: "Community Favorite", Description: "One of your ideas reached 10 likes", IconURL: "/static/achievements/community_favorite.svg", Points: 30},
		{Code: "influencer", Name: "Influencer", Description: "Collected 20 likes across your ideas", IconURL: "/static/achievements/influencer.svg", Points: 50},
	}

	for _, a := range seed {
		var existing models.Achievement
		err := db.Where("code = ?", a.Code).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := db.Create(&a).Error; err != nil {
			return err
		}
	}
	return nil
}
