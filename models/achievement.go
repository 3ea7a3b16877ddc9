package models

import "time"

// Achievement is a named, point-valued badge unlockable once per user.
// Code is the stable machine identifier rules and grant calls key on; the
// display name is a renamable attribute.
type Achievement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"size:64;not null;uniqueIndex" json:"code"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"size:512" json:"description"`
	IconURL     string    `gorm:"size:1024" json:"icon_url"`
	Points      int       `gorm:"not null;default:0" json:"points"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAchievement links a user to an unlocked achievement. The composite
// unique index enforces at most one unlock per (user, achievement); grant
// logic treats a duplicate-key insert as "already granted". Rows are never
// mutated or deleted.
type UserAchievement struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"not null;uniqueIndex:idx_user_achievements_user_achievement" json:"user_id"`
	AchievementID uint        `gorm:"not null;uniqueIndex:idx_user_achievements_user_achievement;index" json:"achievement_id"`
	UnlockedAt    time.Time   `gorm:"not null" json:"unlocked_at"`
	Achievement   Achievement `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"achievement"`
}
