package models

import "time"

// Notification types.
const (
	NotificationComment     = "comment"
	NotificationCommentLike = "comment_like"
	NotificationIdeaLike    = "idea_like"
	NotificationFollow      = "follow"
	NotificationAchievement = "achievement"
)

// Notification informs a user about an action taken on their content.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	ActorID   uint      `gorm:"index" json:"actor_id"`
	Type      string    `gorm:"size:32;not null" json:"type"`
	Content   string    `gorm:"size:512" json:"content"`
	IdeaID    *uint     `json:"idea_id"`
	CommentID *uint     `json:"comment_id"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	Actor     User      `gorm:"foreignKey:ActorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"actor"`
}
